package audiomoth

import (
	"bytes"
	_ "embed"
	"io"
	"os"

	"github.com/marcinbor85/gohex"
	"github.com/pkg/errors"
)

//go:embed assets/updater.hex
var embeddedUpdaterHex []byte

// embeddedUpdaterImage flattens the built-in bootloader-updater Intel HEX
// resource into the flat binary image the XMODEM protocol expects.
func embeddedUpdaterImage() ([]byte, error) {
	return flattenIntelHex(bytes.NewReader(embeddedUpdaterHex))
}

// LoadHexFile reads an Intel HEX file from disk and flattens it into a flat
// binary image, the way a user-supplied -hex argument is turned into the
// same wire format as a raw binary image.
func LoadHexFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open hex file %s", path)
	}
	defer file.Close()
	return flattenIntelHex(file)
}

// flattenIntelHex parses Intel HEX records with gohex and lays every
// segment out into one contiguous buffer starting at address 0, filling any
// gap between segments with 0xFF, matching the padding the device's own
// image CRC uses for a short image.
func flattenIntelHex(r io.Reader) ([]byte, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, errors.Wrap(err, "parse intel hex")
	}

	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return nil, &InvalidImageError{Reason: "hex file contains no data segments"}
	}

	var top uint32
	for _, seg := range segments {
		end := seg.Address + uint32(len(seg.Data))
		if end > top {
			top = end
		}
	}

	image := make([]byte, top)
	for i := range image {
		image[i] = imageCRCPadByte
	}
	for _, seg := range segments {
		copy(image[seg.Address:], seg.Data)
	}
	return image, nil
}
