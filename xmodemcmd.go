package audiomoth

import (
	"regexp"
	"strconv"

	"github.com/pkg/errors"
)

// asciiCommand represents one of the single-byte ASCII commands the serial
// bootloader understands. GetBytes and the expected response shape are
// bundled together the same way the Microchip Unified Bootloader's Command
// type paired a request with its response length, generalized here to a
// pattern match instead of a fixed length plus a leading unlock sequence.
type asciiCommand struct {
	Byte        byte
	ResponseLen int
	Pattern     *regexp.Regexp
}

// GetBytes returns the single byte written to the wire for this command.
func (c asciiCommand) GetBytes() []byte {
	return []byte{c.Byte}
}

var (
	readyPattern    = regexp.MustCompile(`Ready`)
	identityPattern = regexp.MustCompile(`BOOTLOADER version (\d)\.(\d{2}), Chip ID ([0-9A-Z]{16})`)
	crcPattern      = regexp.MustCompile(`CRC: 0000[A-Z0-9]{4}`)
	echoRPattern    = regexp.MustCompile(`r`)
)

// newReadyCommand builds the write-mode ready-handshake command: 'd' for a
// destructive write, 'u' for non-destructive.
func newReadyCommand(destructive bool) asciiCommand {
	b := byte('u')
	if destructive {
		b = 'd'
	}
	return asciiCommand{Byte: b, ResponseLen: 11, Pattern: readyPattern}
}

// newClearReadyCommand builds the user-data-clear ready-handshake command.
func newClearReadyCommand() asciiCommand {
	return asciiCommand{Byte: 't', ResponseLen: 11, Pattern: readyPattern}
}

// newIdentityCommand builds the bootloader-identity command.
func newIdentityCommand() asciiCommand {
	return asciiCommand{Byte: 'i', ResponseLen: 54, Pattern: identityPattern}
}

// newImageCRCCommand builds the image-CRC read command: 'v' includes the
// bootloader region, 'c' covers firmware only.
func newImageCRCCommand(destructive bool) asciiCommand {
	b := byte('c')
	if destructive {
		b = 'v'
	}
	return asciiCommand{Byte: b, ResponseLen: 18, Pattern: crcPattern}
}

// newUserDataCRCCommand builds the user-data CRC read command.
func newUserDataCRCCommand() asciiCommand {
	return asciiCommand{Byte: 'n', ResponseLen: 18, Pattern: regexp.MustCompile(`CRC: 00000000`)}
}

// newResetCommand builds the reset command.
func newResetCommand() asciiCommand {
	return asciiCommand{Byte: 'r', ResponseLen: 1, Pattern: echoRPattern}
}

// bootloaderVersion holds the parsed fields of an identity response.
type bootloaderVersion struct {
	Major, Minor int
	ChipID       string
}

// String renders the version as "major.minor", e.g. "1.01".
func (v bootloaderVersion) String() string {
	return strconv.Itoa(v.Major) + "." + padTwoDigits(v.Minor)
}

func padTwoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// parseIdentityResponse extracts the bootloader version and chip ID from a
// raw identity response. The parser reads a fixed substring slice via the
// identityPattern capture groups, so a two-digit major version is rejected
// as an unexpected response rather than silently misparsed.
func parseIdentityResponse(raw []byte) (bootloaderVersion, error) {
	m := identityPattern.FindSubmatch(raw)
	if m == nil {
		return bootloaderVersion{}, &UnexpectedResponseError{Raw: raw}
	}
	major, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return bootloaderVersion{}, errors.Wrap(err, "parse bootloader major version")
	}
	minor, err := strconv.Atoi(string(m[2]))
	if err != nil {
		return bootloaderVersion{}, errors.Wrap(err, "parse bootloader minor version")
	}
	return bootloaderVersion{Major: major, Minor: minor, ChipID: string(m[3])}, nil
}

// parseCRCResponse extracts the trailing four hex digits from a raw
// "CRC: 0000XXXX" response.
func parseCRCResponse(raw []byte) (string, error) {
	if !crcPattern.Match(raw) && !regexp.MustCompile(`CRC: 00000000`).Match(raw) {
		return "", &UnexpectedResponseError{Raw: raw}
	}
	if len(raw) < 4 {
		return "", &UnexpectedResponseError{Raw: raw}
	}
	return string(raw[len(raw)-4:]), nil
}
