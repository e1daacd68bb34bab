package audiomoth

import (
	"context"
	"time"
)

// BootloaderIdentity is the exported shape of a serial bootloader's
// identity response, for callers that want to query it directly outside a
// flash job (e.g. the CLI's "ver" subcommand).
type BootloaderIdentity struct {
	Version string
	ChipID  string
}

// ReadBootloaderIdentity sends the identity command to a device already
// sitting in the serial bootloader and parses its response.
func ReadBootloaderIdentity(ctx context.Context, port SerialPort) (BootloaderIdentity, error) {
	cmd := newIdentityCommand()
	if err := port.Write(cmd.GetBytes()); err != nil {
		return BootloaderIdentity{}, err
	}
	raw, err := port.AwaitResponse(ctx, cmd.ResponseLen, cmd.Pattern, 2*time.Second)
	if err != nil {
		return BootloaderIdentity{}, err
	}
	v, err := parseIdentityResponse(raw)
	if err != nil {
		return BootloaderIdentity{}, err
	}
	return BootloaderIdentity{Version: v.String(), ChipID: v.ChipID}, nil
}

// ReadImageCRC sends the image-CRC command to a device already sitting in
// the serial bootloader and returns the reported four-hex-digit CRC.
func ReadImageCRC(ctx context.Context, port SerialPort, destructive bool) (string, error) {
	cmd := newImageCRCCommand(destructive)
	if err := port.Write(cmd.GetBytes()); err != nil {
		return "", err
	}
	raw, err := port.AwaitResponse(ctx, cmd.ResponseLen, cmd.Pattern, 2*time.Second)
	if err != nil {
		return "", err
	}
	return parseCRCResponse(raw)
}
