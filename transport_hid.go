package audiomoth

import (
	"context"

	"github.com/pkg/errors"
	hid "github.com/sstallion/go-hid"
)

// USB identifiers for the two personalities the device can enumerate as.
const (
	vidSiliconLabs = 0x10C4
	vidEnergyMicro = 0x2544
	pidRunning     = 0x0002
	pidBootloader  = 0x0003
)

var runningFirmwareVIDs = []uint16{vidSiliconLabs, vidEnergyMicro}

// HIDChannel is the request/response packet channel to the device's
// bootloader over USB-HID. It is satisfied by hidChannel; tests substitute
// a fake.
type HIDChannel interface {
	Query(ctx context.Context) ([]byte, error)
	QueryUSBHIDBootloader(ctx context.Context) ([]byte, error)
	GetFirmwareVersion(ctx context.Context) ([]byte, error)
	GetFirmwareDescription(ctx context.Context) ([]byte, error)
	SwitchToBootloader(ctx context.Context) ([]byte, error)
	SendPacket(ctx context.Context, buf []byte) ([]byte, error)
	SendMultiple(ctx context.Context, bufs [][]byte) ([]byte, error)
	Close() error
}

// hidChannel implements HIDChannel over a real HID device opened with
// github.com/sstallion/go-hid.
type hidChannel struct {
	dev *hid.Device
}

// OpenHIDChannel opens the device by its running-firmware USB identifiers
// (VID 0x10C4 or 0x2544, PID 0x0002).
func OpenHIDChannel() (HIDChannel, error) {
	return openHIDChannelFor(runningFirmwareVIDs, pidRunning)
}

// OpenHIDChannelWithProfile opens the device using a DeviceProfile's
// vendor-ID and running-PID overrides in place of the built-in defaults.
func OpenHIDChannelWithProfile(p DeviceProfile) (HIDChannel, error) {
	pid := uint16(pidRunning)
	if v, ok := parseHexID(p.RunningPID); ok {
		pid = v
	}
	return openHIDChannelFor(p.resolvedVIDs(), pid)
}

func openHIDChannelFor(vids []uint16, pid uint16) (HIDChannel, error) {
	var dev *hid.Device
	var openErr error

	for _, vid := range vids {
		dev, openErr = hid.OpenFirst(vid, pid)
		if openErr == nil {
			return &hidChannel{dev: dev}, nil
		}
	}
	return nil, errors.Wrap(openErr, "open HID device")
}

func (h *hidChannel) transact(ctx context.Context, op string, buf []byte) ([]byte, error) {
	return withRetries(ctx, op, func() ([]byte, error) {
		if _, err := h.dev.Write(buf); err != nil {
			return nil, errors.Wrap(err, op)
		}
		resp := make([]byte, 64)
		n, err := h.dev.Read(resp)
		if err != nil {
			return nil, errors.Wrap(err, op)
		}
		if n == 0 {
			return nil, errors.Errorf("%s: empty response", op)
		}
		return resp[:n], nil
	})
}

// hidCommand byte values, first byte of each request. Response packets
// echo the command at byte [1].
const (
	hidCmdQuery                  = 0x01
	hidCmdQueryUSBHIDBootloader  = 0x0A
	hidCmdSwitchToBootloader     = 0x0B
	hidCmdGetFirmwareVersion     = 0x0C
	hidCmdGetFirmwareDescription = 0x0D
	hidCmdInitSRAM               = 0x02
	hidCmdClearUserData          = 0x03
	hidCmdSetSRAMFWPacket        = 0x04
	hidCmdCalcSRAMCRC            = 0x05
	hidCmdCalcFlashCRC           = 0x06
	hidCmdGetFWCRC               = 0x07
	hidCmdFlashFW                = 0x08
)

func (h *hidChannel) Query(ctx context.Context) ([]byte, error) {
	return h.transact(ctx, "query", []byte{hidCmdQuery})
}

func (h *hidChannel) QueryUSBHIDBootloader(ctx context.Context) ([]byte, error) {
	return h.transact(ctx, "queryUSBHIDBootloader", []byte{hidCmdQueryUSBHIDBootloader})
}

func (h *hidChannel) GetFirmwareVersion(ctx context.Context) ([]byte, error) {
	return h.transact(ctx, "getFirmwareVersion", []byte{hidCmdGetFirmwareVersion})
}

func (h *hidChannel) GetFirmwareDescription(ctx context.Context) ([]byte, error) {
	return h.transact(ctx, "getFirmwareDescription", []byte{hidCmdGetFirmwareDescription})
}

func (h *hidChannel) SwitchToBootloader(ctx context.Context) ([]byte, error) {
	return h.transact(ctx, "switchToBootloader", []byte{hidCmdSwitchToBootloader})
}

func (h *hidChannel) SendPacket(ctx context.Context, buf []byte) ([]byte, error) {
	return h.transact(ctx, "sendPacket", buf)
}

// SendMultiple issues a batch of packets as a single host-side transaction,
// as required by the USB-HID SRAM streaming step. Only the final response
// is returned to the caller; go-hid has no true multi-packet transaction
// primitive, so the batch is written back-to-back without intervening
// reads, and the device's last acknowledgement is collected at the end.
func (h *hidChannel) SendMultiple(ctx context.Context, bufs [][]byte) ([]byte, error) {
	return withRetries(ctx, "sendMultiple", func() ([]byte, error) {
		for _, buf := range bufs {
			if _, err := h.dev.Write(buf); err != nil {
				return nil, errors.Wrap(err, "sendMultiple")
			}
		}
		resp := make([]byte, 64)
		n, err := h.dev.Read(resp)
		if err != nil {
			return nil, errors.Wrap(err, "sendMultiple")
		}
		if n == 0 {
			return nil, errors.New("sendMultiple: empty response")
		}
		return resp[:n], nil
	})
}

func (h *hidChannel) Close() error {
	return h.dev.Close()
}
