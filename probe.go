package audiomoth

import "context"

// DeviceStatus is the classification produced by Probe.
type DeviceStatus struct {
	Mode DeviceMode

	// SerialPort is set when Mode is InSerialBootloader.
	SerialPort string

	// USBHID reports whether the running firmware supports the USB-HID
	// SRAM flashing path. Only meaningful when Mode is RunningAutoSwitch.
	USBHID bool

	// FWVersion and FWDescription are populated when Mode is
	// RunningAutoSwitch or RunningManual.
	FWVersion     string
	FWDescription string
}

// DeviceMode enumerates the five situations Probe can find the device in.
type DeviceMode int

const (
	// Absent means no device was found in either mode.
	Absent DeviceMode = iota
	// InSerialBootloader means the device is already running the serial bootloader.
	InSerialBootloader
	// RunningAutoSwitch means the device is running firmware that supports
	// an automatic mode switch and, possibly, USB-HID flashing.
	RunningAutoSwitch
	// RunningManual means the device is running firmware that only
	// supports a manual mode switch (e.g. holding a button while resetting).
	RunningManual
)

func (m DeviceMode) String() string {
	switch m {
	case Absent:
		return "absent"
	case InSerialBootloader:
		return "in serial bootloader"
	case RunningAutoSwitch:
		return "running firmware (auto-switch)"
	case RunningManual:
		return "running firmware (manual switch)"
	default:
		return "unknown"
	}
}

// Probe determines which of the five situations of §4.3 the device is
// currently in. It never overlaps a flash job — callers must not invoke it
// while a Dispatcher job is in flight.
func Probe(ctx context.Context, finder PortFinder, openHID func() (HIDChannel, error)) (DeviceStatus, error) {
	if path, ok, err := finder.FindBootloaderPort(); err != nil {
		return DeviceStatus{}, err
	} else if ok {
		return DeviceStatus{Mode: InSerialBootloader, SerialPort: path}, nil
	}

	ch, err := openHID()
	if err != nil {
		pkgLog.Debugf("probe: no HID device: %v", err)
		return DeviceStatus{Mode: Absent}, nil
	}
	defer ch.Close()

	usbhidResp, err1 := ch.QueryUSBHIDBootloader(ctx)
	bootloaderResp, err2 := ch.Query(ctx)
	verResp, err3 := ch.GetFirmwareVersion(ctx)
	descResp, err4 := ch.GetFirmwareDescription(ctx)

	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		pkgLog.Debugf("probe: HID sequence incomplete, treating device as absent")
		return DeviceStatus{Mode: Absent}, nil
	}

	usbhid := len(usbhidResp) > 2 && usbhidResp[2] != 0
	supportsAutoSwitch := len(bootloaderResp) > 2 && bootloaderResp[2] != 0
	version := parseASCIIPayload(verResp)
	description := parseASCIIPayload(descResp)

	if supportsAutoSwitch {
		return DeviceStatus{
			Mode:          RunningAutoSwitch,
			USBHID:        usbhid,
			FWVersion:     version,
			FWDescription: description,
		}, nil
	}
	return DeviceStatus{
		Mode:          RunningManual,
		FWVersion:     version,
		FWDescription: description,
	}, nil
}

// parseASCIIPayload strips the two-byte HID header (tag, command echo)
// and trailing NUL padding from a response, returning the ASCII payload.
func parseASCIIPayload(resp []byte) string {
	if len(resp) <= 2 {
		return ""
	}
	payload := resp[2:]
	end := len(payload)
	for end > 0 && payload[end-1] == 0 {
		end--
	}
	return string(payload[:end])
}
