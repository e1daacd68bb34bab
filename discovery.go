package audiomoth

import (
	"strconv"
	"strings"

	"go.bug.st/serial/enumerator"
)

// PortFinder locates the device's serial port by USB identifier. It is
// satisfied by realPortFinder; tests substitute a fake.
type PortFinder interface {
	// FindBootloaderPort returns the OS path of the first serial port
	// whose USB identifiers match the device's serial-bootloader profile
	// (vendor in {10C4, 2544}, product 0003). ok is false if none is found.
	FindBootloaderPort() (path string, ok bool, err error)
}

// realPortFinder enumerates OS serial ports via go.bug.st/serial's USB
// detail enumerator, which tarm/serial (used for the actual byte transport)
// does not expose.
type realPortFinder struct {
	vids          []uint16
	bootloaderPID uint16
}

// NewPortFinder returns the default, OS-backed PortFinder for the built-in
// vendor IDs and bootloader product ID.
func NewPortFinder() PortFinder {
	return realPortFinder{vids: runningFirmwareVIDs, bootloaderPID: pidBootloader}
}

// NewPortFinderWithProfile returns an OS-backed PortFinder honoring a
// DeviceProfile's USB identifier overrides.
func NewPortFinderWithProfile(p DeviceProfile) PortFinder {
	pid := uint16(pidBootloader)
	if v, ok := parseHexID(p.BootloaderPID); ok {
		pid = v
	}
	return realPortFinder{vids: p.resolvedVIDs(), bootloaderPID: pid}
}

func (f realPortFinder) FindBootloaderPort() (string, bool, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", false, err
	}
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		vid, ok1 := parseHexID(p.VID)
		pid, ok2 := parseHexID(p.PID)
		if !ok1 || !ok2 {
			continue
		}
		if pid != f.bootloaderPID {
			continue
		}
		for _, want := range f.vids {
			if vid == want {
				return p.Name, true, nil
			}
		}
	}
	return "", false, nil
}

// parseHexID parses the hex VID/PID strings go.bug.st/serial returns
// (e.g. "10C4"), tolerating an optional "0x" prefix.
func parseHexID(s string) (uint16, bool) {
	s = strings.TrimPrefix(strings.ToUpper(s), "0X")
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, false
	}
	return uint16(v), true
}
