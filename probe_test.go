package audiomoth

import (
	"context"
	"testing"
)

func TestProbeFindsSerialBootloader(t *testing.T) {
	finder := &fakePortFinder{path: "/dev/ttyUSB0", present: true}
	status, err := Probe(context.Background(), finder, func() (HIDChannel, error) {
		t.Fatal("should not open HID when a serial bootloader port is present")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Mode != InSerialBootloader || status.SerialPort != "/dev/ttyUSB0" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestProbeAbsentWhenHIDUnreachable(t *testing.T) {
	finder := &fakePortFinder{}
	status, err := Probe(context.Background(), finder, func() (HIDChannel, error) {
		return nil, &DeviceUnreachableError{Op: "open"}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Mode != Absent {
		t.Fatalf("expected Absent, got %v", status.Mode)
	}
}

func TestProbeRunningAutoSwitch(t *testing.T) {
	finder := &fakePortFinder{}
	ch := &fakeHIDChannel{}
	ch.queue([]byte{0, 0, 0x01})             // queryUSBHIDBootloader: usbhid=true
	ch.queue([]byte{0, 0, 0x01})             // query: supportsAutoSwitch=true
	ch.queue([]byte{0, 0, '1', '.', '0', 0}) // getFirmwareVersion
	ch.queue([]byte{0, 0, 'd', 'e', 's', 'c', 0})

	status, err := Probe(context.Background(), finder, func() (HIDChannel, error) { return ch, nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Mode != RunningAutoSwitch {
		t.Fatalf("expected RunningAutoSwitch, got %v", status.Mode)
	}
	if !status.USBHID {
		t.Fatal("expected USBHID support to be reported")
	}
	if status.FWVersion != "1.0" {
		t.Fatalf("expected FWVersion '1.0', got %q", status.FWVersion)
	}
}

func TestProbeRunningManual(t *testing.T) {
	finder := &fakePortFinder{}
	ch := &fakeHIDChannel{}
	ch.queue([]byte{0, 0, 0x00}) // queryUSBHIDBootloader: false
	ch.queue([]byte{0, 0, 0x00}) // query: supportsAutoSwitch=false
	ch.queue([]byte{0, 0, '2', '.', '0', 0})
	ch.queue([]byte{0, 0, 'd', 0})

	status, err := Probe(context.Background(), finder, func() (HIDChannel, error) { return ch, nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Mode != RunningManual {
		t.Fatalf("expected RunningManual, got %v", status.Mode)
	}
}

func TestParseASCIIPayloadStripsHeaderAndNuls(t *testing.T) {
	raw := []byte{0xAA, 0xBB, 'h', 'i', 0, 0, 0}
	if got := parseASCIIPayload(raw); got != "hi" {
		t.Fatalf("expected 'hi', got %q", got)
	}
}

func TestDeviceModeString(t *testing.T) {
	modes := []DeviceMode{Absent, InSerialBootloader, RunningAutoSwitch, RunningManual}
	for _, m := range modes {
		if m.String() == "unknown" {
			t.Fatalf("expected a named string for mode %d", m)
		}
	}
}
