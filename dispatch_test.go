package audiomoth

import (
	"context"
	"testing"
)

type alwaysConfirm struct{ answer bool }

func (a alwaysConfirm) Confirm(string) bool { return a.answer }

func TestDispatcherBusyGuard(t *testing.T) {
	d := &Dispatcher{
		finder:  &fakePortFinder{present: true, path: "/dev/fake"},
		openHID: func() (HIDChannel, error) { return nil, &DeviceUnreachableError{Op: "open"} },
		sink:    NopProgressSink{},
	}
	if _, err := d.sess.begin(); err != nil {
		t.Fatalf("unexpected error acquiring session: %v", err)
	}
	defer d.sess.end()

	_, err := d.Flash(context.Background(), Options{Image: testImage(64)})
	if err != ErrBusy {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestDispatcherIsBusy(t *testing.T) {
	d := &Dispatcher{
		finder:  &fakePortFinder{present: true, path: "/dev/fake"},
		openHID: func() (HIDChannel, error) { return nil, &DeviceUnreachableError{Op: "open"} },
		sink:    NopProgressSink{},
	}
	if d.IsBusy() {
		t.Fatal("expected a fresh dispatcher not to be busy")
	}
	if _, err := d.sess.begin(); err != nil {
		t.Fatalf("unexpected error acquiring session: %v", err)
	}
	if !d.IsBusy() {
		t.Fatal("expected IsBusy to report true while a session is held")
	}
	d.sess.end()
	if d.IsBusy() {
		t.Fatal("expected IsBusy to report false once the session is released")
	}
}

func TestDispatcherRejectsOversizedImage(t *testing.T) {
	d := &Dispatcher{
		finder:  &fakePortFinder{present: true, path: "/dev/fake"},
		openHID: func() (HIDChannel, error) { return nil, &DeviceUnreachableError{Op: "open"} },
		sink:    NopProgressSink{},
	}
	oversized := append(testImage(4), make([]byte, MaxDestructive)...)
	_, err := d.Flash(context.Background(), Options{Image: oversized})
	if _, ok := err.(*InvalidImageError); !ok {
		t.Fatalf("expected InvalidImageError, got %v", err)
	}
}

func TestDispatcherDestructiveWithoutConfirmationAborts(t *testing.T) {
	ch := &fakeHIDChannel{}
	ch.queue([]byte{0, 0, 0x01})
	ch.queue([]byte{0, 0, 0x01})
	ch.queue([]byte{0, 0, '1', '.', '0', 0})
	ch.queue([]byte{0, 0, 'd', 0})

	d := &Dispatcher{
		finder:  &fakePortFinder{present: false},
		openHID: func() (HIDChannel, error) { return ch, nil },
		confirm: alwaysConfirm{answer: false},
		sink:    NopProgressSink{},
	}

	_, err := d.Flash(context.Background(), Options{
		Image:       testImage(64),
		Filename:    "custom-experiment.bin",
		Destructive: true,
	})
	if err != ErrUserAborted {
		t.Fatalf("expected ErrUserAborted, got %v", err)
	}
}

func TestDispatcherReleasedFirmwarePatternSkipsConfirmation(t *testing.T) {
	if !releasedFirmwarePattern.MatchString("AudioMoth-1.9.2.bin") {
		t.Fatal("expected a versioned release filename to match the released-firmware pattern")
	}
	if releasedFirmwarePattern.MatchString("my-custom-build.bin") {
		t.Fatal("expected a custom filename not to match the released-firmware pattern")
	}
}

func TestDispatcherAbsentDeviceFailsFast(t *testing.T) {
	d := &Dispatcher{
		finder:  &fakePortFinder{},
		openHID: func() (HIDChannel, error) { return nil, &DeviceUnreachableError{Op: "open"} },
		sink:    NopProgressSink{},
	}
	_, err := d.Flash(context.Background(), Options{Image: testImage(64)})
	if _, ok := err.(*DeviceUnreachableError); !ok {
		t.Fatalf("expected DeviceUnreachableError, got %v", err)
	}
}
