package audiomoth

import (
	"context"
	"regexp"
	"time"

	"github.com/pkg/errors"
)

// Confirmer lets the dispatcher ask the embedding UI for permission before
// a destructive write to a device that is currently running firmware.
type Confirmer interface {
	Confirm(question string) bool
}

// releasedFirmwarePattern matches the filenames the project publishes as
// paired firmware+bootloader release artifacts; these are meant to be
// written destructively without a confirmation prompt.
var releasedFirmwarePattern = regexp.MustCompile(`(?i)^audiomoth-\d+\.\d+\.\d+\.bin$`)

// Options is one flash job's immutable input, per the Flash job data model.
type Options struct {
	Image         []byte
	Filename      string
	Destructive   bool
	ClearUserData bool
	PreferUSBHID  bool
	ExpectedCRC   string

	// Version is an optional label for progress text, e.g. the firmware
	// version being written. The flasher never parses or acts on it.
	Version string
}

// Dispatcher orchestrates probe, optional bootloader update, flasher
// selection and completion reporting. Its single public operation is Flash.
type Dispatcher struct {
	sess    session
	finder  PortFinder
	openHID func() (HIDChannel, error)
	confirm Confirmer
	sink    ProgressSink
	profile DeviceProfile
}

// NewDispatcher builds a Dispatcher wired to the real OS transports.
func NewDispatcher(confirm Confirmer, sink ProgressSink) *Dispatcher {
	if sink == nil {
		sink = NopProgressSink{}
	}
	return &Dispatcher{
		finder:  NewPortFinder(),
		openHID: OpenHIDChannel,
		confirm: confirm,
		sink:    sink,
	}
}

// NewDispatcherWithProfile builds a Dispatcher retargeted at a device
// variant's USB identifiers and size limits.
func NewDispatcherWithProfile(confirm Confirmer, sink ProgressSink, profile DeviceProfile) *Dispatcher {
	if sink == nil {
		sink = NopProgressSink{}
	}
	return &Dispatcher{
		finder:  NewPortFinderWithProfile(profile),
		openHID: func() (HIDChannel, error) { return OpenHIDChannelWithProfile(profile) },
		confirm: confirm,
		sink:    sink,
		profile: profile,
	}
}

// IsBusy reports whether a Flash call is currently in flight. An embedder
// that polls device presence on a timer should check this before every
// probe tick and skip the tick while true, so a background poll never races
// a live transport that a Flash call already owns.
func (d *Dispatcher) IsBusy() bool {
	return d.sess.isBusy()
}

// Flash runs the selection policy of §4.6 and drives the chosen flasher
// engine to completion. Only one Flash call may be in flight on a
// Dispatcher at a time; a concurrent call fails immediately with ErrBusy.
func (d *Dispatcher) Flash(ctx context.Context, opts Options) (_ Result, err error) {
	id, err := d.sess.begin()
	if err != nil {
		return Result{}, err
	}
	defer d.sess.end()
	// Once a flasher engine is called it reports Completed or Aborted
	// itself; errors returned before that are reported here.
	flasherStarted := false
	defer func() {
		if err != nil && !flasherStarted {
			d.sink.Aborted(err)
		}
	}()
	sessionID := id.String()
	pkgLog.Debugf("flash %s: session started, destructive=%v preferUSBHID=%v", sessionID, opts.Destructive, opts.PreferUSBHID)

	d.sink.Version(opts.Version)

	status, err := Probe(ctx, d.finder, d.openHID)
	if err != nil {
		return Result{}, err
	}

	if opts.Destructive && status.Mode != Absent && status.Mode != InSerialBootloader {
		if !releasedFirmwarePattern.MatchString(opts.Filename) {
			if d.confirm == nil || !d.confirm.Confirm("This will overwrite the device's bootloader. Continue?") {
				return Result{}, ErrUserAborted
			}
		}
	}

	useHID := opts.PreferUSBHID && status.USBHID && !opts.Destructive && status.Mode != InSerialBootloader

	if useHID {
		if err := validateImageWithProfile(opts.Image, false, true, d.profile); err != nil {
			return Result{}, err
		}
		ch, err := d.openHID()
		if err != nil {
			return Result{}, err
		}
		defer ch.Close()
		flasherStarted = true
		return FlashUSBHID(ctx, ch, HIDJob{
			SessionID:     sessionID,
			Image:         opts.Image,
			ClearUserData: opts.ClearUserData,
			ExpectedCRC:   opts.ExpectedCRC,
		}, d.sink)
	}

	if err := validateImageWithProfile(opts.Image, opts.Destructive, false, d.profile); err != nil {
		return Result{}, err
	}

	port := status.SerialPort
	if status.Mode == RunningAutoSwitch {
		port, err = d.switchToBootloaderAndAwaitPort(ctx)
		if err != nil {
			return Result{}, err
		}
	}
	if port == "" {
		return Result{}, &DeviceUnreachableError{Op: "locate serial bootloader port"}
	}

	flasherStarted = true
	return FlashXMODEM(ctx, XMODEMJob{
		SessionID:      sessionID,
		Port:           port,
		Image:          opts.Image,
		Destructive:    opts.Destructive,
		ClearUserData:  opts.ClearUserData,
		ExpectedCRC:    opts.ExpectedCRC,
		AllowBootstrap: true,
	}, d.sink, d.finder)
}

const (
	bootloaderSwitchTimeout  = 10 * time.Second
	bootloaderSwitchInterval = 100 * time.Millisecond
)

// switchToBootloaderAndAwaitPort issues switchToBootloader over HID, then
// polls port discovery until the serial bootloader port appears.
func (d *Dispatcher) switchToBootloaderAndAwaitPort(ctx context.Context) (string, error) {
	ch, err := d.openHID()
	if err != nil {
		return "", err
	}
	defer ch.Close()
	if _, err := ch.SwitchToBootloader(ctx); err != nil {
		return "", errors.Wrap(ErrBootloaderSwitchFailed, err.Error())
	}

	deadline := time.Now().Add(bootloaderSwitchTimeout)
	for time.Now().Before(deadline) {
		if path, ok, err := d.finder.FindBootloaderPort(); err == nil && ok {
			return path, nil
		}
		if err := sleepCtx(ctx, bootloaderSwitchInterval); err != nil {
			return "", err
		}
	}
	return "", ErrBootloaderSwitchFailed
}
