package audiomoth

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors that don't carry extra context beyond their message.
var (
	// ErrBusy is returned by Dispatcher.Flash when another job is already in flight.
	ErrBusy = errors.New("audiomoth: another flash job is already in progress")

	// ErrUserAborted is returned when a Confirmer declines a confirmation prompt.
	ErrUserAborted = errors.New("audiomoth: user declined confirmation")

	// ErrPortClosed is returned when the serial port is lost mid-transfer.
	ErrPortClosed = errors.New("audiomoth: serial port closed unexpectedly")

	// ErrReadyTimeout is returned when the device never replies "Ready" to a write request.
	ErrReadyTimeout = errors.New("audiomoth: device did not respond Ready in time")

	// ErrFlashStalled is returned when a single XMODEM block exceeds its retry budget.
	ErrFlashStalled = errors.New("audiomoth: block exceeded its retry budget")

	// ErrCRCTimeout is returned when the device never finishes computing an SRAM image CRC.
	ErrCRCTimeout = errors.New("audiomoth: device did not report a computed CRC in time")

	// ErrUserDataClearFailed is returned when the user-data clear sub-protocol fails.
	ErrUserDataClearFailed = errors.New("audiomoth: user data clear failed")

	// ErrBootloaderSwitchFailed is returned when a requested mode switch does not
	// result in the device re-enumerating as a serial bootloader.
	ErrBootloaderSwitchFailed = errors.New("audiomoth: device did not switch to the bootloader")
)

// DeviceUnreachableError indicates the HID channel produced no usable
// response after exhausting its attempt loop.
type DeviceUnreachableError struct {
	Op string
}

func (e *DeviceUnreachableError) Error() string {
	return fmt.Sprintf("audiomoth: device unreachable during %s", e.Op)
}

// PortUnavailableError indicates the serial port could not be opened after retries.
type PortUnavailableError struct {
	Port string
	Err  error
}

func (e *PortUnavailableError) Error() string {
	return fmt.Sprintf("audiomoth: could not open port %s: %v", e.Port, e.Err)
}

func (e *PortUnavailableError) Unwrap() error { return e.Err }

// UnexpectedResponseError indicates bytes were received but did not match
// the pattern the caller was waiting for.
type UnexpectedResponseError struct {
	Raw []byte
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("audiomoth: unexpected response: % X", e.Raw)
}

// TimeoutError indicates a per-operation timer elapsed with no response.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("audiomoth: timed out waiting for %s", e.Op)
}

// CRCMismatchError indicates the device-reported image CRC did not match
// the CRC the sender expected.
type CRCMismatchError struct {
	Expected string
	Actual   string
}

func (e *CRCMismatchError) Error() string {
	return fmt.Sprintf("audiomoth: CRC mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// InvalidImageError indicates the image failed a size gate or the
// reset-vector validity heuristic before any device interaction occurred.
type InvalidImageError struct {
	Reason string
}

func (e *InvalidImageError) Error() string {
	return fmt.Sprintf("audiomoth: invalid image: %s", e.Reason)
}
