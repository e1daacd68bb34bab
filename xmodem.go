package audiomoth

import (
	"context"
	"regexp"
	"time"

	"github.com/pkg/errors"
)

// XMODEM control bytes.
const (
	xSOH byte = 0x01
	xEOF byte = 0x04
	xACK byte = 0x06
)

const (
	xmodemBlockSize = 128
	xmodemFrameSize = 1 + 1 + 1 + xmodemBlockSize + 2

	maxPortOpenAttempts = 5
	portOpenBackoffBase = 500 * time.Millisecond

	readyRetries      = 7
	readyBackoffBase  = 100 * time.Millisecond
	blockACKTimeout   = 1500 * time.Millisecond
	maxBlockRepeats   = 10
	userDataRetries   = 5
	userDataBackoff   = 100 * time.Millisecond
	resetPollTimeout  = 7500 * time.Millisecond
	resetPollInterval = 100 * time.Millisecond

	updaterExpectedCRC = "A435"
)

// XMODEMJob describes one XMODEM-CRC flash request.
type XMODEMJob struct {
	// SessionID correlates this job's log lines with the Dispatcher session
	// that issued it; empty when FlashXMODEM is called directly.
	SessionID      string
	Port           string
	Image          []byte
	Destructive    bool
	ClearUserData  bool
	ExpectedCRC    string
	AllowBootstrap bool // permits the recursive bootloader-updater sub-flash
}

// xstate is one state of the XMODEM flasher's finite-state machine. Each
// function performs its work and returns the next state, mirroring the
// callback chains of the reference bootloader tooling but made explicit so
// the whole transfer can be read top to bottom.
type xstate func(*xmodemSession) (xstate, error)

// xmodemSession carries the state threaded between xstate functions.
type xmodemSession struct {
	ctx    context.Context
	job    XMODEMJob
	sink   ProgressSink
	finder PortFinder
	open   func(string) (SerialPort, error)
	clock  Clock // nil means systemClock; tests inject a fake to skip real backoff waits

	port SerialPort

	version     bootloaderVersion
	receivedCRC string
}

// FlashXMODEM drives the serial bootloader through the state machine of
// §4.4: ready handshake, an optional bootloader-updater sub-flash, an
// optional user-data clear, block transmission, EOF, CRC verification and
// reset.
func FlashXMODEM(ctx context.Context, job XMODEMJob, sink ProgressSink, finder PortFinder) (Result, error) {
	if sink == nil {
		sink = NopProgressSink{}
	}
	if err := validateImage(job.Image, job.Destructive, false); err != nil {
		sink.Aborted(err)
		return Result{}, err
	}

	s := &xmodemSession{
		ctx:    ctx,
		job:    job,
		sink:   sink,
		finder: finder,
		open:   openSerialPortCtx,
		clock:  systemClock,
	}

	defer func() {
		if s.port != nil {
			s.port.Close()
		}
	}()

	pkgLog.Debugf("flash %s: xmodem session starting on %s", job.SessionID, job.Port)

	state := xstate(stateOpeningPort)
	var err error
	for state != nil {
		state, err = state(s)
		if err != nil {
			pkgLog.Debugf("flash %s: xmodem session aborted: %v", job.SessionID, err)
			sink.Aborted(err)
			return Result{}, err
		}
	}
	pkgLog.Debugf("flash %s: xmodem session completed, CRC %s", job.SessionID, s.receivedCRC)
	sink.Completed()
	return Result{ReceivedCRC: s.receivedCRC}, nil
}

// openSerialPortCtx wraps OpenSerialPort; it exists so tests can substitute
// a fake opener via xmodemSession.open.
func openSerialPortCtx(name string) (SerialPort, error) {
	return OpenSerialPort(name)
}

func stateOpeningPort(s *xmodemSession) (xstate, error) {
	var lastErr error
	for attempt := 0; attempt < maxPortOpenAttempts; attempt++ {
		pkgLog.Debugf("flash %s: opening port %s, attempt %d", s.job.SessionID, s.job.Port, attempt+1)
		s.sink.Opening(attempt + 1)
		if attempt > 0 {
			if err := sleepCtxClock(s.ctx, backoff(portOpenBackoffBase, attempt), s.clock); err != nil {
				return nil, err
			}
		}
		p, err := s.open(s.job.Port)
		if err == nil {
			s.port = p
			return stateReadyCheck, nil
		}
		lastErr = err
	}
	return nil, &PortUnavailableError{Port: s.job.Port, Err: lastErr}
}

func stateReadyCheck(s *xmodemSession) (xstate, error) {
	cmd := newReadyCommand(s.job.Destructive)
	for attempt := 0; attempt < readyRetries; attempt++ {
		s.sink.ReadyCheck(attempt + 1)
		if attempt > 0 {
			if err := sleepCtxClock(s.ctx, backoff(readyBackoffBase, attempt), s.clock); err != nil {
				return nil, err
			}
		}
		if err := s.port.Write(cmd.GetBytes()); err != nil {
			continue
		}
		_, err := s.port.AwaitResponse(s.ctx, cmd.ResponseLen, cmd.Pattern, 500*time.Millisecond)
		if err == nil {
			return stateCheckingBootloaderVersion, nil
		}
	}
	return nil, errors.Wrap(ErrReadyTimeout, "ready handshake")
}

func stateCheckingBootloaderVersion(s *xmodemSession) (xstate, error) {
	s.sink.CheckingBootloader()
	cmd := newIdentityCommand()
	if err := s.port.Write(cmd.GetBytes()); err != nil {
		return nil, errors.Wrap(err, "send identity command")
	}
	raw, err := s.port.AwaitResponse(s.ctx, cmd.ResponseLen, cmd.Pattern, 2*time.Second)
	if err != nil {
		return nil, errors.Wrap(err, "await identity response")
	}
	v, err := parseIdentityResponse(raw)
	if err != nil {
		return nil, err
	}
	s.version = v

	if s.job.AllowBootstrap && (v.String() == "1.00" || v.String() == "1.01") {
		pkgLog.Infof("flash %s: bootloader version %s is obsolete, running updater sub-flash", s.job.SessionID, v.String())
		return stateUpdatingBootloader, nil
	}
	if s.job.ClearUserData {
		return stateClearUserData, nil
	}
	return stateSending, nil
}

// stateUpdatingBootloader recursively runs the XMODEM protocol with the
// built-in updater image before continuing the original job. The dispatcher
// never sees this sub-flash; it is self-contained inside the flasher, since
// nothing about it needs the dispatcher's device-mode logic.
func stateUpdatingBootloader(s *xmodemSession) (xstate, error) {
	updater, err := embeddedUpdaterImage()
	if err != nil {
		return nil, errors.Wrap(err, "load embedded bootloader updater")
	}

	sub := XMODEMJob{
		SessionID:   s.job.SessionID,
		Port:        s.job.Port,
		Image:       updater,
		Destructive: false,
		ExpectedCRC: updaterExpectedCRC,
	}
	subSession := &xmodemSession{
		ctx:    s.ctx,
		job:    sub,
		sink:   s.sink,
		finder: s.finder,
		open:   s.open,
		clock:  s.clock,
		port:   s.port,
	}
	// The sub-flash negotiates its own non-destructive Ready handshake
	// rather than inheriting the outer job's; the updater image is always
	// written under non-destructive semantics regardless of the original
	// job's Destructive flag.
	state := xstate(stateReadyCheck)
	for state != nil {
		state, err = state(subSession)
		if err != nil {
			return nil, errors.Wrap(err, "bootloader-updater sub-flash")
		}
	}

	s.port = nil
	return stateOpeningPort, nil
}

func stateClearUserData(s *xmodemSession) (xstate, error) {
	cmd := newClearReadyCommand()
	if err := s.port.Write(cmd.GetBytes()); err != nil {
		return nil, errors.Wrap(err, "send clear-user-data ready command")
	}
	if _, err := s.port.AwaitResponse(s.ctx, cmd.ResponseLen, cmd.Pattern, 500*time.Millisecond); err != nil {
		return nil, errors.Wrap(ErrUserDataClearFailed, "clear-user-data ready handshake")
	}

	blank := make([]byte, xmodemBlockSize)
	const clearBlocks = 16
	for n := 1; n <= clearBlocks; n++ {
		frame := buildXMODEMFrame(n, blank)
		if err := sendBlockUntilACK(s, n, frame); err != nil {
			return nil, errors.Wrap(ErrUserDataClearFailed, err.Error())
		}
	}
	if err := s.port.Write([]byte{xEOF}); err != nil {
		return nil, errors.Wrap(ErrUserDataClearFailed, "send EOF")
	}
	if _, err := s.port.AwaitResponse(s.ctx, 1, ackPattern, blockACKTimeout); err != nil {
		return nil, errors.Wrap(ErrUserDataClearFailed, "await EOF ack")
	}

	udCmd := newUserDataCRCCommand()
	for attempt := 0; attempt < userDataRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtxClock(s.ctx, backoff(userDataBackoff, attempt), s.clock); err != nil {
				return nil, err
			}
		}
		if err := s.port.Write(udCmd.GetBytes()); err != nil {
			continue
		}
		if _, err := s.port.AwaitResponse(s.ctx, udCmd.ResponseLen, udCmd.Pattern, 500*time.Millisecond); err == nil {
			return stateSending, nil
		}
	}
	return nil, ErrUserDataClearFailed
}

// buildXMODEMFrame constructs the 133-byte on-wire frame for block n.
func buildXMODEMFrame(n int, payload []byte) []byte {
	frame := make([]byte, xmodemFrameSize)
	frame[0] = xSOH
	frame[1] = byte(n)
	frame[2] = 0xFF - byte(n)
	copy(frame[3:], payload)
	crc := blockCRC16(payload)
	frame[3+xmodemBlockSize] = byte(crc >> 8)
	frame[3+xmodemBlockSize+1] = byte(crc)
	return frame
}

// ackPattern matches the single-byte ACK response to a block, EOF, or the
// user-data clear's EOF.
var ackPattern = regexp.MustCompile(string([]byte{xACK}))

func stateSending(s *xmodemSession) (xstate, error) {
	padded := padToBlocks(s.job.Image, xmodemBlockSize, imageCRCPadByte)
	nBlocks := len(padded) / xmodemBlockSize

	for n := 1; n <= nBlocks; n++ {
		s.sink.Flashing(nBlocks, n)
		start := (n - 1) * xmodemBlockSize
		frame := buildXMODEMFrame(n, padded[start:start+xmodemBlockSize])
		if err := sendBlockUntilACK(s, n, frame); err != nil {
			return nil, err
		}
	}
	return stateConfirmingEOF, nil
}

// sendBlockUntilACK implements the stop-and-wait retry discipline of §4.4:
// on any timeout or write error the sender resends the same block. The
// spec's abstract sliding-window formula folds back to this for a
// single-outstanding-block sender — its own worked example (block 17
// timing out once and simply being resent) never has the cursor advance
// past lower before an ACK is seen.
func sendBlockUntilACK(s *xmodemSession, n int, frame []byte) error {
	for repeats := 0; ; repeats++ {
		if repeats >= maxBlockRepeats {
			return errors.Wrapf(ErrFlashStalled, "block %d", n)
		}
		if err := s.port.Write(frame); err != nil {
			if err := s.port.Flush(); err != nil {
				return errors.Wrapf(err, "flush after write error on block %d", n)
			}
			continue
		}
		if _, err := s.port.AwaitResponse(s.ctx, 1, ackPattern, blockACKTimeout); err == nil {
			return nil
		}
	}
}

func stateConfirmingEOF(s *xmodemSession) (xstate, error) {
	if err := s.port.Write([]byte{xEOF}); err != nil {
		return nil, errors.Wrap(err, "send EOF")
	}
	if _, err := s.port.AwaitResponse(s.ctx, 1, ackPattern, blockACKTimeout); err != nil {
		return nil, errors.Wrap(err, "await EOF ack")
	}
	return stateCRCCheck, nil
}

func stateCRCCheck(s *xmodemSession) (xstate, error) {
	cmd := newImageCRCCommand(s.job.Destructive)
	if err := s.port.Write(cmd.GetBytes()); err != nil {
		return nil, errors.Wrap(err, "send CRC command")
	}
	raw, err := s.port.AwaitResponse(s.ctx, cmd.ResponseLen, cmd.Pattern, 2*time.Second)
	if err != nil {
		return nil, errors.Wrap(err, "await CRC response")
	}
	crc, err := parseCRCResponse(raw)
	if err != nil {
		return nil, err
	}
	s.receivedCRC = crc

	if s.job.ExpectedCRC != "" && crc != s.job.ExpectedCRC {
		return nil, &CRCMismatchError{Expected: s.job.ExpectedCRC, Actual: crc}
	}
	return stateResetting, nil
}

func stateResetting(s *xmodemSession) (xstate, error) {
	cmd := newResetCommand()
	if err := s.port.Write(cmd.GetBytes()); err != nil {
		return nil, errors.Wrap(err, "send reset command")
	}
	_, _ = s.port.AwaitResponse(s.ctx, cmd.ResponseLen, cmd.Pattern, 500*time.Millisecond)
	_ = s.port.Close()

	if s.finder == nil {
		return nil, nil
	}

	s.sink.Restarting(int(resetPollTimeout / time.Millisecond))
	deadline := time.Now().Add(resetPollTimeout)
	elapsed := 0
	for time.Now().Before(deadline) {
		_, present, err := s.finder.FindBootloaderPort()
		if err == nil && !present {
			return nil, nil
		}
		if err := sleepCtxClock(s.ctx, resetPollInterval, s.clock); err != nil {
			return nil, err
		}
		elapsed += int(resetPollInterval / time.Millisecond)
		s.sink.Restart(elapsed)
	}
	return nil, nil
}
