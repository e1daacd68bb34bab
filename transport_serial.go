package audiomoth

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tarm/serial"
)

// SerialPort is the byte-oriented framer the XMODEM flasher speaks over.
// It is satisfied by serialPort; tests substitute a fake.
type SerialPort interface {
	Write(buf []byte) error
	AwaitResponse(ctx context.Context, minLen int, pattern *regexp.Regexp, timeout time.Duration) ([]byte, error)
	Flush() error
	Close() error
}

// serialPort implements SerialPort over github.com/tarm/serial at 9600 8-N-1.
//
// Exactly one outstanding AwaitResponse call is supported at a time; bytes
// that arrive before a matching request are buffered until the next call.
type serialPort struct {
	port *serial.Port

	mu      sync.Mutex
	buf     []byte
	closed  bool
	readErr error
}

// OpenSerialPort opens name at 9600 8-N-1 and starts its background reader.
func OpenSerialPort(name string) (SerialPort, error) {
	cfg := &serial.Config{
		Name:        name,
		Baud:        9600,
		ReadTimeout: 50 * time.Millisecond,
	}
	p, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "open serial port %s", name)
	}
	// On Linux with USB serial ports, flush works reliably only once
	// received data has made its way up the driver stack.
	time.Sleep(100 * time.Millisecond)
	p.Flush()

	sp := &serialPort{port: p}
	go sp.readLoop()
	return sp, nil
}

func (s *serialPort) readLoop() {
	chunk := make([]byte, 256)
	for {
		n, err := s.port.Read(chunk)
		s.mu.Lock()
		if n > 0 {
			s.buf = append(s.buf, chunk[:n]...)
		}
		if err != nil && !isSerialTimeout(err) {
			s.closed = true
			s.readErr = err
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
	}
}

// isSerialTimeout reports whether err is the tarm/serial per-read timeout,
// which is expected traffic in the read loop and not a port failure.
func isSerialTimeout(err error) bool {
	// tarm/serial returns io.EOF on Windows and a *PathError-wrapped
	// timeout on posix when ReadTimeout elapses with no data; treat
	// anything other than a hard close as transient.
	return err != nil && err.Error() != "EOF"
}

func (s *serialPort) Write(buf []byte) error {
	_, err := s.port.Write(buf)
	if err != nil {
		return errors.Wrap(err, "write serial port")
	}
	return nil
}

func (s *serialPort) AwaitResponse(ctx context.Context, minLen int, pattern *regexp.Regexp, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, errors.Wrap(ErrPortClosed, s.readErrString())
		}
		if len(s.buf) >= minLen {
			match := pattern.Find(s.buf)
			if match != nil {
				s.buf = s.buf[len(match):]
				s.mu.Unlock()
				return match, nil
			}
			raw := append([]byte(nil), s.buf...)
			s.buf = nil
			s.mu.Unlock()
			return nil, &UnexpectedResponseError{Raw: raw}
		}
		s.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, &TimeoutError{Op: "serial response"}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (s *serialPort) readErrString() string {
	if s.readErr == nil {
		return ""
	}
	return s.readErr.Error()
}

func (s *serialPort) Flush() error {
	return s.port.Flush()
}

func (s *serialPort) Close() error {
	s.mu.Lock()
	already := s.closed
	s.closed = true
	s.mu.Unlock()
	if already {
		return nil
	}
	return s.port.Close()
}
