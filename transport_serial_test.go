package audiomoth

import (
	"context"
	"regexp"
	"testing"
	"time"
)

func TestIsSerialTimeout(t *testing.T) {
	if isSerialTimeout(nil) {
		t.Error("nil error should not be treated as a timeout")
	}
	if !isSerialTimeout(errString("i/o timeout")) {
		t.Error("expected a non-EOF error to be treated as a transient timeout")
	}
}

type errString string

func (e errString) Error() string { return string(e) }

func TestAwaitResponseMatchesBufferedBytes(t *testing.T) {
	s := &serialPort{buf: []byte("junkReadyjunk")}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	match, err := s.AwaitResponse(ctx, 5, regexp.MustCompile("Ready"), 200*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(match) != "Ready" {
		t.Fatalf("expected match 'Ready', got %q", match)
	}
}

func TestAwaitResponseUnexpectedResponse(t *testing.T) {
	s := &serialPort{buf: []byte("nonsense")}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := s.AwaitResponse(ctx, 5, regexp.MustCompile("Ready"), 200*time.Millisecond)
	if _, ok := err.(*UnexpectedResponseError); !ok {
		t.Fatalf("expected UnexpectedResponseError, got %v", err)
	}
}

func TestAwaitResponseTimesOutWhenStarved(t *testing.T) {
	s := &serialPort{}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := s.AwaitResponse(ctx, 5, regexp.MustCompile("Ready"), 20*time.Millisecond)
	if _, ok := err.(*TimeoutError); !ok {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s := &serialPort{closed: true}
	if err := s.Close(); err != nil {
		t.Fatalf("closing an already-closed port should be a no-op, got %v", err)
	}
}
