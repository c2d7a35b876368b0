// Package audio handles input-device discovery, selection, and fixed-frame
// PCM capture streams for the wake-word and command-capture pipeline.
//
// Exactly one Stream is open at any instant: the wake loop closes its
// scanning stream before opening a capture stream and vice versa. Backends
// deliver frames through a bounded single-producer/single-consumer channel so
// a hung device can never block shutdown past one read timeout.
package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrReadTimeout reports that no frame arrived within the read deadline.
	ErrReadTimeout = errors.New("audio frame read timed out")
	// ErrStreamClosed reports reads against a closed stream.
	ErrStreamClosed = errors.New("audio stream is closed")
)

// Config describes one capture stream. SampleRate and FrameLength are
// dictated by the keyword engine; mono signed 16-bit samples are implied.
type Config struct {
	SampleRate  int
	Channels    int
	FrameLength int
	Input       string
	Fallback    string
}

// Stream is one open, exclusive microphone input stream.
type Stream interface {
	// ReadFrame blocks up to timeout for the next fixed-length frame.
	// Returns ErrReadTimeout when the deadline elapses and ErrStreamClosed
	// after Close.
	ReadFrame(timeout time.Duration) ([]int16, error)
	// Dropped reports frames discarded because the consumer fell behind.
	Dropped() int64
	Close() error
}

// Opener creates capture streams and lists input devices for one backend.
type Opener interface {
	Open(ctx context.Context, cfg Config) (Stream, error)
	ListDevices(ctx context.Context) ([]Device, error)
}

// NewOpener selects a backend implementation by name.
func NewOpener(backend string, logger *slog.Logger) (Opener, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "pulse":
		return &PulseOpener{logger: logger}, nil
	case "portaudio":
		return &PortAudioOpener{logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q", backend)
	}
}

// frameStream is the bounded SPSC frame buffer shared by all backends. The
// device-side producer calls push; the wake loop calls ReadFrame. Overflow
// drops the newest frame and counts it rather than blocking the device.
type frameStream struct {
	frames  chan []int16
	closed  chan struct{}
	dropped atomic.Int64
	logger  *slog.Logger

	closeOnce sync.Once
	closeFn   func()
}

func newFrameStream(depth int, logger *slog.Logger, closeFn func()) *frameStream {
	if depth <= 0 {
		depth = 32
	}
	return &frameStream{
		frames:  make(chan []int16, depth),
		closed:  make(chan struct{}),
		logger:  logger,
		closeFn: closeFn,
	}
}

// push hands one frame to the consumer side without ever blocking the
// producer. Returns false once the stream is closed.
func (s *frameStream) push(frame []int16) bool {
	select {
	case <-s.closed:
		return false
	default:
	}

	select {
	case s.frames <- frame:
	default:
		n := s.dropped.Add(1)
		if s.logger != nil && (n == 1 || n%100 == 0) {
			s.logger.Warn("audio overflow: dropping frame", "dropped_total", n)
		}
	}
	return true
}

func (s *frameStream) ReadFrame(timeout time.Duration) ([]int16, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case frame, ok := <-s.frames:
		if !ok {
			return nil, ErrStreamClosed
		}
		return frame, nil
	case <-s.closed:
		// Drain any frame that raced with close.
		select {
		case frame := <-s.frames:
			return frame, nil
		default:
			return nil, ErrStreamClosed
		}
	case <-timer.C:
		return nil, ErrReadTimeout
	}
}

func (s *frameStream) Dropped() int64 {
	return s.dropped.Load()
}

func (s *frameStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.closeFn != nil {
			s.closeFn()
		}
	})
	return nil
}
