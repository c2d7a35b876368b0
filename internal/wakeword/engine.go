// Package wakeword wraps keyword-spotting engines behind a small frame-based
// interface so detection failures can disable the feature instead of taking
// the whole session down.
package wakeword

import (
	"errors"
	"time"
)

// ErrDisabled reports that wake-word detection is turned off or cannot be
// constructed (missing access key, unknown keyword). Callers treat it as
// "feature unavailable", not as a fatal error.
var ErrDisabled = errors.New("wake-word detection is disabled")

// Detection is one recognized wake word.
type Detection struct {
	KeywordIndex int
	Keyword      string
	At           time.Time
}

// Engine consumes fixed-length PCM frames and reports keyword hits.
//
// Process returns the index of the detected keyword, or -1 when the frame
// contains none. Frames must hold exactly FrameLength samples at SampleRate.
type Engine interface {
	FrameLength() int
	SampleRate() int
	Process(frame []int16) (int, error)
	Keyword(index int) string
	Close() error
}
