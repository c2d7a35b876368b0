// Package stt turns captured PCM utterances into text. Two providers are
// supported: local whisper.cpp inference through the CGO bindings, and the
// OpenAI transcription API.
package stt

import (
	"context"
	"fmt"
	"strings"

	"github.com/harkvoice/hark/internal/config"
)

// Transcriber converts one mono 16-bit PCM utterance into text. An empty
// string with a nil error means the audio contained no usable speech; callers
// discard the utterance silently.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error)
	Close() error
}

// TranscriberFunc adapts a function to Transcriber. Close is a no-op.
type TranscriberFunc func(ctx context.Context, samples []int16, sampleRate int) (string, error)

func (f TranscriberFunc) Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error) {
	return f(ctx, samples, sampleRate)
}

func (f TranscriberFunc) Close() error { return nil }

// New constructs the configured transcription provider.
func New(cfg config.STTConfig) (Transcriber, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "whisper":
		return NewWhisper(cfg.WhisperModelPath, cfg.Language)
	case "", "openai":
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.Language)
	default:
		return nil, fmt.Errorf("unknown stt provider %q", cfg.Provider)
	}
}

// minUtteranceSamples is a quarter second at 16 kHz; anything shorter is
// treated as no speech rather than sent to inference.
const minUtteranceSamples = 4000
