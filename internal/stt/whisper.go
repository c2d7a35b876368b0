package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Whisper runs local inference through the whisper.cpp CGO bindings. The
// model loads once at construction and is shared across utterances; each
// Transcribe call gets a fresh context because contexts are not reusable
// across concurrent callers.
type Whisper struct {
	model    whisperlib.Model
	language string
}

// NewWhisper loads the whisper.cpp model from modelPath.
func NewWhisper(modelPath, language string) (*Whisper, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, errors.New("whisper model path is required")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load whisper model %q: %w", modelPath, err)
	}
	if language == "" {
		language = "en"
	}
	return &Whisper{model: model, language: language}, nil
}

func (w *Whisper) Transcribe(ctx context.Context, samples []int16, _ int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(samples) < minUtteranceSamples {
		return "", nil
	}

	wctx, err := w.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("create whisper context: %w", err)
	}
	if err := wctx.SetLanguage(w.language); err != nil {
		return "", fmt.Errorf("set whisper language %q: %w", w.language, err)
	}

	if err := wctx.Process(samplesToFloat32(samples), nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper inference: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read whisper segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

func (w *Whisper) Close() error {
	if w.model != nil {
		return w.model.Close()
	}
	return nil
}
