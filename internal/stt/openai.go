package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI transcribes utterances through the OpenAI audio API. Each utterance
// is wrapped in a minimal WAV container and uploaded in one request.
type OpenAI struct {
	client   oai.Client
	model    string
	language string
}

// NewOpenAI constructs the API-backed transcriber.
func NewOpenAI(apiKey, model, language string) (*OpenAI, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	if model == "" {
		model = string(oai.AudioModelWhisper1)
	}
	client := oai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAI{client: client, model: model, language: language}, nil
}

func (o *OpenAI) Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error) {
	if len(samples) < minUtteranceSamples {
		return "", nil
	}

	var wav bytes.Buffer
	if err := WriteWAV(&wav, samples, sampleRate); err != nil {
		return "", fmt.Errorf("encode utterance: %w", err)
	}

	params := oai.AudioTranscriptionNewParams{
		Model: oai.AudioModel(o.model),
		File:  oai.File(&wav, "command.wav", "audio/wav"),
	}
	if o.language != "" {
		params.Language = oai.String(o.language)
	}

	transcription, err := o.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai transcription: %w", err)
	}
	return strings.TrimSpace(transcription.Text), nil
}

func (o *OpenAI) Close() error { return nil }
