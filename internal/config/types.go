// Package config resolves, parses, validates, and defaults hark configuration.
package config

import "time"

// Config is the fully materialized runtime configuration used by hark.
type Config struct {
	Wakeword WakewordConfig `yaml:"wakeword"`
	Audio    AudioConfig    `yaml:"audio"`
	Capture  CaptureConfig  `yaml:"capture"`
	STT      STTConfig      `yaml:"stt"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Debug    DebugConfig    `yaml:"debug"`
}

// WakewordConfig controls keyword-engine construction. The engine dictates
// frame length and sample rate; they are not configurable here.
type WakewordConfig struct {
	Enabled       bool      `yaml:"enabled"`
	AccessKey     string    `yaml:"access_key"`
	Keywords      []string  `yaml:"keywords"`
	KeywordPaths  []string  `yaml:"keyword_paths"`
	Sensitivities []float32 `yaml:"sensitivities"`
}

// AudioConfig controls capture backend and input-source selection.
type AudioConfig struct {
	Backend  string `yaml:"backend"`
	Input    string `yaml:"input"`
	Fallback string `yaml:"fallback"`
}

// CaptureConfig controls command endpointing after a wake-word detection.
type CaptureConfig struct {
	SilenceTimeoutSec float64 `yaml:"silence_timeout_sec"`
	PhraseLimitSec    float64 `yaml:"phrase_limit_sec"`
	VADThreshold      float64 `yaml:"vad_threshold"`
}

// SilenceTimeout returns the silence deadline as a duration.
func (c CaptureConfig) SilenceTimeout() time.Duration {
	return time.Duration(c.SilenceTimeoutSec * float64(time.Second))
}

// PhraseLimit returns the total-capture deadline as a duration.
func (c CaptureConfig) PhraseLimit() time.Duration {
	return time.Duration(c.PhraseLimitSec * float64(time.Second))
}

// STTConfig selects and parameterizes the transcription backend.
type STTConfig struct {
	Provider         string `yaml:"provider"`
	Language         string `yaml:"language"`
	WhisperModelPath string `yaml:"whisper_model_path"`
	OpenAIAPIKey     string `yaml:"openai_api_key"`
	OpenAIModel      string `yaml:"openai_model"`
}

// DispatchConfig controls transcript handoff to the downstream consumer.
type DispatchConfig struct {
	TimeoutSec float64       `yaml:"timeout_sec"`
	Command    CommandConfig `yaml:"-"`
	CommandRaw string        `yaml:"command"`
}

// Timeout returns the bounded dispatch wait as a duration.
func (d DispatchConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSec * float64(time.Second))
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	EnableAudioDump bool `yaml:"audio_dump"`
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Message string
}
