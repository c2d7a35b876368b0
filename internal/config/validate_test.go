package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Default()
	cfg.Wakeword.AccessKey = "pv-key"
	cfg.STT.OpenAIAPIKey = "oa-key"
	return cfg
}

func TestValidateDefaultsWithKeys(t *testing.T) {
	warnings, err := Validate(validConfig())
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestValidateRejectsBadBackend(t *testing.T) {
	cfg := validConfig()
	cfg.Audio.Backend = "jack"
	_, err := Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "audio.backend")
}

func TestValidateRejectsNonPositiveDeadlines(t *testing.T) {
	cfg := validConfig()
	cfg.Capture.SilenceTimeoutSec = 0
	_, err := Validate(cfg)
	require.Error(t, err)

	cfg = validConfig()
	cfg.Capture.PhraseLimitSec = -1
	_, err = Validate(cfg)
	require.Error(t, err)

	cfg = validConfig()
	cfg.Dispatch.TimeoutSec = 0
	_, err = Validate(cfg)
	require.Error(t, err)
}

func TestValidateWarnsWhenSilenceExceedsPhraseLimit(t *testing.T) {
	cfg := validConfig()
	cfg.Capture.SilenceTimeoutSec = 10
	cfg.Capture.PhraseLimitSec = 7
	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, "phrase limit")
}

func TestValidateRejectsEmptyKeywordSet(t *testing.T) {
	cfg := validConfig()
	cfg.Wakeword.Keywords = nil
	cfg.Wakeword.KeywordPaths = nil
	_, err := Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "keywords or keyword_paths")
}

func TestValidateRejectsOutOfRangeSensitivity(t *testing.T) {
	cfg := validConfig()
	cfg.Wakeword.Sensitivities = []float32{1.5}
	_, err := Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "out of range")
}

func TestValidateWarnsOnMissingAccessKey(t *testing.T) {
	cfg := validConfig()
	cfg.Wakeword.AccessKey = ""
	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.NotEmpty(t, warnings)
	require.Contains(t, warnings[0].Message, "access_key")
}

func TestValidateWhisperProviderNeedsModelPath(t *testing.T) {
	cfg := validConfig()
	cfg.STT.Provider = "whisper"
	cfg.STT.WhisperModelPath = ""
	_, err := Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "whisper_model_path")

	cfg.STT.WhisperModelPath = "/models/ggml-base.en.bin"
	_, err = Validate(cfg)
	require.NoError(t, err)
}

func TestValidateUnknownProviderFails(t *testing.T) {
	cfg := validConfig()
	cfg.STT.Provider = "deepgram"
	_, err := Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "stt.provider")
}
