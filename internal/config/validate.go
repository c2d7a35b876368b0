package config

import (
	"fmt"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	backend := strings.ToLower(strings.TrimSpace(cfg.Audio.Backend))
	if backend == "" {
		return nil, fmt.Errorf("audio.backend must not be empty")
	}
	if backend != "pulse" && backend != "portaudio" {
		return nil, fmt.Errorf("audio.backend must be one of: pulse, portaudio")
	}

	if cfg.Capture.SilenceTimeoutSec <= 0 {
		return nil, fmt.Errorf("capture.silence_timeout_sec must be > 0")
	}
	if cfg.Capture.PhraseLimitSec <= 0 {
		return nil, fmt.Errorf("capture.phrase_limit_sec must be > 0")
	}
	if cfg.Capture.VADThreshold < 0 {
		return nil, fmt.Errorf("capture.vad_threshold must be >= 0")
	}
	if cfg.Capture.SilenceTimeoutSec > cfg.Capture.PhraseLimitSec {
		warnings = append(warnings, Warning{
			Message: fmt.Sprintf(
				"capture.silence_timeout_sec (%.1f) exceeds capture.phrase_limit_sec (%.1f); the phrase limit will always end capture first",
				cfg.Capture.SilenceTimeoutSec, cfg.Capture.PhraseLimitSec,
			),
		})
	}

	if cfg.Wakeword.Enabled {
		if len(cfg.Wakeword.Keywords) == 0 && len(cfg.Wakeword.KeywordPaths) == 0 {
			return nil, fmt.Errorf("wakeword requires keywords or keyword_paths when enabled")
		}
		keywordCount := len(cfg.Wakeword.Keywords) + len(cfg.Wakeword.KeywordPaths)
		if n := len(cfg.Wakeword.Sensitivities); n != 0 && n != keywordCount {
			return nil, fmt.Errorf(
				"wakeword.sensitivities count %d does not match keyword count %d",
				n, keywordCount,
			)
		}
		for _, s := range cfg.Wakeword.Sensitivities {
			if s < 0 || s > 1 {
				return nil, fmt.Errorf("wakeword sensitivity %.2f out of range [0,1]", s)
			}
		}
		if strings.TrimSpace(cfg.Wakeword.AccessKey) == "" {
			warnings = append(warnings, Warning{
				Message: "wakeword.access_key is empty and PICOVOICE_ACCESS_KEY is unset; wake-word feature will be disabled",
			})
		}
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.STT.Provider))
	switch provider {
	case "whisper":
		if strings.TrimSpace(cfg.STT.WhisperModelPath) == "" {
			return nil, fmt.Errorf("stt.whisper_model_path must be set when stt.provider=whisper")
		}
	case "openai":
		if strings.TrimSpace(cfg.STT.OpenAIModel) == "" {
			return nil, fmt.Errorf("stt.openai_model must not be empty when stt.provider=openai")
		}
		if strings.TrimSpace(cfg.STT.OpenAIAPIKey) == "" {
			warnings = append(warnings, Warning{
				Message: "stt.openai_api_key is empty and OPENAI_API_KEY is unset; transcription will fail at runtime",
			})
		}
	default:
		return nil, fmt.Errorf("stt.provider must be one of: whisper, openai")
	}

	if cfg.Dispatch.TimeoutSec <= 0 {
		return nil, fmt.Errorf("dispatch.timeout_sec must be > 0")
	}
	if cfg.Dispatch.CommandRaw != "" && len(cfg.Dispatch.Command.Argv) == 0 {
		return nil, fmt.Errorf("dispatch.command is configured but empty")
	}

	return warnings, nil
}
