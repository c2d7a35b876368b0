// Package doctor runs runtime readiness diagnostics for config, wake-word,
// audio, transcription, and dispatch.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/harkvoice/hark/internal/audio"
	"github.com/harkvoice/hark/internal/config"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(cfg config.Loaded) Report {
	checks := []Check{}

	checks = append(checks, Check{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q (%d warnings)", cfg.Path, len(cfg.Warnings)),
	})

	checks = append(checks, checkWakeword(cfg.Config.Wakeword)...)
	checks = append(checks, checkAudioSelection(cfg.Config))
	checks = append(checks, checkSTT(cfg.Config.STT))

	if len(cfg.Config.Dispatch.Command.Argv) > 0 {
		checks = append(checks, checkCommand(cfg.Config.Dispatch.Command.Argv, "dispatch_cmd"))
	}

	return Report{Checks: checks}
}

// checkWakeword validates keyword configuration without constructing an engine.
func checkWakeword(cfg config.WakewordConfig) []Check {
	if !cfg.Enabled {
		return []Check{{Name: "wakeword", Pass: true, Message: "detection disabled by config"}}
	}

	checks := []Check{}
	if strings.TrimSpace(cfg.AccessKey) == "" {
		checks = append(checks, Check{
			Name:    "wakeword.access_key",
			Pass:    false,
			Message: "no access key; detection will be disabled at startup",
		})
	} else {
		checks = append(checks, Check{Name: "wakeword.access_key", Pass: true, Message: "access key configured"})
	}

	if len(cfg.Keywords) == 0 && len(cfg.KeywordPaths) == 0 {
		checks = append(checks, Check{Name: "wakeword.keywords", Pass: false, Message: "no keywords configured"})
	} else {
		checks = append(checks, Check{
			Name:    "wakeword.keywords",
			Pass:    true,
			Message: fmt.Sprintf("%d built-in, %d custom", len(cfg.Keywords), len(cfg.KeywordPaths)),
		})
	}

	for _, path := range cfg.KeywordPaths {
		if _, err := os.Stat(path); err != nil {
			checks = append(checks, Check{
				Name:    "wakeword.keyword_path",
				Pass:    false,
				Message: fmt.Sprintf("keyword file missing: %s", path),
			})
		}
	}
	return checks
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(cfg config.Config) Check {
	opener, err := audio.NewOpener(cfg.Audio.Backend, nil)
	if err != nil {
		return Check{Name: "audio.backend", Pass: false, Message: err.Error()}
	}

	selection, err := audio.SelectDevice(context.Background(), opener, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkSTT validates the transcription provider's prerequisites.
func checkSTT(cfg config.STTConfig) Check {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "whisper":
		if strings.TrimSpace(cfg.WhisperModelPath) == "" {
			return Check{Name: "stt.whisper", Pass: false, Message: "whisper_model_path is empty"}
		}
		if _, err := os.Stat(cfg.WhisperModelPath); err != nil {
			return Check{Name: "stt.whisper", Pass: false, Message: fmt.Sprintf("model file missing: %s", cfg.WhisperModelPath)}
		}
		return Check{Name: "stt.whisper", Pass: true, Message: fmt.Sprintf("model at %s", cfg.WhisperModelPath)}
	case "", "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return Check{Name: "stt.openai", Pass: false, Message: "no API key (set OPENAI_API_KEY)"}
		}
		return Check{Name: "stt.openai", Pass: true, Message: fmt.Sprintf("model %q", cfg.OpenAIModel)}
	default:
		return Check{Name: "stt.provider", Pass: false, Message: fmt.Sprintf("unknown provider %q", cfg.Provider)}
	}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}
