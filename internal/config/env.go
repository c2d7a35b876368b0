package config

import (
	"os"
	"strings"
)

// applyEnvFallbacks fills credential fields from the environment when the
// config file leaves them empty. File values win over environment values.
func applyEnvFallbacks(cfg *Config) {
	if strings.TrimSpace(cfg.Wakeword.AccessKey) == "" {
		cfg.Wakeword.AccessKey = strings.TrimSpace(os.Getenv("PICOVOICE_ACCESS_KEY"))
	}
	if strings.TrimSpace(cfg.STT.OpenAIAPIKey) == "" {
		cfg.STT.OpenAIAPIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
}
