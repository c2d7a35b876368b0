package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse decodes YAML configuration content over a base config and validates
// the merged result. Unknown keys are rejected so typos fail loudly.
func Parse(content string, base Config) (Config, []Warning, error) {
	cfg := base

	if strings.TrimSpace(content) != "" {
		dec := yaml.NewDecoder(strings.NewReader(content))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, nil, fmt.Errorf("decode yaml: %w", err)
		}
	}

	return finalize(cfg)
}

// finalize applies env fallbacks, derives parsed fields, and validates.
func finalize(cfg Config) (Config, []Warning, error) {
	applyEnvFallbacks(&cfg)

	if raw := strings.TrimSpace(cfg.Dispatch.CommandRaw); raw != "" {
		argv, err := parseArgv(raw)
		if err != nil {
			return Config{}, nil, fmt.Errorf("dispatch.command: %w", err)
		}
		cfg.Dispatch.Command = CommandConfig{Raw: raw, Argv: argv}
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}
