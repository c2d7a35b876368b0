package wakeword

import (
	"fmt"
	"path/filepath"
	"strings"

	porcupine "github.com/Picovoice/porcupine/binding/go/v3"

	"github.com/harkvoice/hark/internal/config"
)

// porcupineEngine adapts the Picovoice Porcupine binding to Engine.
type porcupineEngine struct {
	pp     porcupine.Porcupine
	labels []string
}

// New builds the configured keyword engine. Returns ErrDisabled (wrapped with
// the reason) when detection is off or cannot start; any other error means
// the configuration asked for something invalid.
func New(cfg config.WakewordConfig) (Engine, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if strings.TrimSpace(cfg.AccessKey) == "" {
		return nil, fmt.Errorf("%w: no access key configured", ErrDisabled)
	}

	builtins, err := resolveBuiltInKeywords(cfg.Keywords)
	if err != nil {
		return nil, err
	}
	if len(builtins) == 0 && len(cfg.KeywordPaths) == 0 {
		return nil, fmt.Errorf("%w: no keywords configured", ErrDisabled)
	}

	labels := keywordLabels(cfg.Keywords, cfg.KeywordPaths)
	sensitivities := cfg.Sensitivities
	if len(sensitivities) == 0 {
		sensitivities = make([]float32, len(labels))
		for i := range sensitivities {
			sensitivities[i] = 0.5
		}
	}
	if len(sensitivities) != len(labels) {
		return nil, fmt.Errorf("wakeword: %d sensitivities for %d keywords", len(sensitivities), len(labels))
	}

	engine := &porcupineEngine{
		pp: porcupine.Porcupine{
			AccessKey:       cfg.AccessKey,
			BuiltInKeywords: builtins,
			KeywordPaths:    cfg.KeywordPaths,
			Sensitivities:   sensitivities,
		},
		labels: labels,
	}
	if err := engine.pp.Init(); err != nil {
		return nil, fmt.Errorf("%w: engine init failed: %v", ErrDisabled, err)
	}
	return engine, nil
}

func (e *porcupineEngine) FrameLength() int {
	return porcupine.FrameLength
}

func (e *porcupineEngine) SampleRate() int {
	return porcupine.SampleRate
}

func (e *porcupineEngine) Process(frame []int16) (int, error) {
	return e.pp.Process(frame)
}

// Keyword returns the label for a Process result index.
func (e *porcupineEngine) Keyword(index int) string {
	if index < 0 || index >= len(e.labels) {
		return "unknown"
	}
	return e.labels[index]
}

func (e *porcupineEngine) Close() error {
	return e.pp.Delete()
}

// resolveBuiltInKeywords maps configured keyword names onto the binding's
// built-in keyword set, rejecting unknown names up front.
func resolveBuiltInKeywords(names []string) ([]porcupine.BuiltInKeyword, error) {
	builtins := make([]porcupine.BuiltInKeyword, 0, len(names))
	for _, name := range names {
		kw := porcupine.BuiltInKeyword(strings.ToLower(strings.TrimSpace(name)))
		if kw == "" {
			continue
		}
		found := false
		for _, known := range porcupine.BuiltInKeywords {
			if kw == known {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("wakeword: unknown built-in keyword %q", name)
		}
		builtins = append(builtins, kw)
	}
	return builtins, nil
}

// keywordLabels produces the label table matching Porcupine's index order:
// built-in keywords first, then custom keyword files by base name.
func keywordLabels(keywords []string, paths []string) []string {
	labels := make([]string, 0, len(keywords)+len(paths))
	for _, name := range keywords {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			labels = append(labels, name)
		}
	}
	for _, path := range paths {
		base := filepath.Base(path)
		labels = append(labels, strings.TrimSuffix(base, filepath.Ext(base)))
	}
	return labels
}
