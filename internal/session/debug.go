package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harkvoice/hark/internal/stt"
)

// writeDebugAudio dumps one captured utterance as WAV when debug.audio_dump
// is enabled. Dump failures are logged, never fatal.
func (l *Loop) writeDebugAudio(samples []int16, sampleRate int) {
	if !l.cfg.AudioDump || len(samples) == 0 {
		return
	}

	file, err := createDebugFile("audio", "wav")
	if err != nil {
		l.logger.Warn("unable to create debug audio dump", "error", err)
		return
	}
	defer file.Close()

	if err := stt.WriteWAV(file, samples, sampleRate); err != nil {
		l.logger.Warn("unable to write debug audio dump", "error", err)
		return
	}
	l.logger.Debug("wrote debug audio dump", "path", file.Name(), "samples", len(samples))
}

// createDebugFile creates timestamped debug artifacts under state/hark/debug.
func createDebugFile(prefix string, extension string) (*os.File, error) {
	stateDir, err := resolveStateDir()
	if err != nil {
		return nil, err
	}
	debugDir := filepath.Join(stateDir, "hark", "debug")
	if err := os.MkdirAll(debugDir, 0o700); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405.000")
	path := filepath.Join(debugDir, fmt.Sprintf("%s-%s.%s", prefix, timestamp, extension))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open debug file %q: %w", path, err)
	}
	return file, nil
}

// resolveStateDir returns the XDG_STATE_HOME fallback path for debug artifacts.
func resolveStateDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return xdg, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory for state: %w", err)
	}
	return filepath.Join(home, ".local", "state"), nil
}
