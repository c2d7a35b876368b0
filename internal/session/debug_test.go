package session

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDebugAudioDumpWritesWAV(t *testing.T) {
	stateDir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", stateDir)

	cfg := testConfig()
	cfg.AudioDump = true
	loop := NewLoop(&fakeEngine{}, &fakeOpener{}, nil, nil, cfg, nil)

	samples := []int16{0, 1000, -1000, 500}
	loop.writeDebugAudio(samples, 16000)

	matches, err := filepath.Glob(filepath.Join(stateDir, "hark", "debug", "audio-*.wav"))
	if err != nil {
		t.Fatalf("glob debug dir: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one debug dump, got %d", len(matches))
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read dump: %v", err)
	}
	if len(data) != 44+len(samples)*2 {
		t.Fatalf("dump size = %d, want %d", len(data), 44+len(samples)*2)
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("dump is not a WAV container: % x", data[0:12])
	}
}

func TestDebugAudioDumpDisabledWritesNothing(t *testing.T) {
	stateDir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", stateDir)

	loop := NewLoop(&fakeEngine{}, &fakeOpener{}, nil, nil, testConfig(), nil)
	loop.writeDebugAudio([]int16{1, 2, 3, 4}, 16000)

	if _, err := os.Stat(filepath.Join(stateDir, "hark", "debug")); !os.IsNotExist(err) {
		t.Fatalf("debug dir should not exist when dumping is disabled, stat err = %v", err)
	}
}

func TestDebugAudioDumpSkipsEmptyCapture(t *testing.T) {
	stateDir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", stateDir)

	cfg := testConfig()
	cfg.AudioDump = true
	loop := NewLoop(&fakeEngine{}, &fakeOpener{}, nil, nil, cfg, nil)
	loop.writeDebugAudio(nil, 16000)

	if _, err := os.Stat(filepath.Join(stateDir, "hark", "debug")); !os.IsNotExist(err) {
		t.Fatalf("debug dir should not exist for an empty capture, stat err = %v", err)
	}
}
