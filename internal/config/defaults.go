package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Wakeword: WakewordConfig{
			Enabled:       true,
			Keywords:      []string{"computer"},
			Sensitivities: []float32{0.5},
		},
		Audio: AudioConfig{
			Backend:  "pulse",
			Input:    "default",
			Fallback: "default",
		},
		Capture: CaptureConfig{
			SilenceTimeoutSec: 3,
			PhraseLimitSec:    7,
			VADThreshold:      300,
		},
		STT: STTConfig{
			Provider:    "openai",
			Language:    "en",
			OpenAIModel: "whisper-1",
		},
		Dispatch: DispatchConfig{
			TimeoutSec: 30,
		},
		Debug: DebugConfig{},
	}
}
