package audio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gordonklaus/portaudio"
)

// PortAudioOpener opens capture streams through PortAudio. Useful on hosts
// without a Pulse server; selection matches device names instead of source IDs.
type PortAudioOpener struct {
	logger *slog.Logger
}

// ListDevices returns PortAudio input devices. Outputs-only devices are
// filtered out; there is no mute state to report at this layer.
func (o *PortAudioOpener) ListDevices(_ context.Context) ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing portaudio: %w", err)
	}
	defer portaudio.Terminate()

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list portaudio devices: %w", err)
	}
	defaultInput, _ := portaudio.DefaultInputDevice()

	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		if info == nil || info.MaxInputChannels < 1 {
			continue
		}
		devices = append(devices, Device{
			ID:          info.Name,
			Description: fmt.Sprintf("%s (%s)", info.Name, info.HostApi.Name),
			State:       "idle",
			Available:   true,
			Default:     defaultInput != nil && info.Name == defaultInput.Name,
		})
	}
	return devices, nil
}

// Open starts a mono int16 input stream delivering cfg.FrameLength samples
// per read.
func (o *PortAudioOpener) Open(ctx context.Context, cfg Config) (Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing portaudio: %w", err)
	}

	info, warning, err := resolvePortAudioInput(cfg.Input, cfg.Fallback)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	if warning != "" && o.logger != nil {
		o.logger.Warn(warning)
	}

	buffer := make([]int16, cfg.FrameLength)
	params := portaudio.LowLatencyParameters(info, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = cfg.FrameLength

	stream, err := portaudio.OpenStream(params, buffer)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("opening stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("starting stream: %w", err)
	}

	fs := newFrameStream(64, o.logger, func() {
		stream.Stop()
		stream.Close()
		portaudio.Terminate()
	})

	go func() {
		for {
			select {
			case <-fs.closed:
				return
			case <-ctx.Done():
				_ = fs.Close()
				return
			default:
			}
			if err := stream.Read(); err != nil {
				select {
				case <-fs.closed:
				default:
					if o.logger != nil {
						o.logger.Warn("portaudio read failed", "error", err)
					}
					_ = fs.Close()
				}
				return
			}
			frame := make([]int16, len(buffer))
			copy(frame, buffer)
			if !fs.push(frame) {
				return
			}
		}
	}()

	return fs, nil
}

// resolvePortAudioInput matches audio.input/audio.fallback against PortAudio
// device names, preferring the host default when unset.
func resolvePortAudioInput(input, fallback string) (*portaudio.DeviceInfo, string, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, "", fmt.Errorf("list portaudio devices: %w", err)
	}

	input = strings.TrimSpace(strings.ToLower(input))
	fallback = strings.TrimSpace(strings.ToLower(fallback))

	find := func(term string) *portaudio.DeviceInfo {
		term = strings.TrimSpace(strings.ToLower(term))
		for _, info := range infos {
			if info == nil || info.MaxInputChannels < 1 {
				continue
			}
			if deviceMatches(Device{ID: info.Name, Description: info.Name}, term) {
				return info
			}
		}
		return nil
	}

	if input != "" && input != "default" {
		if info := find(input); info != nil {
			return info, "", nil
		}
		if fallback != "" && fallback != "default" {
			if info := find(fallback); info != nil {
				warn := fmt.Sprintf("audio.input %q did not match any device; falling back to %q", input, info.Name)
				return info, warn, nil
			}
		}
		defaultInput, derr := portaudio.DefaultInputDevice()
		if derr != nil {
			return nil, "", fmt.Errorf("audio.input %q did not match any device and no usable fallback: %w", input, derr)
		}
		warn := fmt.Sprintf("audio.input %q did not match any device; falling back to %q", input, defaultInput.Name)
		return defaultInput, warn, nil
	}

	defaultInput, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, "", fmt.Errorf("default audio source is unavailable: %w", err)
	}
	return defaultInput, "", nil
}
