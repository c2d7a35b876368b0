package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// PulseOpener opens capture streams against a PulseAudio (or pipewire-pulse)
// server. This is the default backend.
type PulseOpener struct {
	logger *slog.Logger
}

// ListDevices returns available Pulse input sources with default/availability metadata.
func (o *PulseOpener) ListDevices(_ context.Context) ([]Device, error) {
	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}
	defaultID := defaultSource.ID()

	var sourceInfos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &sourceInfos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(sourceInfos))
	for _, source := range sourceInfos {
		if source == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          source.SourceName,
			Description: source.Device,
			State:       sourceStateString(source.State),
			Available:   sourceAvailable(source),
			Muted:       source.Mute,
			Default:     source.SourceName == defaultID,
		})
	}
	return devices, nil
}

// Open resolves device selection and starts a mono s16 record stream that
// emits fixed-length frames of cfg.FrameLength samples.
func (o *PulseOpener) Open(ctx context.Context, cfg Config) (Stream, error) {
	devices, err := o.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	selection, err := selectDeviceFromList(devices, cfg.Input, cfg.Fallback)
	if err != nil {
		return nil, err
	}
	if selection.Warning != "" && o.logger != nil {
		o.logger.Warn(selection.Warning)
	}

	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(selection.Device.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", selection.Device.ID, err)
	}

	ps := &pulseStream{
		frameBytes: cfg.FrameLength * 2,
	}
	ps.frameStream = newFrameStream(64, o.logger, func() {
		if ps.record != nil {
			ps.record.Stop()
			ps.record.Close()
		}
		client.Close()
	})

	writer := pulse.NewWriter(writerFunc(ps.onPCM), pulseproto.FormatInt16LE)
	record, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(cfg.SampleRate),
		pulse.RecordBufferFragmentSize(uint32(cfg.FrameLength*2)),
		pulse.RecordMediaName("hark listener"),
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}

	ps.record = record
	record.Start()

	go func() {
		<-ctx.Done()
		_ = ps.Close()
	}()

	return ps, nil
}

// pulseStream adapts the Pulse byte-callback feed into fixed int16 frames.
type pulseStream struct {
	*frameStream

	record     *pulse.RecordStream
	frameBytes int

	mu      sync.Mutex
	pending []byte
}

// onPCM receives raw Pulse bytes and emits frameBytes-sized int16 frames.
func (s *pulseStream) onPCM(buffer []byte) (int, error) {
	select {
	case <-s.closed:
		return 0, io.EOF
	default:
	}
	if len(buffer) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	s.pending = append(s.pending, buffer...)
	var frames [][]int16
	for len(s.pending) >= s.frameBytes {
		frames = append(frames, bytesToInt16(s.pending[:s.frameBytes]))
		s.pending = s.pending[s.frameBytes:]
	}
	s.mu.Unlock()

	for _, frame := range frames {
		if !s.push(frame) {
			return 0, io.EOF
		}
	}
	return len(buffer), nil
}

// bytesToInt16 decodes little-endian s16 PCM into a fresh sample slice.
func bytesToInt16(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2 : i*2+2]))
	}
	return samples
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}

func newPulseClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("hark"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// sourceStateString maps Pulse source state constants to human-readable values.
func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// sourceAvailable maps Pulse source port availability to a simple boolean.
func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	if len(source.Ports) == 0 {
		return true
	}
	for _, port := range source.Ports {
		if port.Name != source.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available == 0 || port.Available == 2
	}
	return true
}
