// Package session runs the wake-word listening loop: scan for a keyword,
// capture the command that follows, transcribe it, and dispatch the text.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harkvoice/hark/internal/audio"
	"github.com/harkvoice/hark/internal/fsm"
	"github.com/harkvoice/hark/internal/pipeline"
	"github.com/harkvoice/hark/internal/stt"
	"github.com/harkvoice/hark/internal/wakeword"
)

// preferredSTTRate is the sample rate the transcriber backends expect.
const preferredSTTRate = 16000

// Dispatcher is the session-facing subset of the dispatch bridge.
type Dispatcher interface {
	Dispatch(ctx context.Context, text string) error
}

// DispatchFunc adapts a function to Dispatcher.
type DispatchFunc func(ctx context.Context, text string) error

func (f DispatchFunc) Dispatch(ctx context.Context, text string) error {
	return f(ctx, text)
}

// Config holds the loop's capture knobs.
type Config struct {
	Input    string
	Fallback string

	SilenceTimeout time.Duration
	PhraseLimit    time.Duration
	VADThreshold   float64

	// AudioDump writes each captured utterance to a WAV file under the
	// state directory for offline inspection.
	AudioDump bool

	// ReadTimeout bounds each frame read; MaxReadTimeouts consecutive
	// timeouts during capture end the utterance early.
	ReadTimeout     time.Duration
	MaxReadTimeouts int
}

func (c *Config) applyDefaults() {
	if c.SilenceTimeout <= 0 {
		c.SilenceTimeout = 3 * time.Second
	}
	if c.PhraseLimit <= 0 {
		c.PhraseLimit = 7 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 500 * time.Millisecond
	}
	if c.MaxReadTimeouts <= 0 {
		c.MaxReadTimeouts = 5
	}
}

// Loop owns one wake-word session. All session state is mutated by the Run
// goroutine; other goroutines interact only through Stop and the read-only
// status accessors.
type Loop struct {
	engine      wakeword.Engine
	opener      audio.Opener
	transcriber stt.Transcriber
	dispatcher  Dispatcher
	logger      *slog.Logger
	cfg         Config

	now func() time.Time

	listening atomic.Bool
	capturing atomic.Bool
	stopped   atomic.Bool

	mu    sync.RWMutex
	state fsm.State
}

// NewLoop wires a loop from its collaborators. engine and opener are
// required; a nil transcriber or dispatcher degrades to a no-op.
func NewLoop(
	engine wakeword.Engine,
	opener audio.Opener,
	transcriber stt.Transcriber,
	dispatcher Dispatcher,
	cfg Config,
	logger *slog.Logger,
) *Loop {
	if transcriber == nil {
		transcriber = stt.TranscriberFunc(func(context.Context, []int16, int) (string, error) {
			return "", nil
		})
	}
	if dispatcher == nil {
		dispatcher = DispatchFunc(func(context.Context, string) error { return nil })
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg.applyDefaults()

	return &Loop{
		engine:      engine,
		opener:      opener,
		transcriber: transcriber,
		dispatcher:  dispatcher,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
		state:       fsm.StateIdle,
	}
}

// State returns the current FSM state snapshot.
func (l *Loop) State() fsm.State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// IsListening reports whether the loop has an open microphone stream.
func (l *Loop) IsListening() bool {
	return l.listening.Load()
}

// IsCapturing reports whether an utterance capture is in progress.
func (l *Loop) IsCapturing() bool {
	return l.capturing.Load()
}

// Stop sets the cooperative stop flag. The loop observes it within one frame
// read. Calling Stop twice, or before Run, has no additional effect.
func (l *Loop) Stop() {
	l.stopped.Store(true)
}

// transition applies one FSM event.
func (l *Loop) transition(event fsm.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next, err := fsm.Transition(l.state, event)
	if err != nil {
		return err
	}
	l.state = next
	return nil
}

// toErrorAndReset transitions to error and back to idle best-effort.
func (l *Loop) toErrorAndReset() {
	_ = l.transition(fsm.EventFail)
	_ = l.transition(fsm.EventReset)
}

// Run executes the listening loop until Stop or ctx cancellation. If the
// initial stream open fails, the loop never reports listening and the error
// is returned; nothing panics.
func (l *Loop) Run(ctx context.Context) error {
	streamCfg := audio.Config{
		SampleRate:  l.engine.SampleRate(),
		Channels:    1,
		FrameLength: l.engine.FrameLength(),
		Input:       l.cfg.Input,
		Fallback:    l.cfg.Fallback,
	}

	stream, err := l.opener.Open(ctx, streamCfg)
	if err != nil {
		return fmt.Errorf("open audio stream: %w", err)
	}

	l.listening.Store(true)
	defer func() {
		l.listening.Store(false)
		l.capturing.Store(false)
		if stream != nil {
			_ = stream.Close()
		}
	}()

	frameDuration := frameDuration(streamCfg)
	l.logger.Info("listening for wake word",
		"sample_rate", streamCfg.SampleRate,
		"frame_length", streamCfg.FrameLength,
		"frame_ms", frameDuration.Milliseconds(),
	)
	if streamCfg.SampleRate != preferredSTTRate {
		l.logger.Warn("engine sample rate differs from transcriber-preferred rate",
			"engine_rate", streamCfg.SampleRate,
			"preferred_rate", preferredSTTRate,
		)
	}

	capture := pipeline.NewCapture(pipeline.NewEndpointer(l.cfg.VADThreshold))

	for {
		if l.shouldStop(ctx) {
			_ = l.transition(fsm.EventStop)
			l.logger.Info("wake loop stopped")
			return nil
		}

		frame, err := stream.ReadFrame(l.cfg.ReadTimeout)
		if errors.Is(err, audio.ErrReadTimeout) {
			continue
		}
		if errors.Is(err, audio.ErrStreamClosed) {
			_ = l.transition(fsm.EventStop)
			return nil
		}
		if err != nil {
			l.logger.Warn("frame read failed; skipping", "error", err)
			continue
		}
		if len(frame) != streamCfg.FrameLength {
			l.logger.Warn("short frame; skipping", "got", len(frame), "want", streamCfg.FrameLength)
			continue
		}

		index, err := l.engine.Process(frame)
		if err != nil {
			l.logger.Warn("keyword engine error; skipping frame", "error", err)
			continue
		}
		if index < 0 {
			continue
		}

		detection := wakeword.Detection{
			KeywordIndex: index,
			Keyword:      l.engine.Keyword(index),
			At:           l.now(),
		}
		l.logger.Info("wake word detected", "keyword", detection.Keyword)

		if err := l.transition(fsm.EventDetect); err != nil {
			l.logger.Error("detect transition rejected", "error", err)
			continue
		}

		// The scanning stream is closed during capture and transcription so
		// exactly one stream stays open and nothing buffers while busy.
		_ = stream.Close()

		l.runEpisode(ctx, capture, streamCfg, detection)

		if l.stopped.Load() {
			_ = l.transition(fsm.EventStop)
			l.logger.Info("wake loop stopped")
			return nil
		}

		next, err := l.opener.Open(ctx, streamCfg)
		if err != nil {
			stream = nil
			l.listening.Store(false)
			_ = l.transition(fsm.EventFail)
			return fmt.Errorf("reopen audio stream: %w", err)
		}
		stream = next
	}
}

// shouldStop folds the cooperative stop flag and context cancellation.
func (l *Loop) shouldStop(ctx context.Context) bool {
	return l.stopped.Load() || ctx.Err() != nil
}

// runEpisode handles one detection: capture, transcribe, dispatch. Failures
// end the episode back at idle; only stream problems propagate to Run.
func (l *Loop) runEpisode(ctx context.Context, capture *pipeline.Capture, streamCfg audio.Config, detection wakeword.Detection) {
	started := l.now()

	samples, complete := l.captureUtterance(ctx, capture, streamCfg)
	if !complete {
		// Stop flag observed mid-capture; buffer discarded.
		return
	}

	if err := l.transition(fsm.EventEndpoint); err != nil {
		l.logger.Error("endpoint transition rejected", "error", err)
		l.toErrorAndReset()
		return
	}

	if len(samples) == 0 {
		l.logger.Debug("empty capture; skipping transcription", "keyword", detection.Keyword)
		_ = l.transition(fsm.EventResume)
		return
	}

	l.writeDebugAudio(samples, streamCfg.SampleRate)

	text, err := l.transcriber.Transcribe(ctx, samples, streamCfg.SampleRate)
	if err != nil {
		l.logger.Error("transcription failed; discarding utterance", "error", err, "keyword", detection.Keyword)
		l.toErrorAndReset()
		return
	}

	text = strings.TrimSpace(text)
	if text == "" {
		l.logger.Debug("blank transcription; nothing to dispatch", "keyword", detection.Keyword)
		_ = l.transition(fsm.EventResume)
		return
	}

	if err := l.transition(fsm.EventTranscribe); err != nil {
		l.logger.Error("transcribe transition rejected", "error", err)
		l.toErrorAndReset()
		return
	}

	if err := l.dispatcher.Dispatch(ctx, text); err != nil {
		l.logger.Error("dispatch failed", "error", err, "text_chars", len(text))
		l.toErrorAndReset()
		return
	}

	_ = l.transition(fsm.EventDispatched)
	l.logSessionResult(detection, started, samples, text)
}

// captureUtterance reads frames into the capture buffer until the endpointer
// ends it. Returns complete=false when the stop flag interrupted capture.
func (l *Loop) captureUtterance(ctx context.Context, capture *pipeline.Capture, streamCfg audio.Config) ([]int16, bool) {
	stream, err := l.opener.Open(ctx, streamCfg)
	if err != nil {
		l.logger.Error("open capture stream failed", "error", err)
		return nil, true
	}
	defer stream.Close()

	l.capturing.Store(true)
	defer l.capturing.Store(false)

	capture.Start(l.now())
	timeouts := 0

	for {
		if l.shouldStop(ctx) {
			return nil, false
		}

		frame, err := stream.ReadFrame(l.cfg.ReadTimeout)
		switch {
		case errors.Is(err, audio.ErrReadTimeout):
			timeouts++
			if timeouts >= l.cfg.MaxReadTimeouts {
				l.logger.Warn("capture ended after consecutive read timeouts", "timeouts", timeouts)
				return capture.Finish(), true
			}
			continue
		case errors.Is(err, audio.ErrStreamClosed):
			return capture.Finish(), true
		case err != nil:
			l.logger.Warn("capture read failed; skipping frame", "error", err)
			continue
		}
		timeouts = 0

		now := l.now()
		capture.Push(frame, now)
		if capture.Done(now, l.cfg.SilenceTimeout, l.cfg.PhraseLimit) {
			return capture.Finish(), true
		}
	}
}

func (l *Loop) logSessionResult(detection wakeword.Detection, started time.Time, samples []int16, text string) {
	l.logger.Info("command dispatched",
		"keyword", detection.Keyword,
		"capture_samples", len(samples),
		"text_chars", len(text),
		"elapsed_ms", l.now().Sub(started).Milliseconds(),
	)
}

func frameDuration(cfg audio.Config) time.Duration {
	if cfg.SampleRate <= 0 {
		return 0
	}
	return time.Duration(cfg.FrameLength) * time.Second / time.Duration(cfg.SampleRate)
}
