package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harkvoice/hark/internal/audio"
	"github.com/harkvoice/hark/internal/fsm"
	"github.com/harkvoice/hark/internal/ipc"
	"github.com/harkvoice/hark/internal/stt"
)

const testFrameLength = 4

type fakeEngine struct {
	results []int
	err     error
	calls   atomic.Int32
}

func (e *fakeEngine) FrameLength() int { return testFrameLength }
func (e *fakeEngine) SampleRate() int  { return 16000 }
func (e *fakeEngine) Keyword(int) string {
	return "computer"
}
func (e *fakeEngine) Close() error { return nil }

func (e *fakeEngine) Process([]int16) (int, error) {
	n := int(e.calls.Add(1)) - 1
	if e.err != nil {
		return -1, e.err
	}
	if n < len(e.results) {
		return e.results[n], nil
	}
	return -1, nil
}

type fakeStream struct {
	mu      sync.Mutex
	frames  [][]int16
	closed  bool
	onEmpty func(timeout time.Duration) ([]int16, error)
}

func (s *fakeStream) ReadFrame(timeout time.Duration) ([]int16, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, audio.ErrStreamClosed
	}
	if len(s.frames) > 0 {
		frame := s.frames[0]
		s.frames = s.frames[1:]
		s.mu.Unlock()
		return frame, nil
	}
	onEmpty := s.onEmpty
	s.mu.Unlock()

	if onEmpty != nil {
		return onEmpty(timeout)
	}
	time.Sleep(timeout)
	return nil, audio.ErrReadTimeout
}

func (s *fakeStream) Dropped() int64 { return 0 }

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

type fakeOpener struct {
	mu      sync.Mutex
	streams []*fakeStream
	err     error
	// exhaustedErr fails opens once the scripted streams run out.
	exhaustedErr error
	opens        int
}

func (o *fakeOpener) Open(context.Context, audio.Config) (audio.Stream, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	if o.err != nil {
		return nil, o.err
	}
	if len(o.streams) == 0 {
		if o.exhaustedErr != nil {
			return nil, o.exhaustedErr
		}
		return &fakeStream{}, nil
	}
	s := o.streams[0]
	o.streams = o.streams[1:]
	return s, nil
}

func (o *fakeOpener) ListDevices(context.Context) ([]audio.Device, error) {
	return nil, nil
}

func (o *fakeOpener) openCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

type fakeDispatcher struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.texts = append(d.texts, text)
	return d.err
}

func (d *fakeDispatcher) dispatched() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.texts))
	copy(out, d.texts)
	return out
}

func noiseFrames(n int) [][]int16 {
	frames := make([][]int16, n)
	for i := range frames {
		frames[i] = make([]int16, testFrameLength)
	}
	return frames
}

func loudFrame() []int16 {
	frame := make([]int16, testFrameLength)
	for i := range frame {
		frame[i] = 2000
	}
	return frame
}

func testConfig() Config {
	return Config{
		SilenceTimeout:  30 * time.Millisecond,
		PhraseLimit:     300 * time.Millisecond,
		VADThreshold:    300,
		ReadTimeout:     5 * time.Millisecond,
		MaxReadTimeouts: 5,
	}
}

func runLoop(t *testing.T, loop *Loop) chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- loop.Run(context.Background())
	}()
	return done
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestLoopStaysIdleWithoutDetection(t *testing.T) {
	engine := &fakeEngine{}
	opener := &fakeOpener{streams: []*fakeStream{{frames: noiseFrames(100)}}}
	dispatcher := &fakeDispatcher{}
	loop := NewLoop(engine, opener, nil, dispatcher, testConfig(), nil)

	done := runLoop(t, loop)
	waitFor(t, "all frames processed", func() bool { return engine.calls.Load() >= 100 })

	if state := loop.State(); state != fsm.StateIdle {
		t.Fatalf("expected idle while scanning, got %s", state)
	}
	loop.Stop()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := dispatcher.dispatched(); len(got) != 0 {
		t.Fatalf("expected zero dispatches, got %v", got)
	}
	if opens := opener.openCount(); opens != 1 {
		t.Fatalf("expected one stream open, got %d", opens)
	}
	if loop.State() != fsm.StateStopped {
		t.Fatalf("expected stopped state, got %s", loop.State())
	}
}

func TestLoopEndToEndDispatchesRecognizedCommand(t *testing.T) {
	detectAt := 100
	engine := &fakeEngine{results: append(make([]int, detectAt), 0)}
	for i := 0; i < detectAt; i++ {
		engine.results[i] = -1
	}

	captureStream := &fakeStream{onEmpty: func(time.Duration) ([]int16, error) {
		time.Sleep(2 * time.Millisecond)
		return make([]int16, testFrameLength), nil
	}}
	opener := &fakeOpener{streams: []*fakeStream{
		{frames: noiseFrames(detectAt + 1)},
		captureStream,
	}}

	transcriber := stt.TranscriberFunc(func(_ context.Context, samples []int16, rate int) (string, error) {
		if rate != 16000 {
			t.Errorf("unexpected sample rate %d", rate)
		}
		if len(samples) == 0 {
			t.Error("expected captured samples")
		}
		return "turn on the lights", nil
	})
	dispatcher := &fakeDispatcher{}
	loop := NewLoop(engine, opener, transcriber, dispatcher, testConfig(), nil)

	done := runLoop(t, loop)
	waitFor(t, "command dispatch", func() bool { return len(dispatcher.dispatched()) == 1 })

	if got := dispatcher.dispatched(); got[0] != "turn on the lights" {
		t.Fatalf("dispatched %q, want %q", got[0], "turn on the lights")
	}

	// After the episode the loop reopens a scanning stream and returns to idle.
	waitFor(t, "return to idle", func() bool { return loop.State() == fsm.StateIdle })
	if opens := opener.openCount(); opens < 3 {
		t.Fatalf("expected scan+capture+rescan opens, got %d", opens)
	}

	loop.Stop()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestLoopEmptyCaptureSkipsTranscription(t *testing.T) {
	engine := &fakeEngine{results: []int{0}}

	// The capture stream only times out, so five consecutive timeouts end
	// the capture with zero frames.
	captureStream := &fakeStream{onEmpty: func(time.Duration) ([]int16, error) {
		return nil, audio.ErrReadTimeout
	}}
	opener := &fakeOpener{streams: []*fakeStream{
		{frames: noiseFrames(1)},
		captureStream,
	}}

	var transcribeCalls atomic.Int32
	transcriber := stt.TranscriberFunc(func(context.Context, []int16, int) (string, error) {
		transcribeCalls.Add(1)
		return "should not happen", nil
	})
	dispatcher := &fakeDispatcher{}
	loop := NewLoop(engine, opener, transcriber, dispatcher, testConfig(), nil)

	done := runLoop(t, loop)
	waitFor(t, "return to idle", func() bool {
		return loop.State() == fsm.StateIdle && opener.openCount() >= 3
	})
	loop.Stop()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if calls := transcribeCalls.Load(); calls != 0 {
		t.Fatalf("expected no transcribe calls, got %d", calls)
	}
	if got := dispatcher.dispatched(); len(got) != 0 {
		t.Fatalf("expected zero dispatches, got %v", got)
	}
}

func TestLoopOpenFailureLeavesListeningFalse(t *testing.T) {
	opener := &fakeOpener{err: errors.New("no audio server")}
	loop := NewLoop(&fakeEngine{}, opener, nil, &fakeDispatcher{}, testConfig(), nil)

	err := loop.Run(context.Background())
	if err == nil {
		t.Fatal("expected open failure error")
	}
	if loop.IsListening() {
		t.Fatal("expected listening to remain false after open failure")
	}
}

func TestLoopStopIsIdempotent(t *testing.T) {
	opener := &fakeOpener{}
	loop := NewLoop(&fakeEngine{}, opener, nil, &fakeDispatcher{}, testConfig(), nil)

	loop.Stop()
	loop.Stop()

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if loop.State() != fsm.StateStopped {
		t.Fatalf("expected stopped state, got %s", loop.State())
	}

	// Stopping an already stopped loop changes nothing.
	loop.Stop()
	if loop.State() != fsm.StateStopped {
		t.Fatalf("expected stopped state, got %s", loop.State())
	}
}

func TestLoopPhraseLimitEndsContinuousSpeech(t *testing.T) {
	engine := &fakeEngine{results: []int{0}}

	// The capture stream always has sound, so only the phrase limit can
	// end the utterance.
	captureStream := &fakeStream{onEmpty: func(time.Duration) ([]int16, error) {
		time.Sleep(2 * time.Millisecond)
		return loudFrame(), nil
	}}
	opener := &fakeOpener{streams: []*fakeStream{
		{frames: noiseFrames(1)},
		captureStream,
	}}

	transcriber := stt.TranscriberFunc(func(context.Context, []int16, int) (string, error) {
		return "long rambling command", nil
	})
	dispatcher := &fakeDispatcher{}

	cfg := testConfig()
	cfg.SilenceTimeout = 10 * time.Second
	cfg.PhraseLimit = 60 * time.Millisecond
	loop := NewLoop(engine, opener, transcriber, dispatcher, cfg, nil)

	start := time.Now()
	done := runLoop(t, loop)
	waitFor(t, "command dispatch", func() bool { return len(dispatcher.dispatched()) == 1 })

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("capture did not respect phrase limit, took %s", elapsed)
	}

	loop.Stop()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestLoopTranscriberErrorDiscardsUtterance(t *testing.T) {
	engine := &fakeEngine{results: []int{0}}
	captureStream := &fakeStream{onEmpty: func(time.Duration) ([]int16, error) {
		time.Sleep(2 * time.Millisecond)
		return make([]int16, testFrameLength), nil
	}}
	opener := &fakeOpener{streams: []*fakeStream{
		{frames: noiseFrames(1)},
		captureStream,
	}}

	transcriber := stt.TranscriberFunc(func(context.Context, []int16, int) (string, error) {
		return "", errors.New("stt backend unreachable")
	})
	dispatcher := &fakeDispatcher{}
	loop := NewLoop(engine, opener, transcriber, dispatcher, testConfig(), nil)

	done := runLoop(t, loop)
	waitFor(t, "return to idle", func() bool {
		return loop.State() == fsm.StateIdle && opener.openCount() >= 3
	})
	loop.Stop()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := dispatcher.dispatched(); len(got) != 0 {
		t.Fatalf("expected zero dispatches after transcriber error, got %v", got)
	}
}

func TestLoopBlankTranscriptionIsDiscarded(t *testing.T) {
	engine := &fakeEngine{results: []int{0}}
	captureStream := &fakeStream{onEmpty: func(time.Duration) ([]int16, error) {
		time.Sleep(2 * time.Millisecond)
		return make([]int16, testFrameLength), nil
	}}
	opener := &fakeOpener{streams: []*fakeStream{
		{frames: noiseFrames(1)},
		captureStream,
	}}

	transcriber := stt.TranscriberFunc(func(context.Context, []int16, int) (string, error) {
		return "   ", nil
	})
	dispatcher := &fakeDispatcher{}
	loop := NewLoop(engine, opener, transcriber, dispatcher, testConfig(), nil)

	done := runLoop(t, loop)
	waitFor(t, "return to idle", func() bool {
		return loop.State() == fsm.StateIdle && opener.openCount() >= 3
	})
	loop.Stop()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := dispatcher.dispatched(); len(got) != 0 {
		t.Fatalf("expected blank transcription to be discarded, got %v", got)
	}
}

func TestLoopDispatchErrorReturnsToIdle(t *testing.T) {
	engine := &fakeEngine{results: []int{0}}
	captureStream := &fakeStream{onEmpty: func(time.Duration) ([]int16, error) {
		time.Sleep(2 * time.Millisecond)
		return make([]int16, testFrameLength), nil
	}}
	opener := &fakeOpener{streams: []*fakeStream{
		{frames: noiseFrames(1)},
		captureStream,
	}}

	transcriber := stt.TranscriberFunc(func(context.Context, []int16, int) (string, error) {
		return "do the thing", nil
	})
	dispatcher := &fakeDispatcher{err: errors.New("consumer gone")}
	loop := NewLoop(engine, opener, transcriber, dispatcher, testConfig(), nil)

	done := runLoop(t, loop)
	waitFor(t, "return to idle", func() bool {
		return loop.State() == fsm.StateIdle && opener.openCount() >= 3
	})
	loop.Stop()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestLoopStopMidCaptureDiscardsBuffer(t *testing.T) {
	engine := &fakeEngine{results: []int{0}}

	var loopRef *Loop
	captureStream := &fakeStream{onEmpty: func(time.Duration) ([]int16, error) {
		loopRef.Stop()
		time.Sleep(time.Millisecond)
		return loudFrame(), nil
	}}
	opener := &fakeOpener{streams: []*fakeStream{
		{frames: noiseFrames(1)},
		captureStream,
	}}

	var transcribeCalls atomic.Int32
	transcriber := stt.TranscriberFunc(func(context.Context, []int16, int) (string, error) {
		transcribeCalls.Add(1)
		return "late", nil
	})
	dispatcher := &fakeDispatcher{}
	loop := NewLoop(engine, opener, transcriber, dispatcher, testConfig(), nil)
	loopRef = loop

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if loop.State() != fsm.StateStopped {
		t.Fatalf("expected stopped state, got %s", loop.State())
	}
	if calls := transcribeCalls.Load(); calls != 0 {
		t.Fatalf("expected discarded capture, got %d transcribe calls", calls)
	}
	if got := dispatcher.dispatched(); len(got) != 0 {
		t.Fatalf("expected zero dispatches, got %v", got)
	}
}

func TestLoopReopenFailureIsFatal(t *testing.T) {
	engine := &fakeEngine{results: []int{0}}
	captureStream := &fakeStream{onEmpty: func(time.Duration) ([]int16, error) {
		return nil, audio.ErrReadTimeout
	}}
	opener := &fakeOpener{
		streams: []*fakeStream{
			{frames: noiseFrames(1)},
			captureStream,
		},
		exhaustedErr: errors.New("device unplugged"),
	}
	loop := NewLoop(engine, opener, nil, &fakeDispatcher{}, testConfig(), nil)

	err := loop.Run(context.Background())
	if err == nil {
		t.Fatal("expected reopen failure to end the loop")
	}
	if loop.IsListening() {
		t.Fatal("expected listening false after fatal reopen failure")
	}
}

func TestHandleStatusAndStop(t *testing.T) {
	loop := NewLoop(&fakeEngine{}, &fakeOpener{}, nil, &fakeDispatcher{}, testConfig(), nil)

	resp := loop.Handle(context.Background(), ipc.Request{Command: "status"})
	if !resp.OK || resp.State != string(fsm.StateIdle) {
		t.Fatalf("unexpected status response: %+v", resp)
	}
	if resp.Listening || resp.Capturing {
		t.Fatalf("expected not listening before Run: %+v", resp)
	}

	resp = loop.Handle(context.Background(), ipc.Request{Command: "stop"})
	if !resp.OK {
		t.Fatalf("unexpected stop response: %+v", resp)
	}
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if loop.State() != fsm.StateStopped {
		t.Fatalf("expected stopped after handled stop, got %s", loop.State())
	}

	resp = loop.Handle(context.Background(), ipc.Request{Command: "reboot"})
	if resp.OK || resp.Error == "" {
		t.Fatalf("expected unknown command error, got %+v", resp)
	}
}
