// Package dispatch hands recognized commands from the wake loop to a
// consumer running on its own goroutine. The wake loop performs a bounded
// blocking wait for each handoff so a slow consumer can delay, but never
// wedge, the next listening cycle.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrBridgeClosed reports dispatch attempts after Close.
var ErrBridgeClosed = errors.New("dispatch bridge is closed")

// Consumer handles one recognized command.
type Consumer interface {
	Consume(ctx context.Context, text string) error
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(ctx context.Context, text string) (err error)

func (f ConsumerFunc) Consume(ctx context.Context, text string) error {
	return f(ctx, text)
}

// Bridge owns the consumer goroutine and its job queue.
type Bridge struct {
	consumer Consumer
	logger   *slog.Logger
	wait     time.Duration

	jobs chan job
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

type job struct {
	text   string
	result chan error
}

// NewBridge starts the consumer goroutine. wait bounds how long Dispatch
// blocks for a result before resuming the caller; the job keeps running.
func NewBridge(consumer Consumer, wait time.Duration, logger *slog.Logger) *Bridge {
	if wait <= 0 {
		wait = 30 * time.Second
	}
	b := &Bridge{
		consumer: consumer,
		logger:   logger,
		wait:     wait,
		jobs:     make(chan job, 8),
		done:     make(chan struct{}),
	}
	b.wg.Add(1)
	go b.run()
	return b
}

// Dispatch schedules text onto the consumer goroutine and blocks until the
// consumer finishes, the bounded wait elapses, or ctx is cancelled. A wait
// timeout is not an error: the job keeps running and the caller resumes.
func (b *Bridge) Dispatch(ctx context.Context, text string) error {
	// Checked before the send so a closed bridge wins over the buffered
	// jobs channel.
	select {
	case <-b.done:
		return ErrBridgeClosed
	default:
	}

	j := job{text: text, result: make(chan error, 1)}

	select {
	case <-b.done:
		return ErrBridgeClosed
	case <-ctx.Done():
		return ctx.Err()
	case b.jobs <- j:
	}

	timer := time.NewTimer(b.wait)
	defer timer.Stop()

	select {
	case err := <-j.result:
		return err
	case <-b.done:
		// Close raced the enqueue; the consumer goroutine may have exited
		// without picking this job up. Prefer a result that landed first.
		select {
		case err := <-j.result:
			return err
		default:
			return ErrBridgeClosed
		}
	case <-timer.C:
		if b.logger != nil {
			b.logger.Warn("dispatch still running after wait; resuming listening", "wait", b.wait.String())
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and waits for the consumer goroutine. In-flight
// jobs finish; queued jobs are abandoned.
func (b *Bridge) Close() error {
	b.once.Do(func() {
		close(b.done)
		b.wg.Wait()
	})
	return nil
}

func (b *Bridge) run() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case j := <-b.jobs:
			j.result <- b.consume(j.text)
		}
	}
}

// consume contains consumer panics so one bad handler cannot kill the loop.
func (b *Bridge) consume(text string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch consumer panic: %v", r)
			if b.logger != nil {
				b.logger.Error("dispatch consumer panicked", "panic", fmt.Sprint(r))
			}
		}
	}()
	return b.consumer.Consume(context.Background(), text)
}
