package pipeline

import "time"

// Capture accumulates one utterance worth of PCM frames under the control of
// an Endpointer. Start resets state, Push appends and feeds the endpointer,
// Finish hands the buffer back. An abandoned capture is simply never
// finished; the next Start discards it.
type Capture struct {
	endpointer *Endpointer

	start  time.Time
	buffer []int16
	frames int
}

// NewCapture binds a capture buffer to its endpointer.
func NewCapture(endpointer *Endpointer) *Capture {
	return &Capture{endpointer: endpointer}
}

// Start resets the buffer and timestamps for a new utterance.
func (c *Capture) Start(now time.Time) {
	c.start = now
	c.buffer = c.buffer[:0]
	c.frames = 0
	c.endpointer.Reset(now)
}

// Push appends one frame and updates the endpointer.
func (c *Capture) Push(frame []int16, now time.Time) {
	c.buffer = append(c.buffer, frame...)
	c.frames++
	c.endpointer.OnFrame(frame, now)
}

// Done reports whether the endpointer's deadlines have ended this capture.
func (c *Capture) Done(now time.Time, silenceTimeout, phraseLimit time.Duration) bool {
	return c.endpointer.ShouldStop(now, silenceTimeout, phraseLimit, c.start)
}

// Finish returns the captured samples. The result may be empty; callers skip
// transcription in that case.
func (c *Capture) Finish() []int16 {
	out := make([]int16, len(c.buffer))
	copy(out, c.buffer)
	return out
}

// Frames reports how many frames the current capture holds.
func (c *Capture) Frames() int {
	return c.frames
}

// Duration reports elapsed capture time.
func (c *Capture) Duration(now time.Time) time.Duration {
	return now.Sub(c.start)
}
