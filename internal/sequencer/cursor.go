package sequencer

import "github.com/cbegin/trackseq-go/internal/timeline"

type Status uint8

const (
	StatusPlaying Status = iota
	StatusEnded
)

// Step is the result of one Cursor.Advance: how much time was granted and the
// delta line that applies from the start of that time, if any.
type Step struct {
	Elapsed float64
	Delta   timeline.Line
	Status  Status
}

// Cursor walks the order list, pattern by pattern and line by line, in
// milliseconds. It never looks at sample rates.
type Cursor struct {
	tl    *timeline.Timeline
	order int // -1 until the first Advance
	line  int
	acc   float64
	div   float64
	next  timeline.Line
	ended bool
}

func NewCursor(tl *timeline.Timeline) *Cursor {
	c := &Cursor{tl: tl}
	c.Reset()
	return c
}

// Reset returns to the not-started state.
func (c *Cursor) Reset() {
	c.order = -1
	c.line = 0
	c.acc = 0
	c.next = nil
	c.ended = false
	c.div = 0
	if ms, ok := c.tl.DivisionMs(c.tl.Initial[timeline.GlobalColumn]); ok {
		c.div = ms
	}
}

func (c *Cursor) Ended() bool { return c.ended }

// DivisionMs is the duration of the current line.
func (c *Cursor) DivisionMs() float64 { return c.div }

// Position returns the order entry and line the cursor is on.
func (c *Cursor) Position() (order, line int) { return c.order, c.line }

// Advance grants up to req milliseconds of the current line. The first call
// grants nothing and returns the initial line; every later call returns the
// line that was prefetched when the previous line ran out.
func (c *Cursor) Advance(req float64) Step {
	if c.ended {
		return Step{Status: StatusEnded}
	}
	if c.order < 0 {
		delta := append(timeline.Line(nil), c.tl.Initial...)
		delta[timeline.GlobalColumn] = timeline.NoRow
		c.order = 0
		c.line = 0
		c.seek()
		return Step{Delta: delta}
	}
	delta := c.next
	c.next = nil
	remaining := c.div - c.acc
	if remaining < 0 {
		remaining = 0
	}
	elapsed := req
	if elapsed > remaining {
		elapsed = remaining
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= remaining {
		c.acc = 0
		c.line++
		c.seek()
	} else {
		c.acc += elapsed
	}
	return Step{Elapsed: elapsed, Delta: delta}
}

// seek settles on the first existing line at or after (order, line), skipping
// empty patterns, and prefetches it. Running off the order list ends the
// cursor.
func (c *Cursor) seek() {
	for c.order < len(c.tl.Order) {
		pat := c.tl.Patterns[c.tl.Order[c.order]]
		if c.line < len(pat) {
			c.next = pat[c.line]
			if ms, ok := c.tl.DivisionMs(c.next[timeline.GlobalColumn]); ok {
				c.div = ms
			}
			return
		}
		c.order++
		c.line = 0
	}
	c.ended = true
}
