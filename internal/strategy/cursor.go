package strategy

import "time"

// Slice is a contiguous part of the recording, bounded by two offsets from
// its start, that is submitted as one recognition sample.
type Slice struct {
	From      time.Duration
	To        time.Duration
	StepIndex int
	// Total marks the whole-recording sample emitted after the last step.
	Total bool
}

// Duration is the amount of audio covered by the slice.
func (s Slice) Duration() time.Duration {
	return s.To - s.From
}

// Cursor tracks one session's progress through a strategy. It is owned by a
// single session and is not safe for concurrent use.
type Cursor struct {
	strategy    *Strategy
	index       int
	windowStart time.Duration
}

// NewCursor returns a cursor positioned before the first step.
func NewCursor(s *Strategy) *Cursor {
	return &Cursor{strategy: s}
}

// Strategy returns the schedule the cursor walks.
func (c *Cursor) Strategy() *Strategy {
	return c.strategy
}

// Index is the index of the next step to fire.
func (c *Cursor) Index() int {
	return c.index
}

// Finished reports whether every sample of the strategy has been emitted.
func (c *Cursor) Finished() bool {
	return c.index > c.strategy.LastRecordingIndex()
}

// Next returns the offset at which the next slice becomes due.
func (c *Cursor) Next() time.Duration {
	return c.threshold(c.index)
}

func (c *Cursor) threshold(i int) time.Duration {
	if i >= len(c.strategy.steps) {
		return c.strategy.Duration()
	}
	return c.strategy.steps[i].At
}

// Advance emits the slice for the current step when elapsed has reached its
// timestamp. Calling Advance on a finished cursor is a programming error.
func (c *Cursor) Advance(elapsed time.Duration) (Slice, bool) {
	if c.Finished() {
		panic("strategy: advance called on a finished cursor")
	}
	if elapsed < c.threshold(c.index) {
		return Slice{}, false
	}

	if c.index == len(c.strategy.steps) {
		slice := Slice{From: 0, To: elapsed, StepIndex: c.index, Total: true}
		c.index++
		return slice, true
	}

	slice := Slice{From: c.windowStart, To: elapsed, StepIndex: c.index}
	if c.strategy.steps[c.index].Splitter {
		c.windowStart = elapsed
	}
	c.index++
	return slice, true
}

// Due advances the cursor as far as elapsed allows and returns every slice
// that became due, in step order.
func (c *Cursor) Due(elapsed time.Duration) []Slice {
	var out []Slice
	for !c.Finished() {
		slice, ok := c.Advance(elapsed)
		if !ok {
			break
		}
		out = append(out, slice)
	}
	return out
}

// IsExtraTryStart reports whether stepIndex is the splitter that opens the
// second attempt.
func (c *Cursor) IsExtraTryStart(stepIndex int) bool {
	return c.strategy.HasExtraTry() && stepIndex == c.strategy.extraTryIndex
}

// Attempt returns 0 for slices of the first attempt and 1 for slices that
// follow the extra-try splitter.
func (c *Cursor) Attempt(stepIndex int) int {
	if stepIndex > c.strategy.extraTryIndex {
		return 1
	}
	return 0
}
