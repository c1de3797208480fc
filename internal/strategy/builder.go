package strategy

import "time"

// Builder accumulates steps and reports the first ordering violation from
// Build.
type Builder struct {
	steps          []Step
	sendTotalAtEnd bool
	extraTryIndex  int
	err            error
}

// NewBuilder returns a builder that sends the total recording at the end
// unless told otherwise.
func NewBuilder() *Builder {
	return &Builder{sendTotalAtEnd: true, extraTryIndex: -1}
}

// AddStep appends a non-splitter step firing at the given offset.
func (b *Builder) AddStep(at time.Duration) *Builder {
	if b.err != nil {
		return b
	}
	n := len(b.steps)
	if at < 0 {
		b.err = &ConstructionError{Index: n, Err: ErrNegativeStep}
		return b
	}
	if n > 0 && at <= b.steps[n-1].At {
		b.err = &ConstructionError{Index: n, Err: ErrNonIncreasing}
		return b
	}
	b.steps = append(b.steps, Step{At: at})
	return b
}

// AddSplitter turns the most recently added step into a splitter. It does
// nothing when no step has been added yet.
func (b *Builder) AddSplitter(startOfExtraTry bool) *Builder {
	n := len(b.steps)
	if n == 0 {
		return b
	}
	b.steps[n-1].Splitter = true
	if startOfExtraTry {
		b.extraTryIndex = n - 1
	}
	return b
}

// SendTotalAtEnd sets whether the whole recording is emitted after the last
// step.
func (b *Builder) SendTotalAtEnd(send bool) *Builder {
	b.sendTotalAtEnd = send
	return b
}

// Build validates the accumulated steps.
func (b *Builder) Build() (*Strategy, error) {
	if b.err != nil {
		return nil, b.err
	}
	return New(b.steps, WithTotalAtEnd(b.sendTotalAtEnd), WithExtraTry(b.extraTryIndex))
}
