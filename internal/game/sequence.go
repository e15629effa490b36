package game

import "sync/atomic"

// Sequence hands out process-wide increasing stream ids.
type Sequence struct {
	n atomic.Int64
}

func NewSequence() *Sequence {
	return &Sequence{}
}

// Next returns the next id, starting at 1.
func (s *Sequence) Next() int64 {
	return s.n.Add(1)
}

// Reset restarts the sequence. Only meant for tests and tooling.
func (s *Sequence) Reset() {
	s.n.Store(0)
}
