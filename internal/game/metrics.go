package game

import "time"

// Metrics receives measurements of game activity. internal/metrics provides
// the Prometheus implementation.
type Metrics interface {
	ActionProcessed(kind Kind, elapsed time.Duration, err error)
	SideActionFinished(kind Kind, elapsed time.Duration, err error)
	SideActionSkipped(kind Kind)
}

type nopMetrics struct{}

func (nopMetrics) ActionProcessed(Kind, time.Duration, error)    {}
func (nopMetrics) SideActionFinished(Kind, time.Duration, error) {}
func (nopMetrics) SideActionSkipped(Kind)                        {}
