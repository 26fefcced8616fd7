package sim

import "github.com/san-kum/hydroflow/internal/dynamo"

// Observer is notified each time a target time is closed and once more after
// the final step of a Solve call.
type Observer interface {
	OnReport(t float64, x dynamo.State)
}

// StepObserver is optionally implemented by observers that also want every
// accepted internal step.
type StepObserver interface {
	OnStep(t, h float64, x dynamo.State)
}

type Metric interface {
	Name() string
	Observe(x dynamo.State, t float64)
	Value() float64
	Reset()
}

// Stats accumulates over every Solve call made on a Simulator.
type Stats struct {
	Steps       int     `json:"steps"`
	Reports     int     `json:"reports"`
	Refinements int     `json:"refinements"`
	Evaluations int     `json:"evaluations"`
	MinStep     float64 `json:"min_step"`
	MaxStep     float64 `json:"max_step"`
	LastStep    float64 `json:"last_step"`
	CurrentTime float64 `json:"current_time"`
	DryExit     bool    `json:"dry_exit"`
}

func (s *Stats) observeStep(h float64) {
	s.Steps++
	s.LastStep = h
	if s.MinStep == 0 || h < s.MinStep {
		s.MinStep = h
	}
	if h > s.MaxStep {
		s.MaxStep = h
	}
}
