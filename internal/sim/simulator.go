package sim

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/go-logr/logr"

	"github.com/san-kum/hydroflow/internal/dynamo"
	"github.com/san-kum/hydroflow/internal/integrators"
)

const (
	// DryThreshold is the outlet discharge below which the network is
	// considered dry and a Solve call stops early.
	DryThreshold = 1e-3

	// finalGuard keeps the last step one second short of the interval end.
	finalGuard = 1.0 / 60.0

	// Unexpected is written instead of the summary line when no final step
	// could be taken.
	Unexpected = "WARNING, UNEXPECTED"

	dryMessage = "Discharge in outlet less than the threshold."
)

// Simulator integrates a network over requested intervals with an adaptive
// Runge-Kutta-Fehlberg stepper. The internal step size carries over from one
// Solve call to the next, so a Simulator must not be shared between
// concurrent runs.
type Simulator struct {
	fn          dynamo.Derivative
	stepper     *integrators.RKF45
	basicStep   float64
	out         io.Writer
	logProgress bool
	log         logr.Logger

	finalStage bool
	finalCond  dynamo.State
	stats      Stats

	metrics   []Metric
	observers []Observer
}

// New returns a Simulator for fn with relative tolerance epsilon and an
// initial internal step of basicStep minutes. Progress and summary lines go
// to out; progress lines are written only when logProgress is set.
func New(fn dynamo.Derivative, epsilon, basicStep float64, out io.Writer, logProgress bool) (*Simulator, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: derivative function is required", dynamo.ErrInvalidParameter)
	}
	if !(epsilon > 0) || math.IsInf(epsilon, 0) {
		return nil, fmt.Errorf("%w: epsilon must be positive, got %v", dynamo.ErrInvalidParameter, epsilon)
	}
	if err := validateStep(basicStep); err != nil {
		return nil, err
	}
	if out == nil {
		out = io.Discard
	}

	return &Simulator{
		fn:          fn,
		stepper:     integrators.NewRKF45(epsilon),
		basicStep:   basicStep,
		out:         out,
		logProgress: logProgress,
		log:         logr.Discard(),
		finalStage:  true,
		metrics:     make([]Metric, 0),
		observers:   make([]Observer, 0),
	}, nil
}

func (s *Simulator) SetLogger(log logr.Logger) { s.log = log }
func (s *Simulator) AddMetric(m Metric)        { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o Observer)    { s.observers = append(s.observers, o) }

// SetBasicTimeStep overrides the remembered internal step size (minutes).
func (s *Simulator) SetBasicTimeStep(minutes float64) error {
	if err := validateStep(minutes); err != nil {
		return err
	}
	s.basicStep = minutes
	return nil
}

func (s *Simulator) BasicTimeStep() float64 { return s.basicStep }

// FinalCond returns the state reached by the last successful Solve call, or
// nil if the last call failed.
func (s *Simulator) FinalCond() dynamo.State { return s.finalCond }

func (s *Simulator) Stats() Stats {
	st := s.stats
	st.Evaluations = s.stepper.Evaluations()
	st.Refinements = s.stepper.Refinements()
	return st
}

// Metrics returns the current value of every registered metric.
func (s *Simulator) Metrics() map[string]float64 {
	out := make(map[string]float64, len(s.metrics))
	for _, m := range s.metrics {
		out[m.Name()] = m.Value()
	}
	return out
}

// Solve integrates y0 from start to end (minutes) under constant forcing f,
// closing a target time every report minutes. It returns an error wrapping
// dynamo.ErrIntegration on a numerical failure and dynamo.ErrOutput when the
// output sink fails.
func (s *Simulator) Solve(ctx context.Context, start, end, report float64, y0 dynamo.State, f *dynamo.Forcing) error {
	s.finalCond = nil
	if err := s.validateRun(start, end, report, y0, f); err != nil {
		return err
	}

	out := &sinkWriter{w: s.out}
	s.finalStage = false
	s.stats.DryExit = false

	s.log.V(1).Info("solving interval",
		"start", FormatMinutes(start), "end", FormatMinutes(end),
		"report", report, "basicStep", s.basicStep)

	y := y0
	now := start
	target := start

	for now < end {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", dynamo.ErrCanceled, err)
		}

		target = math.Min(now+report, end)
		for now < target {
			sol, err := s.step(now, y, s.basicStep, false, f)
			if err != nil {
				return err
			}
			if now+sol.StepSize > target {
				break
			}
			s.basicStep = sol.StepSize
			now += s.basicStep
			if y, err = s.accept(now, sol); err != nil {
				return err
			}
		}

		if target == end {
			break
		}

		if gap := target - now; gap > 0 {
			sol, err := s.step(now, y, gap, true, f)
			if err != nil {
				return err
			}
			if now+sol.StepSize >= end {
				break
			}
			if y.Lead() < DryThreshold {
				s.dryExit(out, now)
				break
			}
			s.basicStep = sol.StepSize
			now += s.basicStep
			if y, err = s.accept(now, sol); err != nil {
				return err
			}
		} else if y.Lead() < DryThreshold {
			s.dryExit(out, now)
			break
		}

		s.report(now, y)
		if s.logProgress {
			if err := out.printf("->  %s / %s Outlet discharge: %v",
				FormatMinutes(now), FormatMinutes(end), y.Lead()); err != nil {
				return err
			}
		}
	}
	if out.err != nil {
		return out.err
	}

	s.finalStage = true
	if end-now > finalGuard && y.Lead() > DryThreshold {
		sol, err := s.step(now, y, end-now-finalGuard, true, f)
		if err != nil {
			return err
		}
		s.basicStep = sol.StepSize
		now += s.basicStep
		if y, err = s.accept(now, sol); err != nil {
			return err
		}
		s.report(now, y)

		if err := out.printf("%s / %s %v with avg rain: %v",
			FormatMinutes(now), FormatMinutes(end), summaryDischarge(y, f), f.MeanRain()); err != nil {
			return err
		}
	} else if err := out.printf("%s", Unexpected); err != nil {
		return err
	}

	if err := y.Check(now); err != nil {
		return err
	}

	s.stats.CurrentTime = now
	s.finalCond = y
	s.log.V(1).Info("interval solved", "time", FormatMinutes(now), "discharge", y.Lead(), "basicStep", s.basicStep)
	return nil
}

func (s *Simulator) step(now float64, y dynamo.State, h float64, finalize bool, f *dynamo.Forcing) (integrators.Solution, error) {
	sol, err := s.stepper.Step(s.fn, now, y, h, f, finalize, s.finalStage)
	if err != nil {
		return sol, err
	}
	if sol.Refined {
		s.log.V(2).Info("step refined", "time", now, "from", h, "to", sol.StepSize, "delta", sol.Delta)
	}
	return sol, nil
}

// accept runs the numerical guard on an accepted solution and returns its state.
func (s *Simulator) accept(now float64, sol integrators.Solution) (dynamo.State, error) {
	if err := sol.State.Check(now); err != nil {
		return nil, err
	}
	s.stats.observeStep(sol.StepSize)
	s.stats.CurrentTime = now
	for _, o := range s.observers {
		if so, ok := o.(StepObserver); ok {
			so.OnStep(now, sol.StepSize, sol.State)
		}
	}
	return sol.State, nil
}

func (s *Simulator) report(now float64, y dynamo.State) {
	s.stats.Reports++
	for _, m := range s.metrics {
		m.Observe(y, now)
	}
	for _, o := range s.observers {
		o.OnReport(now, y)
	}
	s.log.V(1).Info("target time closed", "time", FormatMinutes(now), "discharge", y.Lead(), "basicStep", s.basicStep)
}

func (s *Simulator) dryExit(out *sinkWriter, now float64) {
	s.stats.DryExit = true
	s.log.Info("outlet discharge below threshold, stopping early", "time", FormatMinutes(now), "threshold", DryThreshold)
	_ = out.printf("%s", dryMessage)
}

// summaryDischarge adds the first subsurface component, which follows the
// per-node discharges, to the outlet discharge when the state has one.
func summaryDischarge(y dynamo.State, f *dynamo.Forcing) float64 {
	n := f.Nodes()
	if n > 0 && n < len(y) {
		return y[0] + y[n]
	}
	return y[0]
}

func (s *Simulator) validateRun(start, end, report float64, y0 dynamo.State, f *dynamo.Forcing) error {
	if math.IsNaN(start) || math.IsInf(start, 0) || !(end > start) || math.IsInf(end, 0) {
		return fmt.Errorf("%w: interval [%v, %v] is empty", dynamo.ErrInvalidParameter, start, end)
	}
	if !(report > 0) || math.IsInf(report, 0) {
		return fmt.Errorf("%w: report step must be positive, got %v", dynamo.ErrInvalidParameter, report)
	}
	if len(y0) == 0 {
		return fmt.Errorf("%w: empty initial state", dynamo.ErrInvalidState)
	}
	for i, v := range y0 {
		if !(v >= 0) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: component %d is %v", dynamo.ErrInvalidState, i, v)
		}
	}
	return f.Validate()
}

func validateStep(minutes float64) error {
	if !(minutes > 0) || math.IsInf(minutes, 0) {
		return fmt.Errorf("%w: step size must be positive, got %v", dynamo.ErrInvalidParameter, minutes)
	}
	return nil
}
