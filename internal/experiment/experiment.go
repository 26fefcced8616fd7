package experiment

import (
	"context"
	"fmt"
	"io"

	"github.com/san-kum/hydroflow/internal/dynamo"
	"github.com/san-kum/hydroflow/internal/forcing"
	"github.com/san-kum/hydroflow/internal/sim"
)

// Config describes a multi-interval run. Times are minutes since the Unix
// epoch.
type Config struct {
	Model       string
	Nodes       int
	InitState   dynamo.State
	Start       float64
	Interval    float64
	Intervals   int
	ReportStep  float64
	Epsilon     float64
	BasicStep   float64
	LogProgress bool
	Forcing     *forcing.Series
}

type Experiment struct {
	cfg       Config
	simulator *sim.Simulator
	recorder  *Recorder
}

func New(cfg Config) *Experiment {
	return &Experiment{cfg: cfg}
}

// Setup builds the simulator for fn. Progress and summary lines of every
// interval go to out.
func (e *Experiment) Setup(fn dynamo.Derivative, out io.Writer, metrics []sim.Metric) error {
	s, err := sim.New(fn, e.cfg.Epsilon, e.cfg.BasicStep, out, e.cfg.LogProgress)
	if err != nil {
		return err
	}
	for _, m := range metrics {
		s.AddMetric(m)
	}
	e.recorder = NewRecorder()
	s.AddObserver(e.recorder)
	e.simulator = s
	return nil
}

// Run solves one interval per forcing row. The state and the adaptive step
// size reached at the end of an interval seed the next one.
func (e *Experiment) Run(ctx context.Context) (*dynamo.Result, error) {
	if e.simulator == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	if e.cfg.Intervals < 1 {
		return nil, fmt.Errorf("%w: intervals must be at least 1, got %d", dynamo.ErrInvalidParameter, e.cfg.Intervals)
	}

	y := e.cfg.InitState.Clone()
	for i := 0; i < e.cfg.Intervals; i++ {
		start := e.cfg.Start + float64(i)*e.cfg.Interval
		f := e.cfg.Forcing.At(i, e.cfg.Nodes)

		if err := e.simulator.Solve(ctx, start, start+e.cfg.Interval, e.cfg.ReportStep, y, f); err != nil {
			return nil, fmt.Errorf("interval %d: %w", i, err)
		}
		y = e.simulator.FinalCond()
	}

	return &dynamo.Result{
		States:     e.recorder.States,
		Times:      e.recorder.Times,
		Metrics:    e.simulator.Metrics(),
		StepsTaken: e.simulator.Stats().Steps,
	}, nil
}

// GetSimulator returns the underlying simulator for adding observers
func (e *Experiment) GetSimulator() *sim.Simulator {
	return e.simulator
}

// Recorder keeps a copy of every reported state.
type Recorder struct {
	States []dynamo.State
	Times  []float64
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) OnReport(t float64, x dynamo.State) {
	r.States = append(r.States, x.Clone())
	r.Times = append(r.Times, t)
}
