package sim_test

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/hydroflow/internal/dynamo"
	"github.com/san-kum/hydroflow/internal/sim"
)

func decay(k float64) dynamo.Derivative {
	return dynamo.DerivativeFunc(func(t float64, y dynamo.State, f *dynamo.Forcing, final bool) dynamo.State {
		dy := make(dynamo.State, len(y))
		for i := range y {
			dy[i] = -k * y[i]
		}
		return dy
	})
}

var still = dynamo.DerivativeFunc(func(t float64, y dynamo.State, f *dynamo.Forcing, final bool) dynamo.State {
	return make(dynamo.State, len(y))
})

type recorder struct {
	times     []float64
	states    []dynamo.State
	steps     []float64
	stepTimes []float64
}

func (r *recorder) OnReport(t float64, x dynamo.State) {
	r.times = append(r.times, t)
	r.states = append(r.states, x.Clone())
}

func (r *recorder) OnStep(t, h float64, x dynamo.State) {
	r.steps = append(r.steps, h)
	r.stepTimes = append(r.stepTimes, t)
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("disk full") }

func forcing(n int, rain float64) *dynamo.Forcing {
	return dynamo.Uniform(n, dynamo.Values{Rain: rain})
}

var _ = Describe("Simulator", func() {
	var (
		ctx context.Context
		out *bytes.Buffer
	)

	BeforeEach(func() {
		ctx = context.Background()
		out = &bytes.Buffer{}
	})

	Describe("construction", func() {
		It("rejects invalid parameters", func() {
			_, err := sim.New(nil, 1e-3, 1, out, false)
			Expect(err).To(MatchError(dynamo.ErrInvalidParameter))

			_, err = sim.New(still, 0, 1, out, false)
			Expect(err).To(MatchError(dynamo.ErrInvalidParameter))

			_, err = sim.New(still, 1e-3, -1, out, false)
			Expect(err).To(MatchError(dynamo.ErrInvalidParameter))
		})

		It("validates and stores the basic time step", func() {
			s, err := sim.New(still, 1e-3, 1, out, false)
			Expect(err).NotTo(HaveOccurred())

			Expect(s.SetBasicTimeStep(0)).To(MatchError(dynamo.ErrInvalidParameter))
			Expect(s.SetBasicTimeStep(math.NaN())).To(MatchError(dynamo.ErrInvalidParameter))
			Expect(s.SetBasicTimeStep(2.5)).To(Succeed())
			Expect(s.BasicTimeStep()).To(Equal(2.5))
		})
	})

	Describe("Solve", func() {
		It("matches the analytic solution of exponential decay", func() {
			const (
				k   = 0.01
				eps = 1e-6
			)
			s, err := sim.New(decay(k), eps, 1, out, true)
			Expect(err).NotTo(HaveOccurred())

			Expect(s.Solve(ctx, 0, 600, 60, dynamo.State{10}, forcing(1, 0))).To(Succeed())

			final := s.FinalCond()
			Expect(final).To(HaveLen(1))
			now := s.Stats().CurrentTime
			Expect(now).To(BeNumerically("~", 600-1.0/60, 1e-9))

			expected := 10 * math.Exp(-k*now)
			Expect(math.Abs(final[0]-expected) / expected).To(BeNumerically("<", 100*eps))
		})

		It("keeps the lead discharge unchanged when the derivative is zero", func() {
			s, err := sim.New(still, 1e-3, 1, out, true)
			Expect(err).NotTo(HaveOccurred())
			rec := &recorder{}
			s.AddObserver(rec)

			Expect(s.Solve(ctx, 0, 600, 60, dynamo.State{5, 2}, forcing(1, 0))).To(Succeed())

			Expect(rec.states).NotTo(BeEmpty())
			for _, x := range rec.states {
				Expect(x[0]).To(BeNumerically("~", 5, 1e-12))
			}
			Expect(s.FinalCond()).To(Equal(dynamo.State{5, 2}))
			Expect(out.String()).To(ContainSubstring("Outlet discharge: 5"))
			Expect(out.String()).To(ContainSubstring("7 with avg rain: 0"))
		})

		It("reports at every target time", func() {
			s, err := sim.New(still, 1e-3, 1, out, true)
			Expect(err).NotTo(HaveOccurred())
			rec := &recorder{}
			s.AddObserver(rec)

			Expect(s.Solve(ctx, 0, 600, 60, dynamo.State{1}, forcing(1, 0))).To(Succeed())

			Expect(len(rec.times)).To(BeNumerically(">=", 9))
			for i := 0; i < 9; i++ {
				Expect(rec.times[i]).To(BeNumerically("~", float64(60*(i+1)), 1e-9))
			}
			lines := strings.Split(strings.TrimSpace(out.String()), "\n")
			Expect(lines[0]).To(HavePrefix("->  1970-01-01 01:00 / 1970-01-01 10:00"))
		})

		It("is deterministic across fresh instances", func() {
			run := func() (string, dynamo.State) {
				buf := &bytes.Buffer{}
				s, err := sim.New(decay(0.005), 1e-4, 1, buf, true)
				Expect(err).NotTo(HaveOccurred())
				Expect(s.Solve(ctx, 0, 480, 30, dynamo.State{4, 1}, forcing(1, 1.5))).To(Succeed())
				return buf.String(), s.FinalCond()
			}

			out1, y1 := run()
			out2, y2 := run()
			Expect(out1).To(Equal(out2))
			Expect(y1).To(Equal(y2))
		})

		It("fails with an integration error when the derivative returns NaN", func() {
			calls := 0
			fn := dynamo.DerivativeFunc(func(t float64, y dynamo.State, f *dynamo.Forcing, final bool) dynamo.State {
				calls++
				if calls == 40 {
					return dynamo.State{math.NaN()}
				}
				return dynamo.State{-0.001 * y[0]}
			})
			s, err := sim.New(fn, 1e-3, 1, out, false)
			Expect(err).NotTo(HaveOccurred())

			err = s.Solve(ctx, 0, 600, 60, dynamo.State{10}, forcing(1, 0))
			Expect(err).To(MatchError(dynamo.ErrIntegration))
			Expect(dynamo.IsIntegrationFailure(err)).To(BeTrue())

			var ie *dynamo.IntegrationError
			Expect(errors.As(err, &ie)).To(BeTrue())
			Expect(ie.Index).To(Equal(0))
			Expect(s.FinalCond()).To(BeNil())
		})

		It("stops early once the outlet runs dry", func() {
			s, err := sim.New(decay(0.1), 1e-3, 1, out, true)
			Expect(err).NotTo(HaveOccurred())

			Expect(s.Solve(ctx, 0, 600, 60, dynamo.State{1}, forcing(1, 0))).To(Succeed())

			stats := s.Stats()
			Expect(stats.DryExit).To(BeTrue())
			Expect(stats.CurrentTime).To(BeNumerically("<=", 120))
			Expect(out.String()).To(ContainSubstring("Discharge in outlet less than the threshold."))
			Expect(out.String()).To(ContainSubstring(sim.Unexpected))
			Expect(out.String()).NotTo(ContainSubstring("with avg rain"))
		})

		It("grows the step size while the error stays below tolerance", func() {
			s, err := sim.New(decay(0.001), 1e-3, 0.1, out, false)
			Expect(err).NotTo(HaveOccurred())
			rec := &recorder{}
			s.AddObserver(rec)

			Expect(s.Solve(ctx, 0, 60, 60, dynamo.State{5}, forcing(1, 0))).To(Succeed())

			Expect(len(rec.steps)).To(BeNumerically(">=", 2))
			Expect(rec.steps[1]).To(BeNumerically(">", rec.steps[0]))
			Expect(s.BasicTimeStep()).To(BeNumerically(">", 0.1))
		})

		It("carries the step size over to the next call", func() {
			s, err := sim.New(decay(0.001), 1e-3, 0.1, out, false)
			Expect(err).NotTo(HaveOccurred())

			Expect(s.Solve(ctx, 0, 600, 60, dynamo.State{5}, forcing(1, 0))).To(Succeed())
			carried := s.BasicTimeStep()
			Expect(carried).NotTo(Equal(0.1))

			evals := s.Stats().Evaluations
			Expect(s.Solve(ctx, 600, 1200, 60, s.FinalCond(), forcing(1, 0))).To(Succeed())
			Expect(s.Stats().Evaluations).To(BeNumerically(">", evals))
		})

		It("passes the final flag only on the last step", func() {
			finals := 0
			var lastT float64
			fn := dynamo.DerivativeFunc(func(t float64, y dynamo.State, f *dynamo.Forcing, final bool) dynamo.State {
				if final {
					finals++
					lastT = t
				}
				return make(dynamo.State, len(y))
			})
			s, err := sim.New(fn, 1e-3, 1, out, false)
			Expect(err).NotTo(HaveOccurred())

			Expect(s.Solve(ctx, 0, 120, 60, dynamo.State{1}, forcing(1, 0))).To(Succeed())
			Expect(finals).To(Equal(1))
			Expect(lastT).To(BeNumerically(">", 60))
		})

		It("surfaces output sink failures", func() {
			s, err := sim.New(still, 1e-3, 1, failingWriter{}, true)
			Expect(err).NotTo(HaveOccurred())

			err = s.Solve(ctx, 0, 120, 60, dynamo.State{1}, forcing(1, 0))
			Expect(err).To(MatchError(dynamo.ErrOutput))
			Expect(dynamo.IsIntegrationFailure(err)).To(BeFalse())
		})

		It("stops when the context is canceled", func() {
			s, err := sim.New(still, 1e-3, 1, out, false)
			Expect(err).NotTo(HaveOccurred())

			canceled, cancel := context.WithCancel(ctx)
			cancel()
			err = s.Solve(canceled, 0, 120, 60, dynamo.State{1}, forcing(1, 0))
			Expect(err).To(MatchError(dynamo.ErrCanceled))
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		})

		DescribeTable("never steps past the interval end when the report step does not divide it",
			func(k, eps, h, end float64) {
				s, err := sim.New(decay(k), eps, h, out, false)
				Expect(err).NotTo(HaveOccurred())
				rec := &recorder{}
				s.AddObserver(rec)

				Expect(s.Solve(ctx, 0, end, 60, dynamo.State{10}, forcing(1, 0))).To(Succeed())

				Expect(rec.stepTimes).NotTo(BeEmpty())
				for _, t := range rec.stepTimes {
					Expect(t).To(BeNumerically("<=", end))
				}
				now := s.Stats().CurrentTime
				Expect(now).To(BeNumerically("~", end-1.0/60, 1e-9))
				Expect(out.String()).To(ContainSubstring("with avg rain: 0"))
				Expect(out.String()).NotTo(ContainSubstring(sim.Unexpected))

				expected := 10 * math.Exp(-k*now)
				Expect(math.Abs(s.FinalCond()[0]-expected) / expected).To(BeNumerically("<", 100*eps))
			},
			Entry("interval longer than one report", 0.01, 1e-6, 1.0, 90.0),
			Entry("tight tolerance", 0.002, 1e-8, 1.0, 70.0),
			Entry("small initial step", 0.01, 1e-8, 0.5, 130.0),
			Entry("interval shorter than one report", 0.01, 1e-6, 1.0, 30.0),
		)

		DescribeTable("rejects invalid runs",
			func(start, end, report float64, y0 dynamo.State, want error) {
				s, err := sim.New(still, 1e-3, 1, out, false)
				Expect(err).NotTo(HaveOccurred())
				Expect(s.Solve(ctx, start, end, report, y0, forcing(1, 0))).To(MatchError(want))
			},
			Entry("empty interval", 10.0, 10.0, 1.0, dynamo.State{1}, dynamo.ErrInvalidParameter),
			Entry("zero report step", 0.0, 10.0, 0.0, dynamo.State{1}, dynamo.ErrInvalidParameter),
			Entry("empty state", 0.0, 10.0, 1.0, dynamo.State{}, dynamo.ErrInvalidState),
			Entry("negative state", 0.0, 10.0, 1.0, dynamo.State{-1}, dynamo.ErrInvalidState),
			Entry("NaN state", 0.0, 10.0, 1.0, dynamo.State{math.NaN()}, dynamo.ErrInvalidState),
		)
	})
})
