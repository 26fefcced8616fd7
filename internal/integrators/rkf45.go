package integrators

import (
	"fmt"
	"math"

	"github.com/san-kum/hydroflow/internal/dynamo"
)

// Cash-Karp embedded 4(5) coefficients.
var (
	// a holds the stage abscissas. Stages are evaluated at the start time of
	// the step, so a is kept only to document the tableau.
	a = [6]float64{0, 1.0 / 5.0, 3.0 / 10.0, 3.0 / 5.0, 1, 7.0 / 8.0}

	b = [6][5]float64{
		{},
		{1.0 / 5.0},
		{3.0 / 40.0, 9.0 / 40.0},
		{3.0 / 10.0, -9.0 / 10.0, 6.0 / 5.0},
		{-11.0 / 54.0, 5.0 / 2.0, -70.0 / 27.0, 35.0 / 27.0},
		{1631.0 / 55296.0, 175.0 / 512.0, 575.0 / 13824.0, 44275.0 / 110592.0, 253.0 / 4096.0},
	}

	c     = [6]float64{37.0 / 378.0, 0, 250.0 / 621.0, 125.0 / 594.0, 0, 512.0 / 1771.0}
	cStar = [6]float64{2825.0 / 27648.0, 0, 18575.0 / 48384.0, 13525.0 / 55296.0, 277.0 / 14336.0, 1.0 / 4.0}
)

const (
	// zeroErrorFactor stands in for epsilon/delta when both estimates agree exactly.
	zeroErrorFactor = 1e8
	growExponent    = 0.15
	shrinkExponent  = 0.25
)

// Solution is the outcome of an accepted step.
type Solution struct {
	State    dynamo.State
	StepSize float64
	Delta    float64
	Refined  bool
}

// RKF45 is an embedded Runge-Kutta-Fehlberg 4(5) stepper. Every stage
// combination is floored at zero, so states stay non-negative.
//
// A step that is not final is attempted once, the step size is rescaled from
// the local error, and the step is redone at the new size and accepted as is.
// There is no further rejection loop, so the tolerance is only approximately
// honored.
type RKF45 struct {
	epsilon float64

	k       [6]dynamo.State
	carrier dynamo.State

	evaluations int
	refinements int
}

func NewRKF45(epsilon float64) *RKF45 {
	return &RKF45{epsilon: epsilon}
}

func (r *RKF45) Epsilon() float64 { return r.epsilon }

// Evaluations returns the number of derivative evaluations made so far.
func (r *RKF45) Evaluations() int { return r.evaluations }

// Refinements returns the number of rescaled re-attempts made so far.
func (r *RKF45) Refinements() int { return r.refinements }

func (r *RKF45) ensureScratch(n int) {
	if len(r.carrier) != n {
		for i := range r.k {
			r.k[i] = make(dynamo.State, n)
		}
		r.carrier = make(dynamo.State, n)
	}
}

// Step advances y from t by h. With finalize set the attempt is accepted
// unconditionally; otherwise the step is redone once at the size suggested by
// the local error. finalStage is forwarded to the last stage evaluation only.
func (r *RKF45) Step(fn dynamo.Derivative, t float64, y dynamo.State, h float64, f *dynamo.Forcing, finalize, finalStage bool) (Solution, error) {
	refined := false
	for {
		y5, y4, err := r.attempt(fn, t, y, h, f, finalStage)
		if err != nil {
			return Solution{}, err
		}
		delta := LocalError(y5, y4)

		if finalize {
			return Solution{State: y5, StepSize: h, Delta: delta, Refined: refined}, nil
		}

		h = NextStepSize(h, delta, r.epsilon)
		finalize = true
		refined = true
		r.refinements++
	}
}

func (r *RKF45) attempt(fn dynamo.Derivative, t float64, y dynamo.State, h float64, f *dynamo.Forcing, finalStage bool) (dynamo.State, dynamo.State, error) {
	n := len(y)
	r.ensureScratch(n)

	if err := r.eval(fn, 0, t, y, f, false); err != nil {
		return nil, nil, err
	}

	for stage := 1; stage < 6; stage++ {
		for i := 0; i < n; i++ {
			sum := 0.0
			for j := 0; j < stage; j++ {
				sum += b[stage][j] * r.k[j][i]
			}
			r.carrier[i] = math.Max(0, y[i]+h*sum)
		}
		if err := checkStage(r.carrier, t, h, fmt.Sprintf("stage %d", stage)); err != nil {
			return nil, nil, err
		}
		if err := r.eval(fn, stage, t, r.carrier, f, stage == 5 && finalStage); err != nil {
			return nil, nil, err
		}
	}

	y5 := r.combine(y, h, c)
	if err := checkStage(y5, t, h, "5th-order estimate"); err != nil {
		return nil, nil, err
	}
	y4 := r.combine(y, h, cStar)
	if err := checkStage(y4, t, h, "4th-order estimate"); err != nil {
		return nil, nil, err
	}

	return y5, y4, nil
}

func (r *RKF45) eval(fn dynamo.Derivative, stage int, t float64, x dynamo.State, f *dynamo.Forcing, final bool) error {
	k := fn.Eval(t, x, f, final)
	r.evaluations++
	if len(k) != len(x) {
		return fmt.Errorf("%w: stage %d derivative has %d components, state has %d",
			dynamo.ErrDimensionMismatch, stage, len(k), len(x))
	}
	copy(r.k[stage], k)
	return nil
}

func (r *RKF45) combine(y dynamo.State, h float64, w [6]float64) dynamo.State {
	out := make(dynamo.State, len(y))
	for i := range y {
		sum := 0.0
		for j := 0; j < 6; j++ {
			sum += w[j] * r.k[j][i]
		}
		out[i] = math.Max(0, y[i]+h*sum)
	}
	return out
}

func checkStage(x dynamo.State, t, h float64, stage string) error {
	if err := x.Check(t); err != nil {
		ie := err.(*dynamo.IntegrationError)
		ie.StepSize = h
		ie.Stage = stage
		return ie
	}
	return nil
}

// LocalError is the largest relative difference between the two estimates
// over the components where their sum is positive, or 0 if there is none.
func LocalError(y5, y4 dynamo.State) float64 {
	delta := 0.0
	for i := range y5 {
		sum := y5[i] + y4[i]
		if sum > 0 {
			delta = math.Max(delta, math.Abs(2*(y5[i]-y4[i])/sum))
		}
	}
	return delta
}

// NextStepSize rescales h from the local error delta against epsilon. The
// step grows with exponent 0.15 when the error is acceptable and shrinks with
// exponent 0.25 otherwise.
func NextStepSize(h, delta, epsilon float64) float64 {
	if delta == 0 {
		return h * math.Pow(zeroErrorFactor, growExponent)
	}
	factor := epsilon / delta
	if factor >= 1 {
		return h * math.Pow(factor, growExponent)
	}
	return h * math.Pow(factor, shrinkExponent)
}
