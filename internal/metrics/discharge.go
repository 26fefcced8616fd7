package metrics

import (
	"math"

	"github.com/san-kum/hydroflow/internal/dynamo"
)

type PeakDischarge struct {
	peak float64
	at   float64
	seen bool
}

func NewPeakDischarge() *PeakDischarge {
	return &PeakDischarge{}
}

func (p *PeakDischarge) Name() string { return "peak_discharge" }

func (p *PeakDischarge) Observe(x dynamo.State, t float64) {
	q := x.Lead()
	if !p.seen || q > p.peak {
		p.peak, p.at, p.seen = q, t, true
	}
}

func (p *PeakDischarge) Value() float64 { return p.peak }

// Time returns when the peak was observed, in minutes.
func (p *PeakDischarge) Time() float64 { return p.at }

func (p *PeakDischarge) Reset() {
	p.peak, p.at, p.seen = 0, 0, false
}

type MeanDischarge struct {
	sum     float64
	samples int
}

func NewMeanDischarge() *MeanDischarge {
	return &MeanDischarge{}
}

func (m *MeanDischarge) Name() string { return "mean_discharge" }

func (m *MeanDischarge) Observe(x dynamo.State, t float64) {
	m.sum += x.Lead()
	m.samples++
}

func (m *MeanDischarge) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.sum / float64(m.samples)
}

func (m *MeanDischarge) Reset() {
	m.sum = 0
	m.samples = 0
}

// Volume integrates the outlet discharge (m³/s) over the reported times
// (minutes) with the trapezoidal rule and returns m³.
type Volume struct {
	total  float64
	lastQ  float64
	lastT  float64
	primed bool
}

func NewVolume() *Volume {
	return &Volume{}
}

func (v *Volume) Name() string { return "volume_m3" }

func (v *Volume) Observe(x dynamo.State, t float64) {
	q := x.Lead()
	if v.primed && t > v.lastT {
		v.total += 0.5 * (q + v.lastQ) * (t - v.lastT) * 60
	}
	v.lastQ, v.lastT, v.primed = q, t, true
}

func (v *Volume) Value() float64 {
	if math.IsNaN(v.total) {
		return 0
	}
	return v.total
}

func (v *Volume) Reset() {
	v.total, v.lastQ, v.lastT, v.primed = 0, 0, 0, false
}
