package metrics

import (
	"github.com/san-kum/hydroflow/internal/dynamo"
)

// Dryness reports the fraction of observations where the outlet was below
// the dryness threshold.
type Dryness struct {
	name      string
	threshold float64
	dry       int
	samples   int
}

func NewDryness(threshold float64) *Dryness {
	return &Dryness{
		name:      "dry_fraction",
		threshold: threshold,
	}
}

func (d *Dryness) Name() string {
	return d.name
}

func (d *Dryness) Observe(x dynamo.State, t float64) {
	d.samples++
	if x.Lead() < d.threshold {
		d.dry++
	}
}

func (d *Dryness) Value() float64 {
	if d.samples == 0 {
		return 0
	}
	return float64(d.dry) / float64(d.samples)
}

func (d *Dryness) Reset() {
	d.dry = 0
	d.samples = 0
}
