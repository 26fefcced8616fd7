package models

import (
	"math"

	"github.com/san-kum/hydroflow/internal/dynamo"
)

// mmPerHourKm2 converts a depth rate in mm/h over one km² into m³/s.
const mmPerHourKm2 = 1.0 / 3.6

// Network is a chain of hillslope/channel nodes drained by linear
// reservoirs. Node i+1 discharges into node i and node 0 is the outlet.
//
// The state holds the channel discharge of every node followed by the
// subsurface discharge of every node, both in m³/s.
type Network struct {
	N           int
	Area        float64 // km² per hillslope
	ChannelK    float64 // channel residence time, minutes
	SubsurfaceK float64 // subsurface residence time, minutes
	RunoffCoeff float64 // share of effective rain routed over the surface
	Evaporation float64 // mm/h per °C above freezing
}

func NewNetwork(n int) *Network {
	return &Network{
		N:           n,
		Area:        1.0,
		ChannelK:    30.0,
		SubsurfaceK: 600.0,
		RunoffCoeff: 0.4,
		Evaporation: 0.0,
	}
}

func (m *Network) StateDim() int {
	return 2 * m.N
}

func (m *Network) Nodes() int {
	return m.N
}

func (m *Network) Eval(t float64, y dynamo.State, f *dynamo.Forcing, final bool) dynamo.State {
	n := m.N
	dy := make(dynamo.State, len(y))

	for i := 0; i < n; i++ {
		q, qs := y[i], y[n+i]

		rain := m.effectiveRain(f, i) * m.Area * mmPerHourKm2
		surface := m.RunoffCoeff * rain
		recharge := rain - surface

		upstream := 0.0
		if i+1 < n {
			upstream = y[i+1]
		}

		dy[i] = (surface + qs + upstream - q) / m.ChannelK
		dy[n+i] = (recharge - qs) / m.SubsurfaceK
	}

	return dy
}

func (m *Network) effectiveRain(f *dynamo.Forcing, i int) float64 {
	if f == nil || i >= len(f.Rain) {
		return 0
	}
	rain := f.Rain[i]
	if m.Evaporation > 0 && i < len(f.Temperature) {
		rain -= m.Evaporation * math.Max(f.Temperature[i], 0)
	}
	return math.Max(rain, 0)
}

// SteadyDischarge is the outlet discharge reached under constant uniform rain.
func (m *Network) SteadyDischarge(rain float64) float64 {
	return float64(m.N) * math.Max(rain, 0) * m.Area * mmPerHourKm2
}
