// Package dynamo provides the core primitives shared by the hydroflow engine.
//
// The package defines the fundamental types for integrating the discharge
// equations of a hydrological network:
//
//   - [State]: vector holding the per-node unknowns (discharge, storage, ...)
//   - [Forcing]: per-node meteorological drivers, constant within one interval
//   - [Derivative]: the right-hand side dX/dt = f(t, X, forcing)
//   - [IntegrationError]: the fatal numerical failure raised by the guard
//
// # Example
//
//	fn := models.NewDecay(0.01)
//	s, _ := sim.New(fn, 1e-3, 1.0, os.Stdout, true)
//	err := s.Solve(ctx, 0, 600, 60, dynamo.State{10}, dynamo.Uniform(1, dynamo.Values{}))
//
// # Thread Safety
//
// States and forcing arrays are shared by reference and must be treated as
// read-only by derivative implementations.
package dynamo
