// Package dynamo provides the host-side simulation primitives the turbine
// runner is built on.
//
//   - [State]: a plant's continuous state vector
//   - [System]: dX/dt = f(X, u, t)
//   - [Integrator]: one fixed step of a System
//   - [Metric]: a scalar summary observed once per step
//   - [Result]: the recorded channels of a finished run
//
// # Thread Safety
//
// Nothing here is safe for concurrent use. [ForEach] runs independent jobs,
// each owning its own systems and integrators, on separate goroutines.
package dynamo
