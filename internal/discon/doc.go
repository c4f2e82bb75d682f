// Package discon calls Bladed-style DISCON controllers.
//
// A [Bridge] owns one exchange record, one [Controller] and an optional
// [Sink] that captures every call. It performs the call and turns the
// controller's fail flag into an error; it knows nothing about what the
// slots mean beyond that.
//
// # Errors
//
// Every failure is one of three kinds, each matched with errors.Is:
//
//   - [ErrConfiguration]: the turbine or its controller settings are invalid.
//   - [ErrInvocation]: the controller reported a negative fail flag.
//   - [ErrResource]: the controller library could not be loaded.
//
// None of them are retried. After an invocation failure the controller's
// internal state is undefined and its session must not be stepped again.
package discon
