package discon

import (
	"errors"
	"fmt"
)

// Domain errors for controller bridging.
var (
	// ErrConfiguration indicates invalid turbine or controller settings.
	ErrConfiguration = errors.New("discon: invalid configuration")

	// ErrInvocation indicates the controller reported failure.
	ErrInvocation = errors.New("discon: controller call failed")

	// ErrResource indicates the controller library could not be acquired.
	ErrResource = errors.New("discon: controller library unavailable")

	// ErrFaulted indicates a session whose controller already failed.
	ErrFaulted = errors.New("discon: session faulted by earlier controller failure")

	// ErrFinalized indicates use of a session after teardown.
	ErrFinalized = errors.New("discon: session finalized")
)

// ConfigurationError is raised while constructing a session.
type ConfigurationError struct {
	Turbine string
	Field   string
	Reason  string
	Err     error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", e.Turbine, e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrConfiguration, e.Err}
	}
	return []error{ErrConfiguration}
}

// InvocationError carries the fail flag and message of a failed call.
type InvocationError struct {
	Turbine string
	Status  int32
	Time    float64
	Message string
}

func (e *InvocationError) Error() string {
	msg := fmt.Sprintf("%s: controller call failed at t=%.4f (fail=%d)", e.Turbine, e.Time, e.Status)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *InvocationError) Unwrap() error { return ErrInvocation }

// ResourceError wraps a failure to load or unload a controller library.
type ResourceError struct {
	Turbine string
	Ref     string
	Err     error
}

func (e *ResourceError) Error() string {
	if e.Turbine == "" {
		return fmt.Sprintf("controller %q: %v", e.Ref, e.Err)
	}
	return fmt.Sprintf("%s: controller %q: %v", e.Turbine, e.Ref, e.Err)
}

func (e *ResourceError) Unwrap() []error { return []error{ErrResource, e.Err} }
