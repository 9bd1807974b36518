package vehicle

import "errors"

// Domain errors shared by the collaborators around the control core. The
// core itself never fails; these surface from configuration, transport and
// hardware.
var (
	// ErrUnknownState indicates a state name that does not map to a lifecycle state.
	ErrUnknownState = errors.New("vehicle: unknown state")

	// ErrOutOfRange indicates a calibration or configuration value outside its bounds.
	ErrOutOfRange = errors.New("vehicle: value out of range")
)

// WriteError wraps a failed actuator write with the channel it targeted.
type WriteError struct {
	Channel string
	Value   any
	Wrapped error
}

func (e *WriteError) Error() string {
	return "vehicle: write " + e.Channel + ": " + e.Wrapped.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Wrapped
}
