package control

import (
	"fmt"

	"github.com/san-kum/crawlerctl/internal/vehicle"
)

type State int

const (
	Boot State = iota
	InitEsc
	IdleNoClient
	ClientConnected
	ActiveControl
	Braking
	WaitForNeutralDwell
	Failsafe
)

var stateNames = [...]string{
	Boot:                "boot",
	InitEsc:             "init_esc",
	IdleNoClient:        "idle_no_client",
	ClientConnected:     "client_connected",
	ActiveControl:       "active_control",
	Braking:             "braking",
	WaitForNeutralDwell: "wait_for_neutral_dwell",
	Failsafe:            "failsafe",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Driving reports whether the watchdog applies in s.
func (s State) Driving() bool {
	switch s {
	case ActiveControl, Braking, WaitForNeutralDwell:
		return true
	default:
		return false
	}
}

func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if n == name {
			return State(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", vehicle.ErrUnknownState, name)
}

// States lists every state in declaration order.
func States() []State {
	out := make([]State, len(stateNames))
	for i := range stateNames {
		out[i] = State(i)
	}
	return out
}
