package supervisor

import (
	"slices"

	"gortlbridge/shared"
)

// transitions is the radio lifecycle table. Anything not listed is refused.
var transitions = map[shared.RadioState][]shared.RadioState{
	shared.StateUnknown:   {shared.StateStarting, shared.StateStopped},
	shared.StateStarting:  {shared.StateScanning, shared.StateError, shared.StateStopped},
	shared.StateScanning:  {shared.StateOnline, shared.StateError, shared.StateRebooting, shared.StateStopped},
	shared.StateOnline:    {shared.StateScanning, shared.StateError, shared.StateRebooting, shared.StateStopped},
	shared.StateError:     {shared.StateStarting, shared.StateRebooting, shared.StateStopped},
	shared.StateRebooting: {shared.StateStarting, shared.StateStopped},
	shared.StateStopped:   nil,
}

// CanTransition reports whether a radio may move from one state to another.
func CanTransition(from, to shared.RadioState) bool {
	return slices.Contains(transitions[from], to)
}
