// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package relay

import "fmt"

// State is the lifecycle state of a session.
type State string

const (
	StateIdle        State = "idle"
	StateSourcing    State = "sourcing"
	StateTranscoding State = "transcoding"
	StateRestarting  State = "restarting"
	StateDraining    State = "draining"
	StateTerminated  State = "terminated"
)

// transitions is strict: anything not listed is a bug.
var transitions = map[State][]State{
	StateIdle:        {StateSourcing, StateDraining},
	StateSourcing:    {StateTranscoding, StateRestarting, StateDraining},
	StateTranscoding: {StateRestarting, StateDraining},
	StateRestarting:  {StateSourcing, StateDraining},
	StateDraining:    {StateTerminated},
}

func checkTransition(from, to State) error {
	for _, s := range transitions[from] {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("invalid relay transition: %s -> %s", from, to)
}
