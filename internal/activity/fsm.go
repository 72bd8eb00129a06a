// Package activity holds the state machine that links media player activity
// to the power state of a light group.
package activity

import "fmt"

// State is everything the control loop remembers between ticks.
type State struct {
	// InUse is true while the media player is considered active.
	InUse bool
	// LightsWereAlreadyOff is only meaningful while InUse is true.
	LightsWereAlreadyOff bool
}

// Phase represents where the machine is in its cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSuppressing
)

// String returns a human-readable name for the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSuppressing:
		return "suppressing"
	default:
		return "unknown"
	}
}

// Phase derives the phase from the state.
func (s State) Phase() Phase {
	if s.InUse {
		return PhaseSuppressing
	}
	return PhaseIdle
}

// Command is the light group call a tick asks for.
type Command int

const (
	CommandNone Command = iota
	CommandTurnOff
	CommandTurnOn
)

// String returns a human-readable name for the command.
func (c Command) String() string {
	switch c {
	case CommandNone:
		return "none"
	case CommandTurnOff:
		return "turn_off"
	case CommandTurnOn:
		return "turn_on"
	default:
		return "unknown"
	}
}

// Outcome describes the transition a tick made, if any.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeAlreadyOff
	OutcomeTurnedOff
	OutcomeRestoring
	OutcomeLeavingOff
)

// String returns the short status name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeAlreadyOff:
		return "already off"
	case OutcomeTurnedOff:
		return "turned off"
	case OutcomeRestoring:
		return "restoring"
	case OutcomeLeavingOff:
		return "leaving off"
	default:
		return "unknown"
	}
}

// Message renders the status line for a transition on the given device.
// It returns an empty string for OutcomeNone.
func (o Outcome) Message(device string) string {
	switch o {
	case OutcomeAlreadyOff:
		return fmt.Sprintf("%s in use, lights left untouched as they were already off", device)
	case OutcomeTurnedOff:
		return fmt.Sprintf("%s in use, lights turned off", device)
	case OutcomeRestoring:
		return fmt.Sprintf("%s not in use anymore, turning lights back on", device)
	case OutcomeLeavingOff:
		return fmt.Sprintf("%s not in use anymore, leaving lights off as they were off to start with", device)
	default:
		return ""
	}
}

// Decision is what a single tick resolved to.
type Decision struct {
	Command Command
	Outcome Outcome
}

// Changed reports whether the tick made a transition.
func (d Decision) Changed() bool {
	return d.Outcome != OutcomeNone
}

// NeedsLightProbe reports whether Next will look at lightsOn for this input.
// Only the start of activity reads the light group.
func NeedsLightProbe(state State, isActive bool) bool {
	return !state.InUse && isActive
}

// Next is the transition function. lightsOn is ignored unless
// NeedsLightProbe(state, isActive) is true.
func Next(state State, isActive, lightsOn bool) (State, Decision) {
	switch state.Phase() {
	case PhaseIdle:
		return nextFromIdle(isActive, lightsOn)
	case PhaseSuppressing:
		return nextFromSuppressing(state, isActive)
	}
	return state, Decision{}
}

func nextFromIdle(isActive, lightsOn bool) (State, Decision) {
	if !isActive {
		return State{}, Decision{}
	}

	if !lightsOn {
		return State{InUse: true, LightsWereAlreadyOff: true},
			Decision{Command: CommandNone, Outcome: OutcomeAlreadyOff}
	}
	return State{InUse: true, LightsWereAlreadyOff: false},
		Decision{Command: CommandTurnOff, Outcome: OutcomeTurnedOff}
}

func nextFromSuppressing(state State, isActive bool) (State, Decision) {
	// Still active: nothing to probe, nothing to command
	if isActive {
		return state, Decision{}
	}

	if state.LightsWereAlreadyOff {
		return State{}, Decision{Command: CommandNone, Outcome: OutcomeLeavingOff}
	}
	return State{}, Decision{Command: CommandTurnOn, Outcome: OutcomeRestoring}
}
