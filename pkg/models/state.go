package models

import (
	"fmt"
)

// ComponentState is the lifecycle state of a session component
type ComponentState string

// Strict component states for the lifecycle FSM
const (
	StateUninitialized ComponentState = "uninitialized" // No definition assigned yet
	StateConfigured    ComponentState = "configured"    // Definition accepted, not set up
	StateReady         ComponentState = "ready"         // Set up (or recovered), waiting for begin
	StateRunning       ComponentState = "running"       // A trial is executing
	StateCompleted     ComponentState = "completed"     // Session ended, branch index final
	StateRecovering    ComponentState = "recovering"    // Rebuilding state from the raw data file
	StateTornDown      ComponentState = "torn_down"     // Resources released
)

// validTransitions maps from-state to allowed to-states
var validTransitions = map[ComponentState]map[ComponentState]bool{
	StateUninitialized: {
		StateConfigured: true, // Definition assigned
		StateTornDown:   true,
	},
	StateConfigured: {
		StateReady:      true, // setup()
		StateRecovering: true, // recover() after restart
		StateTornDown:   true,
	},
	StateReady: {
		StateRunning:    true, // begin() with readiness passed
		StateRecovering: true, // recover() again, must yield the same count
		StateCompleted:  true, // host-defined session end
		StateTornDown:   true,
	},
	StateRunning: {
		StateReady:     true, // trial recorded, control back to host
		StateCompleted: true, // trial recorded and the overrun edge is taken
		StateTornDown:  true,
	},
	StateRecovering: {
		StateReady:      true, // reconstruction succeeded
		StateConfigured: true, // reconstruction failed, host must abort
		StateTornDown:   true,
	},
	StateCompleted: {
		StateTornDown: true,
	},
	// Terminal
	StateTornDown: {},
}

// ValidateTransition checks if a state transition is valid
func ValidateTransition(from, to ComponentState) error {
	allowedStates, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source state: %s", from)
	}

	if !allowedStates[to] {
		return fmt.Errorf("%w from %s to %s", ErrInvalidTransition, from, to)
	}

	return nil
}

// IsTerminalState returns true if no further work can happen in this state
func IsTerminalState(state ComponentState) bool {
	return state == StateCompleted || state == StateTornDown
}

// CanBegin returns true if a trial may be started from this state
func CanBegin(state ComponentState) bool {
	return state == StateReady
}

// CanRecover returns true if recovery may be attempted from this state
func CanRecover(state ComponentState) bool {
	return state == StateConfigured || state == StateReady
}
