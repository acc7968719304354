package models

import (
	"errors"
	"testing"
)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    ComponentState
		to      ComponentState
		wantErr bool
	}{
		// Valid transitions
		{"Uninitialized to Configured", StateUninitialized, StateConfigured, false},
		{"Configured to Ready", StateConfigured, StateReady, false},
		{"Configured to Recovering", StateConfigured, StateRecovering, false},
		{"Ready to Running", StateReady, StateRunning, false},
		{"Ready to Recovering", StateReady, StateRecovering, false},
		{"Running to Ready", StateRunning, StateReady, false},
		{"Running to Completed", StateRunning, StateCompleted, false},
		{"Recovering to Ready", StateRecovering, StateReady, false},
		{"Recovering to Configured", StateRecovering, StateConfigured, false},
		{"Completed to TornDown", StateCompleted, StateTornDown, false},

		// Invalid transitions
		{"Uninitialized to Ready", StateUninitialized, StateReady, true},
		{"Configured to Running", StateConfigured, StateRunning, true},
		{"Uninitialized to Recovering", StateUninitialized, StateRecovering, true},
		{"Running to Recovering", StateRunning, StateRecovering, true},
		{"Completed to Running", StateCompleted, StateRunning, true},
		{"TornDown to Ready", StateTornDown, StateReady, true},
		{"Unknown source", ComponentState("bogus"), StateReady, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTransition(%v, %v) error = %v, wantErr %v",
					tt.from, tt.to, err, tt.wantErr)
			}
		})
	}
}

func TestValidateTransition_WrapsSentinel(t *testing.T) {
	err := ValidateTransition(StateCompleted, StateRunning)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestIsTerminalState(t *testing.T) {
	tests := []struct {
		name     string
		state    ComponentState
		expected bool
	}{
		{"Completed is terminal", StateCompleted, true},
		{"TornDown is terminal", StateTornDown, true},
		{"Ready is not terminal", StateReady, false},
		{"Running is not terminal", StateRunning, false},
		{"Recovering is not terminal", StateRecovering, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTerminalState(tt.state); got != tt.expected {
				t.Errorf("IsTerminalState(%v) = %v, want %v", tt.state, got, tt.expected)
			}
		})
	}
}

func TestCanRecover(t *testing.T) {
	tests := []struct {
		state    ComponentState
		expected bool
	}{
		{StateConfigured, true},
		{StateReady, true},
		{StateUninitialized, false},
		{StateRunning, false},
		{StateCompleted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := CanRecover(tt.state); got != tt.expected {
				t.Errorf("CanRecover(%v) = %v, want %v", tt.state, got, tt.expected)
			}
		})
	}
}
