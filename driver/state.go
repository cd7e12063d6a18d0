package driver

import (
	"sync"
	"time"
)

// ConnectionState represents the device connection lifecycle
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

// String returns the string representation of the state
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// StatusInfo contains detailed status information for broadcasting
type StatusInfo struct {
	Device      string    `json:"device"`
	State       string    `json:"state"`
	Message     string    `json:"message"`
	Port        string    `json:"port,omitempty"`
	Simulation  bool      `json:"simulation"`
	IsConnected bool      `json:"is_connected"`
	Enabled     bool      `json:"enabled"`
	Brightness  uint16    `json:"brightness"`
	LastError   string    `json:"last_error,omitempty"`
	Since       time.Time `json:"since,omitempty"`
}

// StateChangeCallback is called when state changes
type StateChangeCallback func(info StatusInfo)

// StateMachine tracks the connection state with thread-safety
type StateMachine struct {
	mu sync.RWMutex

	currentState ConnectionState
	stateStarted time.Time
	lastError    string
}

// NewStateMachine creates a new state machine
func NewStateMachine() *StateMachine {
	return &StateMachine{
		currentState: StateDisconnected,
		stateStarted: time.Now(),
	}
}

// GetState returns the current state
func (sm *StateMachine) GetState() ConnectionState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.currentState
}

// Since returns when the current state was entered
func (sm *StateMachine) Since() time.Time {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.stateStarted
}

// LastError returns the error recorded by the last failed transition
func (sm *StateMachine) LastError() string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.lastError
}

// TransitionTo changes to a new state
func (sm *StateMachine) TransitionTo(newState ConnectionState) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.currentState = newState
	sm.stateStarted = time.Now()
	sm.lastError = ""
}

// TransitionToError drops back to disconnected and records why
func (sm *StateMachine) TransitionToError(err string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.currentState = StateDisconnected
	sm.stateStarted = time.Now()
	sm.lastError = err
}

// RecordError keeps the state and remembers a failed operation
func (sm *StateMachine) RecordError(err string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.lastError = err
}
