package driver

import (
	"errors"
	"fmt"
	"strings"

	"blandpanel-server/protocol"
)

var (
	ErrNotConnected     = errors.New("device not connected")
	ErrAlreadyConnected = errors.New("device already connected")
	ErrBrightnessRange  = fmt.Errorf("brightness out of range (0-%d)", protocol.MaxBrightness)
	ErrUnknownProperty  = errors.New("unknown property")
)

// Exchange pairs a command with the result it produced
type Exchange struct {
	Command protocol.Command
	Result  protocol.Result
}

// CommandError reports a light box operation that did not get "OK" for
// every command it sent
type CommandError struct {
	Op        string
	Exchanges []Exchange
}

func (e *CommandError) Error() string {
	var parts []string
	for _, ex := range e.Exchanges {
		s := fmt.Sprintf("%s -> %s", ex.Command.String(), ex.Result.String())
		if ex.Result.Err != nil {
			s += " (" + ex.Result.Err.Error() + ")"
		}
		parts = append(parts, s)
	}
	return e.Op + " failed: " + strings.Join(parts, ", ")
}

// Unwrap exposes the transport diagnostics of faulted exchanges
func (e *CommandError) Unwrap() []error {
	var errs []error
	for _, ex := range e.Exchanges {
		if ex.Result.Err != nil {
			errs = append(errs, ex.Result.Err)
		}
	}
	return errs
}

// Faulted reports whether any exchange hit a transport fault
func (e *CommandError) Faulted() bool {
	for _, ex := range e.Exchanges {
		if ex.Result.Status == protocol.StatusFault {
			return true
		}
	}
	return false
}

// LinkLost reports whether a fault came from the port itself, after which
// the connection cannot be trusted
func (e *CommandError) LinkLost() bool {
	for _, ex := range e.Exchanges {
		if ex.Result.Status == protocol.StatusFault && errors.Is(ex.Result.Err, ErrPortFailure) {
			return true
		}
	}
	return false
}
