package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrNoTerminator = errors.New("reply is not terminated by a line feed")

// ResultStatus classifies the outcome of one exchange
type ResultStatus int

const (
	StatusOK ResultStatus = iota
	StatusRejected
	StatusFault
)

func (s ResultStatus) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusRejected:
		return "REJECTED"
	case StatusFault:
		return "FAULT"
	default:
		return "UNKNOWN"
	}
}

// Result is the outcome of sending one command
type Result struct {
	Status ResultStatus
	Reply  string // reply line without terminator, empty on fault
	Err    error  // diagnostic for faults
}

// Fault builds a transport fault result
func Fault(err error) Result {
	return Result{Status: StatusFault, Err: err}
}

// Classify turns a stripped reply line into a Result
func Classify(reply string) Result {
	if reply == TokenOK {
		return Result{Status: StatusOK, Reply: reply}
	}
	return Result{Status: StatusRejected, Reply: reply}
}

func (r Result) OK() bool {
	return r.Status == StatusOK
}

// String formats the result the way it appears on the wire
func (r Result) String() string {
	switch r.Status {
	case StatusOK:
		return TokenOK
	case StatusFault:
		return TokenFault
	default:
		return r.Reply
	}
}

// StripTerminator removes the trailing "\n" and an optional "\r" before it.
// The firmware prints replies with "\r\n".
func StripTerminator(raw []byte) (string, error) {
	s := string(raw)
	if !strings.HasSuffix(s, string(Terminator)) {
		return "", ErrNoTerminator
	}
	s = strings.TrimSuffix(s, string(Terminator))
	return strings.TrimSuffix(s, "\r"), nil
}

// PanelStatus is the parsed reply to STATUS
type PanelStatus struct {
	State      PanelState `json:"state"`
	Brightness float64    `json:"brightness"`
	Enabled    bool       `json:"enabled"`
}

// ParseStatus 解析 STATUS 应答
// 格式: OK STATE: CLOSED BRIGHTNESS: 0.75 ENABLED: TRUE
func ParseStatus(reply string) (PanelStatus, error) {
	var st PanelStatus

	fields := strings.Fields(reply)
	if len(fields) == 0 || fields[0] != TokenOK {
		return st, fmt.Errorf("unexpected status reply %q", reply)
	}

	seen := 0
	for i := 1; i+1 < len(fields); i += 2 {
		key, val := fields[i], fields[i+1]
		switch key {
		case "STATE:":
			st.State = PanelState(val)
			seen++
		case "BRIGHTNESS:":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return st, fmt.Errorf("bad brightness %q: %w", val, err)
			}
			st.Brightness = f
			seen++
		case "ENABLED:":
			b, err := strconv.ParseBool(strings.ToLower(val))
			if err != nil {
				return st, fmt.Errorf("bad enabled flag %q: %w", val, err)
			}
			st.Enabled = b
			seen++
		default:
			return st, fmt.Errorf("unknown status field %q", key)
		}
	}

	if seen != 3 {
		return st, fmt.Errorf("incomplete status reply %q", reply)
	}
	return st, nil
}

// ParsePing extracts the device GUID from RESULT:PING:OK:<guid>
func ParsePing(reply string) (string, error) {
	const prefix = "RESULT:PING:OK:"
	if !strings.HasPrefix(reply, prefix) {
		return "", fmt.Errorf("unexpected ping reply %q", reply)
	}
	return strings.TrimPrefix(reply, prefix), nil
}
