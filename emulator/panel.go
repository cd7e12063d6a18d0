// Package emulator models the line protocol of the panel firmware. It backs
// the in-process mock port, the mock-panel TCP simulator and the tests.
package emulator

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

const (
	LineEnding        = "\r\n"
	DefaultBrightness = 0.75
	DefaultGUID       = "bland-panel-emulator"
	InfoText          = "BLandPanel v0"

	OpenedAngle    = 270.0
	ClosedAngle    = 0.0
	AngleTolerance = 10.0
	minAngle       = -20.0
	maxAngle       = 290.0

	helpText = "Useful Commands: STATUS, STATE [open|closed], ON [0-1], BRIGHT [0-1], OFF, OPEN, CLOSE, ANGLE [0-270]"
)

// Panel holds the emulated hardware state
type Panel struct {
	mu sync.Mutex

	GUID       string
	enabled    bool
	brightness float64
	angle      float64 // cover servo angle in degrees
	estop      bool
	halted     bool // dropped to the REPL, no longer answers
}

func NewPanel() *Panel {
	p := &Panel{GUID: DefaultGUID}
	p.powerOn()
	return p
}

func (p *Panel) powerOn() {
	p.enabled = false
	p.brightness = DefaultBrightness
	p.angle = OpenedAngle
	p.estop = false
	p.halted = false
}

// Snapshot is a copy of the emulated state
type Snapshot struct {
	Enabled    bool
	Brightness float64
	State      string
	Angle      float64
	EStop      bool
	Halted     bool
}

func (p *Panel) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		Enabled:    p.enabled,
		Brightness: p.brightness,
		State:      p.state(),
		Angle:      p.angle,
		EStop:      p.estop,
		Halted:     p.halted,
	}
}

// state derives the cover position from the servo angle
func (p *Panel) state() string {
	switch {
	case math.Abs(p.angle-ClosedAngle) < AngleTolerance:
		return "closed"
	case math.Abs(p.angle-OpenedAngle) < AngleTolerance:
		return "opened"
	default:
		return "intermediate"
	}
}

// Handle processes one input line and returns the reply line without its
// terminator. The second result is false when the firmware stays silent.
func (p *Panel) Handle(line string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.halted {
		return "", false
	}

	cmd := strings.ToUpper(strings.TrimSpace(line))
	if len(cmd) < 2 {
		return "", false
	}

	reply, err := p.dispatch(cmd)
	if err != nil {
		return "FAULT: " + err.Error(), true
	}
	return reply, reply != ""
}

func (p *Panel) dispatch(cmd string) (string, error) {
	args := strings.Split(cmd, " ")

	switch {
	case strings.HasPrefix(cmd, "ESTOP"):
		p.estop = true
		return "ESTOP: ALLCLEAR REQUIRED TO RESUME MOTION", nil
	case strings.HasPrefix(cmd, "ALLCLEAR"):
		p.estop = false
		return "OK", nil
	case strings.HasPrefix(cmd, "COMMAND:"):
		return p.ascom(cmd)
	case cmd == "REPL":
		p.halted = true
		return "GOODBYE", nil
	case cmd == "RESET":
		p.powerOn()
		return "GOODBYE", nil
	case cmd == "STATUS":
		return fmt.Sprintf("OK STATE: %s BRIGHTNESS: %0.2f ENABLED: %s",
			strings.ToUpper(p.state()), p.brightness, strings.ToUpper(strconv.FormatBool(p.enabled))), nil
	case strings.HasPrefix(cmd, "ON"):
		if len(args) > 1 {
			if err := p.setBrightnessArg(args[1]); err != nil {
				return "", err
			}
		}
		p.enabled = true
		return "OK", nil
	case cmd == "OFF":
		p.enabled = false
		return "OK", nil
	case strings.HasPrefix(cmd, "BRIGHT"):
		if len(args) > 1 {
			if err := p.setBrightnessArg(args[1]); err != nil {
				return "", err
			}
			return "OK", nil
		}
		return fmt.Sprintf("%0.2f", p.brightness), nil
	case cmd == "OPEN":
		return p.moveTo("opened")
	case cmd == "CLOSE":
		return p.moveTo("closed")
	case strings.HasPrefix(cmd, "STATE"):
		if len(args) > 1 {
			return p.moveTo(strings.ToLower(args[1]))
		}
		return strings.ToUpper(p.state()), nil
	case strings.HasPrefix(cmd, "ANGLE"):
		if len(args) > 1 {
			v, err := parseFloat(args[1])
			if err != nil {
				return "", err
			}
			if err := p.setAngle(v); err != nil {
				return "", err
			}
			if math.Abs(p.angle-v) < AngleTolerance {
				return "OK", nil
			}
			return "FAIL", nil
		}
		return formatPyFloat(p.angle), nil
	default:
		return helpText, nil
	}
}

// ascom handles the COMMAND: set used by the ASCOM flat panel driver.
// BRIGHTNESS, ON and OFF are silent, like on the device.
func (p *Panel) ascom(cmd string) (string, error) {
	parts := strings.Split(cmd, ":")

	switch {
	case cmd == "COMMAND:PING":
		return "RESULT:PING:OK:" + p.GUID, nil
	case cmd == "COMMAND:INFO":
		return "RESULT:INFO:" + InfoText, nil
	case cmd == "COMMAND:CALIBRATOR:GETBRIGHTNESS":
		return "RESULT:CALIBRATOR:BRIGHTNESS:" + strconv.FormatFloat(p.brightness, 'f', -1, 64), nil
	case strings.HasPrefix(cmd, "COMMAND:CALIBRATOR:BRIGHTNESS:"):
		if len(parts) > 3 {
			return "", p.setBrightnessArg(parts[3])
		}
		return "", nil
	case strings.HasPrefix(cmd, "COMMAND:CALIBRATOR:ON"):
		// the firmware closes the cover and sets brightness but leaves the light switch alone
		if _, err := p.moveTo("closed"); err != nil {
			return "", err
		}
		if len(parts) > 3 {
			return "", p.setBrightnessArg(parts[3])
		}
		p.brightness = DefaultBrightness
		return "", nil
	case cmd == "COMMAND:CALIBRATOR:OFF":
		p.enabled = false
		_, err := p.moveTo("opened")
		return "", err
	default:
		return "ERROR:INVALID_COMMAND", nil
	}
}

func parseFloat(arg string) (float64, error) {
	v, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return 0, fmt.Errorf("could not convert %q to float", arg)
	}
	return v, nil
}

func (p *Panel) setBrightnessArg(arg string) error {
	v, err := parseFloat(arg)
	if err != nil {
		return err
	}
	if v < 0 || v > 1.0 {
		return errors.New("Brightness out of bounds")
	}
	p.brightness = v
	return nil
}

// setAngle drives the servo; with the emergency stop engaged it is
// unpowered and the cover stays put.
func (p *Panel) setAngle(v float64) error {
	if v < minAngle || v > maxAngle {
		return errors.New("Angle out of bounds")
	}
	if !p.estop {
		p.angle = v
	}
	return nil
}

func (p *Panel) moveTo(state string) (string, error) {
	var target float64
	switch state {
	case "opened":
		target = OpenedAngle
	case "closed":
		target = ClosedAngle
	default:
		return "", fmt.Errorf("Invalid state %s", state)
	}
	if p.state() != state {
		p.setAngle(target)
	}
	if p.state() == state {
		return "OK", nil
	}
	return "FAIL", nil
}

// formatPyFloat prints whole numbers with a trailing ".0" like the firmware
func formatPyFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
