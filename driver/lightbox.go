package driver

import (
	"blandpanel-server/protocol"
)

// LightBox maps the light box capability onto panel commands
type LightBox struct {
	transport *Transport

	brightness uint16
	enabled    bool
}

func NewLightBox(t *Transport) *LightBox {
	return &LightBox{transport: t}
}

// Brightness returns the last brightness the panel accepted
func (lb *LightBox) Brightness() uint16 { return lb.brightness }

// Enabled returns the last on/off state the panel accepted
func (lb *LightBox) Enabled() bool { return lb.enabled }

// SetBrightness sends one BRIGHT command with value/255 as fraction
func (lb *LightBox) SetBrightness(value uint16) error {
	if value > protocol.MaxBrightness {
		return ErrBrightnessRange
	}

	cmd := protocol.Bright(value)
	if err := lb.run("set brightness", cmd); err != nil {
		return err
	}
	lb.brightness = value
	return nil
}

// Enable turns the panel on (cover closed first) or off (cover opened after).
// Both commands are always sent, there is no rollback when one fails.
func (lb *LightBox) Enable(on bool) error {
	var err error
	if on {
		err = lb.run("enable light box", protocol.SetState(protocol.StateClosed), protocol.On())
	} else {
		err = lb.run("disable light box", protocol.Off(), protocol.SetState(protocol.StateOpened))
	}
	if err != nil {
		return err
	}
	lb.enabled = on
	return nil
}

// QueryStatus asks the panel for its cover, brightness and power state
func (lb *LightBox) QueryStatus() (protocol.PanelStatus, error) {
	if lb.transport.Simulation {
		st := protocol.PanelStatus{
			State:      protocol.StateOpened,
			Brightness: float64(lb.brightness) / protocol.MaxBrightness,
			Enabled:    lb.enabled,
		}
		if lb.enabled {
			st.State = protocol.StateClosed
		}
		return st, nil
	}

	res := lb.transport.Send(protocol.Status())
	if res.Status == protocol.StatusFault {
		return protocol.PanelStatus{}, &CommandError{
			Op:        "query status",
			Exchanges: []Exchange{{Command: protocol.Status(), Result: res}},
		}
	}
	return protocol.ParseStatus(res.Reply)
}

// run sends every command in order and fails unless all replies are OK
func (lb *LightBox) run(op string, cmds ...protocol.Command) error {
	failed := false
	exchanges := make([]Exchange, 0, len(cmds))
	for _, cmd := range cmds {
		res := lb.transport.Send(cmd)
		exchanges = append(exchanges, Exchange{Command: cmd, Result: res})
		if !res.OK() {
			failed = true
		}
	}
	if failed {
		return &CommandError{Op: op, Exchanges: exchanges}
	}
	return nil
}
