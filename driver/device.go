package driver

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"blandpanel-server/logger"
	"blandpanel-server/protocol"
)

const (
	DefaultDeviceName = "BLand Panel"

	// Light box properties forwarded to the capability
	PropertyIntensity = "FLAT_LIGHT_INTENSITY"
	PropertyControl   = "FLAT_LIGHT_CONTROL"
)

// Config describes how the device reaches the panel
type Config struct {
	Name        string
	PortName    string
	BaudRate    int
	ReadTimeout time.Duration
	Simulation  bool
}

// Device is the light panel as seen by the host: a connection lifecycle
// plus a light box capability
type Device struct {
	mu sync.Mutex // serializes exchanges and lifecycle changes

	cfg       Config
	open      Opener
	port      Port
	transport *Transport
	LightBox  *LightBox
	state     *StateMachine

	cbMu     sync.RWMutex
	onChange StateChangeCallback
}

func NewDevice(cfg Config) *Device {
	if cfg.Name == "" {
		cfg.Name = DefaultDeviceName
	}
	if cfg.PortName == "" {
		cfg.PortName = DefaultPortName
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	t := &Transport{ReadTimeout: cfg.ReadTimeout, Simulation: cfg.Simulation}
	return &Device{
		cfg:       cfg,
		open:      OpenSerial,
		transport: t,
		LightBox:  NewLightBox(t),
		state:     NewStateMachine(),
	}
}

// SetOpener replaces the function used to open ports
func (d *Device) SetOpener(open Opener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = open
}

// SetCallback sets the state change callback
func (d *Device) SetCallback(cb StateChangeCallback) {
	d.cbMu.Lock()
	defer d.cbMu.Unlock()
	d.onChange = cb
}

func (d *Device) Name() string { return d.cfg.Name }

func (d *Device) IsConnected() bool {
	return d.state.GetState() == StateConnected
}

func (d *Device) IsSimulation() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.Simulation
}

// SetSimulation toggles simulation mode. Only allowed while disconnected.
func (d *Device) SetSimulation(on bool) error {
	d.mu.Lock()
	if d.state.GetState() != StateDisconnected {
		d.mu.Unlock()
		return ErrAlreadyConnected
	}
	d.cfg.Simulation = on
	d.transport.Simulation = on
	d.mu.Unlock()

	logger.Info("Simulation %s for %s", onOff(on), d.cfg.Name)
	d.notify()
	return nil
}

// Connect opens the configured port and performs the handshake
func (d *Device) Connect() error {
	d.mu.Lock()
	err := d.connectLocked()
	d.mu.Unlock()

	d.notify()
	return err
}

// ConnectTo switches the configured port and connects
func (d *Device) ConnectTo(portName string) error {
	d.mu.Lock()
	if d.state.GetState() == StateConnected {
		d.mu.Unlock()
		return ErrAlreadyConnected
	}
	d.cfg.PortName = portName
	err := d.connectLocked()
	d.mu.Unlock()

	d.notify()
	return err
}

func (d *Device) connectLocked() error {
	if d.state.GetState() == StateConnected {
		return ErrAlreadyConnected
	}
	d.state.TransitionTo(StateConnecting)

	if err := d.handshake(); err != nil {
		d.state.TransitionToError(err.Error())
		logger.Error("Failed to connect %s: %v", d.cfg.Name, err)
		return err
	}

	d.state.TransitionTo(StateConnected)
	return nil
}

// handshake captures the open port; the panel needs no greeting
func (d *Device) handshake() error {
	if d.cfg.Simulation {
		logger.Info("Connected successfully to simulated %s.", d.cfg.Name)
		return nil
	}

	port, err := d.open(d.cfg.PortName, d.cfg.BaudRate)
	if err != nil {
		return fmt.Errorf("open %s: %w", d.cfg.PortName, err)
	}
	d.port = port
	d.transport.Port = port

	logger.Info("%s connected on %s", d.cfg.Name, d.cfg.PortName)
	return nil
}

// Disconnect closes the port
func (d *Device) Disconnect() error {
	d.mu.Lock()
	if d.state.GetState() == StateDisconnected {
		d.mu.Unlock()
		return ErrNotConnected
	}

	var err error
	if d.port != nil {
		err = d.port.Close()
		d.port = nil
		d.transport.Port = nil
	}
	d.state.TransitionTo(StateDisconnected)
	d.mu.Unlock()

	logger.Info("%s disconnected", d.cfg.Name)
	d.notify()
	return err
}

// dropLocked closes a failed port and falls back to disconnected so the
// scanner or a client can reconnect
func (d *Device) dropLocked(cause error) {
	logger.Error("Lost connection to %s on %s: %v", d.cfg.Name, d.cfg.PortName, cause)
	if d.port != nil {
		d.port.Close()
		d.port = nil
		d.transport.Port = nil
	}
	d.state.TransitionToError(cause.Error())
}

// SetLightBoxBrightness sets the panel brightness (0-255)
func (d *Device) SetLightBoxBrightness(value uint16) error {
	return d.withLightBox(func(lb *LightBox) error {
		return lb.SetBrightness(value)
	})
}

// EnableLightBox switches the panel on or off
func (d *Device) EnableLightBox(on bool) error {
	return d.withLightBox(func(lb *LightBox) error {
		return lb.Enable(on)
	})
}

// QueryStatus reads the firmware status line
func (d *Device) QueryStatus() (protocol.PanelStatus, error) {
	var st protocol.PanelStatus
	err := d.withLightBox(func(lb *LightBox) error {
		var err error
		st, err = lb.QueryStatus()
		return err
	})
	return st, err
}

// ProcessNumber forwards number property updates to the light box.
// It reports whether the property belongs to the light box.
func (d *Device) ProcessNumber(name string, value float64) (bool, error) {
	if name != PropertyIntensity {
		return false, nil
	}
	v := math.Round(value)
	if v < 0 || v > protocol.MaxBrightness || math.IsNaN(v) {
		return true, ErrBrightnessRange
	}
	return true, d.SetLightBoxBrightness(uint16(v))
}

// ProcessSwitch forwards switch property updates to the light box
func (d *Device) ProcessSwitch(name string, on bool) (bool, error) {
	if name != PropertyControl {
		return false, nil
	}
	return true, d.EnableLightBox(on)
}

func (d *Device) withLightBox(fn func(lb *LightBox) error) error {
	d.mu.Lock()
	if d.state.GetState() != StateConnected {
		d.mu.Unlock()
		return ErrNotConnected
	}
	err := fn(d.LightBox)
	if err != nil {
		var cerr *CommandError
		if errors.As(err, &cerr) && cerr.LinkLost() {
			d.dropLocked(err)
		} else {
			d.state.RecordError(err.Error())
		}
	}
	d.mu.Unlock()

	d.notify()
	return err
}

// Status returns the current status snapshot
func (d *Device) Status() StatusInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.statusLocked()
}

func (d *Device) statusLocked() StatusInfo {
	st := d.state.GetState()
	info := StatusInfo{
		Device:      d.cfg.Name,
		State:       st.String(),
		Port:        d.cfg.PortName,
		Simulation:  d.cfg.Simulation,
		IsConnected: st == StateConnected,
		Enabled:     d.LightBox.Enabled(),
		Brightness:  d.LightBox.Brightness(),
		LastError:   d.state.LastError(),
		Since:       d.state.Since(),
	}

	// Generate message based on state
	switch st {
	case StateDisconnected:
		info.Message = "Panel disconnected"
	case StateConnecting:
		info.Message = "Connecting to panel..."
	case StateConnected:
		if info.Enabled {
			info.Message = fmt.Sprintf("Light on at %d/%d", info.Brightness, protocol.MaxBrightness)
		} else {
			info.Message = "Light off"
		}
	}
	return info
}

func (d *Device) notify() {
	d.cbMu.RLock()
	cb := d.onChange
	d.cbMu.RUnlock()

	if cb != nil {
		cb(d.Status())
	}
}

func onOff(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}
