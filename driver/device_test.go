package driver

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func newMockDevice(t *testing.T) (*Device, *MockPort) {
	t.Helper()
	port := NewMockPort()
	d := NewDevice(Config{PortName: "mock://test"})
	d.SetOpener(func(string, int) (Port, error) { return port, nil })
	return d, port
}

func TestNewDeviceDefaults(t *testing.T) {
	d := NewDevice(Config{})
	st := d.Status()
	if st.Device != DefaultDeviceName || st.Port != DefaultPortName {
		t.Errorf("status %+v", st)
	}
	if st.IsConnected || st.State != "DISCONNECTED" {
		t.Errorf("new device should be disconnected: %+v", st)
	}
}

func TestSimulatedDevice(t *testing.T) {
	d := NewDevice(Config{Simulation: true})
	d.SetOpener(func(string, int) (Port, error) {
		t.Fatal("simulation must not open a port")
		return nil, nil
	})

	if err := d.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := d.SetLightBoxBrightness(128); err != nil {
		t.Errorf("SetLightBoxBrightness: %v", err)
	}
	if err := d.EnableLightBox(true); err != nil {
		t.Errorf("EnableLightBox: %v", err)
	}
	st := d.Status()
	if !st.Enabled || st.Brightness != 128 || !st.Simulation {
		t.Errorf("status %+v", st)
	}
}

func TestDeviceRequiresConnection(t *testing.T) {
	d, _ := newMockDevice(t)
	if err := d.SetLightBoxBrightness(1); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SetLightBoxBrightness err = %v", err)
	}
	if err := d.EnableLightBox(true); !errors.Is(err, ErrNotConnected) {
		t.Errorf("EnableLightBox err = %v", err)
	}
	if err := d.Disconnect(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Disconnect err = %v", err)
	}
}

func TestDeviceDrivesPanel(t *testing.T) {
	d, port := newMockDevice(t)
	if err := d.Connect(); err != nil {
		t.Fatal(err)
	}
	if err := d.Connect(); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Connect err = %v", err)
	}

	if err := d.SetLightBoxBrightness(255); err != nil {
		t.Fatal(err)
	}
	if err := d.EnableLightBox(true); err != nil {
		t.Fatal(err)
	}
	snap := port.Panel.Snapshot()
	if !snap.Enabled || snap.State != "closed" || snap.Brightness != 1.0 {
		t.Errorf("panel %+v", snap)
	}

	st, err := d.QueryStatus()
	if err != nil || !st.Enabled {
		t.Errorf("QueryStatus = %+v, %v", st, err)
	}

	if err := d.EnableLightBox(false); err != nil {
		t.Fatal(err)
	}
	if snap := port.Panel.Snapshot(); snap.Enabled || snap.State != "opened" {
		t.Errorf("panel %+v", snap)
	}

	if err := d.Disconnect(); err != nil {
		t.Fatal(err)
	}
	if d.IsConnected() {
		t.Error("still connected")
	}
	if _, err := port.Read(make([]byte, 1)); err == nil {
		t.Error("port not closed on disconnect")
	}
}

func TestDeviceConnectFailure(t *testing.T) {
	d := NewDevice(Config{PortName: "/dev/ttyACM9"})
	d.SetOpener(func(string, int) (Port, error) { return nil, errors.New("no such device") })

	if err := d.Connect(); err == nil {
		t.Fatal("Connect succeeded")
	}
	st := d.Status()
	if st.IsConnected || st.LastError == "" {
		t.Errorf("status %+v", st)
	}
}

func TestDeviceFailedWriteReportsFailure(t *testing.T) {
	port := &scriptPort{writeErr: errors.New("EIO")}
	d := NewDevice(Config{})
	d.SetOpener(func(string, int) (Port, error) { return port, nil })
	if err := d.Connect(); err != nil {
		t.Fatal(err)
	}
	if err := d.SetLightBoxBrightness(128); err == nil {
		t.Error("SetLightBoxBrightness succeeded")
	}
	if err := d.EnableLightBox(true); !errors.Is(err, ErrNotConnected) {
		t.Errorf("EnableLightBox(true) after port failure err = %v", err)
	}
	if err := d.EnableLightBox(false); err == nil {
		t.Error("EnableLightBox(false) succeeded")
	}
	st := d.Status()
	if st.IsConnected || st.LastError == "" {
		t.Errorf("status %+v", st)
	}
	if !port.closed {
		t.Error("failed port left open")
	}
}

func TestDeviceDropsUnpluggedPanel(t *testing.T) {
	var ports []*MockPort
	open := func(string, int) (Port, error) {
		p := NewMockPort()
		ports = append(ports, p)
		return p, nil
	}

	d := NewDevice(Config{PortName: "/dev/ttyACM0"})
	d.SetOpener(open)
	if err := d.Connect(); err != nil {
		t.Fatal(err)
	}

	// unplug
	ports[0].Close()

	err := d.EnableLightBox(true)
	var cerr *CommandError
	if !errors.As(err, &cerr) || !cerr.LinkLost() {
		t.Fatalf("err = %v, want a lost link", err)
	}
	if d.IsConnected() {
		t.Fatalf("still connected after port failure, state %s", d.Status().State)
	}

	s := NewScanner(d)
	s.open = open
	s.listPorts = func() ([]string, error) { return []string{"/dev/ttyACM0"}, nil }
	if !s.scanAndConnect() {
		t.Fatal("scanner did not reconnect")
	}
	if !d.IsConnected() {
		t.Fatal("not connected after rescan")
	}
	if err := d.EnableLightBox(true); err != nil {
		t.Errorf("EnableLightBox after reconnect: %v", err)
	}
}

func TestDeviceKeepsConnectionOnTimeout(t *testing.T) {
	port := &scriptPort{} // connected but never answers
	d := NewDevice(Config{ReadTimeout: 50 * time.Millisecond})
	d.SetOpener(func(string, int) (Port, error) { return port, nil })
	d.Connect()

	err := d.SetLightBoxBrightness(10)
	var cerr *CommandError
	if !errors.As(err, &cerr) || !cerr.Faulted() || cerr.LinkLost() {
		t.Fatalf("err = %v", err)
	}
	if !d.IsConnected() || port.closed {
		t.Error("a slow panel must not drop the connection")
	}
}

func TestProcessProperties(t *testing.T) {
	d, port := newMockDevice(t)
	d.Connect()

	handled, err := d.ProcessNumber(PropertyIntensity, 127.6)
	if !handled || err != nil {
		t.Fatalf("ProcessNumber = %v, %v", handled, err)
	}
	if d.LightBox.Brightness() != 128 {
		t.Errorf("brightness = %d", d.LightBox.Brightness())
	}

	if handled, err := d.ProcessNumber(PropertyIntensity, 300); !handled || !errors.Is(err, ErrBrightnessRange) {
		t.Errorf("out of range = %v, %v", handled, err)
	}
	if handled, _ := d.ProcessNumber("CCD_EXPOSURE", 1); handled {
		t.Error("foreign number property handled")
	}

	if handled, err := d.ProcessSwitch(PropertyControl, true); !handled || err != nil {
		t.Fatalf("ProcessSwitch = %v, %v", handled, err)
	}
	if !port.Panel.Snapshot().Enabled {
		t.Error("panel not switched on")
	}
	if handled, _ := d.ProcessSwitch("CONNECTION", true); handled {
		t.Error("foreign switch property handled")
	}
}

func TestSimulationToggle(t *testing.T) {
	d, _ := newMockDevice(t)
	if err := d.SetSimulation(true); err != nil {
		t.Fatal(err)
	}
	if !d.IsSimulation() {
		t.Error("simulation not set")
	}
	d.Connect()
	if err := d.SetSimulation(false); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("toggle while connected err = %v", err)
	}
}

func TestConnectTo(t *testing.T) {
	d, _ := newMockDevice(t)
	if err := d.ConnectTo("mock://other"); err != nil {
		t.Fatal(err)
	}
	if st := d.Status(); st.Port != "mock://other" || !st.IsConnected {
		t.Errorf("status %+v", st)
	}
}

func TestStatusCallback(t *testing.T) {
	d, _ := newMockDevice(t)

	var mu sync.Mutex
	var states []string
	d.SetCallback(func(info StatusInfo) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, info.State)
	})

	d.Connect()
	d.EnableLightBox(true)
	d.Disconnect()

	mu.Lock()
	defer mu.Unlock()
	want := []string{"CONNECTED", "CONNECTED", "DISCONNECTED"}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("states = %v, want %v", states, want)
		}
	}
}
