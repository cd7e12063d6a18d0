package driver

import (
	"runtime"
	"strings"
	"sync"
	"time"

	"blandpanel-server/logger"
	"blandpanel-server/protocol"

	"go.bug.st/serial"
)

// Scanner handles auto-detection of the panel
type Scanner struct {
	Device *Device

	// Extra candidates probed after the hardware ports, e.g. tcp://localhost:9999
	Extra []string

	open      Opener
	listPorts func() ([]string, error)
	stop      chan struct{}
	stopOnce  sync.Once
}

func NewScanner(device *Device) *Scanner {
	return &Scanner{
		Device:    device,
		open:      OpenSerial,
		listPorts: serial.GetPortsList,
		stop:      make(chan struct{}),
	}
}

// Start begins the scanning loop
func (s *Scanner) Start() {
	go func() {
		logger.Info("Starting panel scanner...")

		// Initial burst scan
		for i := 0; i < 3; i++ {
			if s.Device.IsConnected() || s.scanAndConnect() {
				break
			}
			select {
			case <-s.stop:
				return
			case <-time.After(1 * time.Second):
			}
		}

		// Periodic scan
		ticker := time.NewTicker(20 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				logger.Info("Scanner stopped")
				return
			case <-ticker.C:
				if !s.Device.IsConnected() {
					s.scanAndConnect()
				}
			}
		}
	}()
}

func (s *Scanner) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// scanAndConnect finds the panel and connects the device to it
func (s *Scanner) scanAndConnect() bool {
	logger.Info("Scanning for panel...")

	ports := s.discoverPorts()

	if len(ports) == 0 {
		logger.Info("No candidate ports found")
		return false
	}

	logger.Debug("Found %d candidate ports: %v", len(ports), ports)

	for _, portName := range ports {
		logger.Debug("Probing port: %s", portName)
		if !s.probePort(portName) {
			continue
		}
		if err := s.Device.ConnectTo(portName); err != nil {
			logger.Error("Panel found on %s but connect failed: %v", portName, err)
			return false
		}
		logger.Info("Panel found on %s", portName)
		return true
	}

	logger.Info("No panel found in this scan cycle")
	return false
}

// discoverPorts finds all candidate ports
func (s *Scanner) discoverPorts() []string {
	var ports []string

	hwPorts, err := s.listPorts()
	if err != nil {
		logger.Error("Failed to list serial ports: %v", err)
	} else {
		ports = append(ports, hwPorts...)
	}

	ports = append(ports, s.Extra...)

	return filterPorts(ports, runtime.GOOS)
}

// filterPorts filters ports based on OS conventions
func filterPorts(ports []string, goos string) []string {
	var filtered []string
	seen := make(map[string]bool)

	for _, port := range ports {
		if seen[port] {
			continue
		}
		seen[port] = true

		// Always include TCP and emulator endpoints
		if strings.HasPrefix(port, tcpScheme) || strings.HasPrefix(port, mockScheme) {
			filtered = append(filtered, port)
			continue
		}

		// Windows: COM ports
		if goos == "windows" {
			if strings.HasPrefix(strings.ToUpper(port), "COM") {
				filtered = append(filtered, port)
			}
			continue
		}

		// macOS/Linux: filter by name
		lower := strings.ToLower(port)
		if strings.Contains(lower, "bluetooth") {
			continue
		}

		// Pico boards enumerate as ttyACM / usbmodem
		if strings.Contains(lower, "ttyacm") ||
			strings.Contains(lower, "ttyusb") ||
			strings.Contains(lower, "usbmodem") ||
			strings.Contains(lower, "usbserial") {
			filtered = append(filtered, port)
		}
	}

	return filtered
}

// probePort sends COMMAND:PING and checks for RESULT:PING:OK:<guid>
func (s *Scanner) probePort(portName string) bool {
	port, err := s.open(portName, s.Device.cfg.BaudRate)
	if err != nil {
		logger.Debug("Failed to open %s: %v", portName, err)
		return false
	}
	defer port.Close()

	t := &Transport{Port: port, ReadTimeout: 2 * time.Second}
	res := t.Send(protocol.Ping())
	if res.Status == protocol.StatusFault {
		logger.Debug("No reply from %s: %v", portName, res.Err)
		return false
	}

	guid, err := protocol.ParsePing(res.Reply)
	if err != nil {
		logger.Debug("Not a panel on %s: %v", portName, err)
		return false
	}

	logger.Info("PING handshake successful on %s (guid %s)", portName, guid)
	return true
}
