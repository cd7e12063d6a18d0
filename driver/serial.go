package driver

import (
	"fmt"
	"strings"
	"time"

	"blandpanel-server/logger"

	"go.bug.st/serial"
)

const (
	DefaultBaudRate = 115200
	DefaultPortName = "/dev/ttyACM0"

	tcpScheme  = "tcp://"
	mockScheme = "mock://"
)

// Port defines the serial line used to talk to the panel
type Port interface {
	Read([]byte) (int, error)
	Write([]byte) (int, error)
	Close() error
	ResetInputBuffer() error
	ResetOutputBuffer() error
}

// Opener opens a port by name, see OpenSerial
type Opener func(portName string, baudRate int) (Port, error)

// ============================================================================
// Serial Port (USB CDC / RS232)
// ============================================================================

// SerialPort wraps go.bug.st/serial
type SerialPort struct {
	serial.Port
	portName string
}

var _ Port = (*SerialPort)(nil)

// openSerialPort opens a physical serial port
func openSerialPort(portName string, baudRate int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, err
	}

	// Set read timeout to prevent blocking forever
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	logger.Info("Serial port %s opened at %d bps (8N1)", portName, baudRate)
	return &SerialPort{Port: port, portName: portName}, nil
}

func (p *SerialPort) GetPortName() string {
	return p.portName
}

// ============================================================================
// Unified Open Function
// ============================================================================

// OpenSerial opens a port based on the address format:
//
//	tcp://host:port   serial-over-TCP or the mock-panel simulator
//	mock://[name]     in-process firmware emulator
//	anything else     physical serial port (/dev/ttyACM0, COM3, ...)
func OpenSerial(portName string, baudRate int) (Port, error) {
	switch {
	case strings.HasPrefix(portName, tcpScheme):
		port, err := OpenTCP(strings.TrimPrefix(portName, tcpScheme))
		if err != nil {
			return nil, err
		}
		return port, nil
	case strings.HasPrefix(portName, mockScheme):
		logger.Info("Using in-process panel emulator (%s)", portName)
		return NewMockPort(), nil
	}
	return openSerialPort(portName, baudRate)
}
