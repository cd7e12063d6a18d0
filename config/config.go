package config

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"
)

const (
	MockAddr = "tcp://localhost:9999"
)

type Config struct {
	Name        string        // Device name reported to clients
	Port        string        // Serial port name (e.g. /dev/ttyACM0, COM3, tcp://host:port, mock://)
	BaudRate    int
	ReadTimeout time.Duration // Reply timeout per command
	WSAddr      string
	LogDir      string
	Simulate    bool // No I/O, every command succeeds
	Scan        bool // Auto-detect the panel
	Mock        bool // Use the mock-panel simulator on localhost:9999
	Debug       bool
}

func defaultPort() string {
	if runtime.GOOS == "windows" {
		return "COM3"
	}
	return "/dev/ttyACM0"
}

// Load parses the process flags
func Load() (*Config, error) {
	return Parse(os.Args[1:])
}

// Parse builds the config from args, then applies environment overrides
func Parse(args []string) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("blandpanel-server", flag.ContinueOnError)
	fs.StringVar(&cfg.Name, "name", "BLand Panel", "Device name")
	fs.StringVar(&cfg.Port, "port", defaultPort(), "Serial port (e.g. /dev/ttyACM0, COM3)")
	fs.IntVar(&cfg.BaudRate, "baud", 115200, "Baud rate")
	fs.DurationVar(&cfg.ReadTimeout, "timeout", 5*time.Second, "Reply timeout")
	fs.StringVar(&cfg.WSAddr, "ws", ":8989", "WebSocket server address")
	fs.StringVar(&cfg.LogDir, "logdir", "logs", "Log directory")
	fs.BoolVar(&cfg.Simulate, "simulate", false, "Simulation mode, no hardware I/O")
	fs.BoolVar(&cfg.Scan, "scan", false, "Auto-detect the panel port")
	fs.BoolVar(&cfg.Mock, "mock", false, "Connect to the mock panel at "+MockAddr)
	fs.BoolVar(&cfg.Debug, "debug", false, "Log every command and reply")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Allow environment variable override
	if envPort := os.Getenv("BLANDPANEL_SERIAL_PORT"); envPort != "" {
		cfg.Port = envPort
	}
	if envBaud := os.Getenv("BLANDPANEL_BAUD"); envBaud != "" {
		baud, err := strconv.Atoi(envBaud)
		if err != nil {
			return nil, fmt.Errorf("invalid BLANDPANEL_BAUD %q: %w", envBaud, err)
		}
		cfg.BaudRate = baud
	}

	if cfg.Mock {
		cfg.Port = MockAddr
	}
	if cfg.BaudRate <= 0 {
		return nil, fmt.Errorf("invalid baud rate %d", cfg.BaudRate)
	}
	if cfg.ReadTimeout <= 0 {
		return nil, fmt.Errorf("invalid timeout %v", cfg.ReadTimeout)
	}

	return cfg, nil
}
