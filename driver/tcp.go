package driver

import (
	"errors"
	"fmt"
	"net"
	"time"

	"blandpanel-server/logger"
)

const (
	tcpDialTimeout = 5 * time.Second
	tcpPollTimeout = 100 * time.Millisecond

	// drainWindow and drainLimit bound ResetInputBuffer against a peer
	// that never stops sending.
	drainWindow = 100 * time.Millisecond
	drainLimit  = 4 * MaxReplyLen
)

// TCPPort carries the panel line protocol over a TCP stream, for
// serial-over-TCP bridges and the mock-panel simulator.
type TCPPort struct {
	conn    net.Conn
	address string
}

var _ Port = (*TCPPort)(nil)

// OpenTCP dials a panel at host:port
func OpenTCP(address string) (*TCPPort, error) {
	conn, err := net.DialTimeout("tcp", address, tcpDialTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	logger.Info("Connected to panel at %s (TCP)", address)
	return newTCPPort(conn, address), nil
}

func newTCPPort(conn net.Conn, address string) *TCPPort {
	return &TCPPort{conn: conn, address: address}
}

// Read waits at most tcpPollTimeout. An expired wait returns (0, nil) like
// a serial port read timeout, so the transport keeps polling.
func (t *TCPPort) Read(p []byte) (int, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(tcpPollTimeout)); err != nil {
		return 0, err
	}
	n, err := t.conn.Read(p)
	if isTimeout(err) {
		return n, nil
	}
	return n, err
}

func (t *TCPPort) Write(p []byte) (int, error) {
	return t.conn.Write(p)
}

func (t *TCPPort) Close() error {
	return t.conn.Close()
}

// ResetInputBuffer discards whatever the peer already sent. It stops at the
// first quiet read, after drainWindow, or after drainLimit bytes.
func (t *TCPPort) ResetInputBuffer() error {
	stop := time.Now().Add(drainWindow)
	buf := make([]byte, 256)
	drained := 0

	for drained < drainLimit && time.Now().Before(stop) {
		wait := time.Now().Add(10 * time.Millisecond)
		if wait.After(stop) {
			wait = stop
		}
		if err := t.conn.SetReadDeadline(wait); err != nil {
			return err
		}
		n, err := t.conn.Read(buf)
		drained += n
		if isTimeout(err) || n == 0 {
			break
		}
		if err != nil {
			return err
		}
	}

	if drained > 0 {
		logger.Debug("Discarded %d stale bytes from %s", drained, t.address)
	}
	return nil
}

// ResetOutputBuffer has nothing to do: writes go straight to the socket
func (t *TCPPort) ResetOutputBuffer() error {
	return nil
}

// GetAddress returns the TCP address for logging
func (t *TCPPort) GetAddress() string {
	return t.address
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
