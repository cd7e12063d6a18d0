package driver

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"blandpanel-server/logger"
	"blandpanel-server/protocol"
)

const (
	DefaultReadTimeout = 5 * time.Second

	// MaxReplyLen bounds one reply line
	MaxReplyLen = 1024

	pollInterval = 20 * time.Millisecond
)

var (
	ErrShortWrite   = errors.New("short write")
	ErrReadTimeout  = errors.New("timeout waiting for reply")
	ErrReplyTooLong = errors.New("reply exceeds buffer without line feed")

	// ErrPortFailure marks faults where the port itself failed (unplugged,
	// closed, EOF) as opposed to a panel that did not answer in time
	ErrPortFailure = errors.New("port failure")
)

// Transport performs single command/reply exchanges with the panel.
// It borrows the port and never opens or closes it.
type Transport struct {
	Port        Port
	ReadTimeout time.Duration
	Simulation  bool
}

func NewTransport(port Port) *Transport {
	return &Transport{Port: port, ReadTimeout: DefaultReadTimeout}
}

// Send 执行一次完整的交换
// 流程: Flush -> Write -> Read until LF -> Strip terminator
func (t *Transport) Send(cmd protocol.Command) protocol.Result {
	logger.Debug("Panel CMD %s", cmd)

	if t.Simulation {
		res := protocol.Classify(protocol.TokenOK)
		logger.Debug("Panel RSP %s (simulated)", res.Reply)
		return res
	}

	if t.Port == nil {
		return t.fault(cmd, "write", errors.New("no open port"))
	}

	// 1. 清空收发缓冲, 避免读到上一次的应答
	if err := t.Port.ResetInputBuffer(); err != nil {
		logger.Debug("Failed to reset input buffer: %v", err)
	}
	if err := t.Port.ResetOutputBuffer(); err != nil {
		logger.Debug("Failed to reset output buffer: %v", err)
	}

	// 2. 发送命令
	data := cmd.Bytes()
	logger.Protocol("TX", cmd.Keyword(), data)
	n, err := t.Port.Write(data)
	if err != nil {
		return t.fault(cmd, "write", fmt.Errorf("%w: %w", ErrPortFailure, err))
	}
	if n != len(data) {
		return t.fault(cmd, "write", fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, len(data)))
	}

	// 3. 读取应答直到换行
	raw, err := t.readLine()
	if err != nil {
		return t.fault(cmd, "read", err)
	}
	logger.Protocol("RX", cmd.Keyword(), raw)

	reply, err := protocol.StripTerminator(raw)
	if err != nil {
		return t.fault(cmd, "read", err)
	}

	res := protocol.Classify(reply)
	logger.Debug("Panel RSP %s", reply)
	logger.Exchange(cmd.String(), reply, res.Status.String())
	return res
}

// readLine reads until a line feed or until the read timeout elapses.
// Bytes after the first line feed are dropped.
func (t *Transport) readLine() ([]byte, error) {
	timeout := t.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	deadline := time.Now().Add(timeout)

	buf := make([]byte, 64)
	var line []byte

	for {
		n, err := t.Port.Read(buf)
		if n > 0 {
			line = append(line, buf[:n]...)
			if idx := bytes.IndexByte(line, protocol.Terminator); idx >= 0 {
				return line[:idx+1], nil
			}
			if len(line) >= MaxReplyLen {
				return nil, ErrReplyTooLong
			}
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPortFailure, err)
		}
		if !time.Now().Before(deadline) {
			return nil, ErrReadTimeout
		}
		if n == 0 {
			time.Sleep(pollInterval)
		}
	}
}

func (t *Transport) fault(cmd protocol.Command, op string, err error) protocol.Result {
	err = fmt.Errorf("%s %s: %w", op, cmd.Keyword(), err)
	if op == "write" {
		logger.Error("Serial write error: %v", err)
	} else {
		logger.Error("Serial read error: %v", err)
	}
	return protocol.Fault(err)
}
