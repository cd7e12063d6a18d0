package driver

import (
	"bytes"
	"io"
	"sync"
	"time"

	"blandpanel-server/emulator"
)

// MockPort 模拟串口行为
// 写入的每一行交给固件模拟器处理, 应答放入读缓冲
type MockPort struct {
	Panel *emulator.Panel

	readBuf  *bytes.Buffer
	lineBuf  *bytes.Buffer
	mu       sync.Mutex
	closed   bool
	simDelay time.Duration // 模拟固件处理耗时
}

var _ Port = (*MockPort)(nil)

func NewMockPort() *MockPort {
	return &MockPort{
		Panel:   emulator.NewPanel(),
		readBuf: new(bytes.Buffer),
		lineBuf: new(bytes.Buffer),
	}
}

// SetDelay makes replies arrive asynchronously after d
func (m *MockPort) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.simDelay = d
}

func (m *MockPort) Read(p []byte) (n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, io.EOF
	}

	if m.readBuf.Len() == 0 {
		return 0, nil
	}
	return m.readBuf.Read(p)
}

func (m *MockPort) Write(p []byte) (n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, io.ErrClosedPipe
	}

	m.lineBuf.Write(p)
	for {
		line, err := m.lineBuf.ReadString('\n')
		if err != nil {
			// keep the partial line for the next write
			m.lineBuf.Reset()
			m.lineBuf.WriteString(line)
			break
		}
		reply, ok := m.Panel.Handle(line)
		if !ok {
			continue
		}
		if m.simDelay > 0 {
			go m.simulateResponse(reply, m.simDelay)
		} else {
			m.readBuf.WriteString(reply + emulator.LineEnding)
		}
	}

	return len(p), nil
}

func (m *MockPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockPort) ResetInputBuffer() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readBuf.Reset()
	return nil
}

func (m *MockPort) ResetOutputBuffer() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lineBuf.Reset()
	return nil
}

func (m *MockPort) simulateResponse(reply string, delay time.Duration) {
	time.Sleep(delay)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.readBuf.WriteString(reply + emulator.LineEnding)
}
