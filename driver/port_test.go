package driver

import "sync"

// scriptPort is a Port whose replies are computed from each written command
type scriptPort struct {
	mu sync.Mutex

	ops     []string
	writes  []string
	pending []byte
	reply   func(cmd string) string // nil keeps the port silent
	chunk   int                     // max bytes per Read, 0 for no limit

	writeErr error
	readErr  error
	short    bool
	reads    int
	closed   bool
}

var _ Port = (*scriptPort)(nil)

func okReplies(string) string { return "OK\r\n" }

func (p *scriptPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.reads++
	if p.readErr != nil {
		return 0, p.readErr
	}
	if len(p.pending) == 0 {
		return 0, nil
	}
	limit := len(b)
	if p.chunk > 0 && p.chunk < limit {
		limit = p.chunk
	}
	n := copy(b[:limit], p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *scriptPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ops = append(p.ops, "write")
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	p.writes = append(p.writes, string(b))
	if p.short {
		return len(b) - 1, nil
	}
	if p.reply != nil {
		p.pending = append(p.pending, p.reply(string(b))...)
	}
	return len(b), nil
}

func (p *scriptPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *scriptPort) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, "reset-in")
	p.pending = nil
	return nil
}

func (p *scriptPort) ResetOutputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, "reset-out")
	return nil
}

func (p *scriptPort) Writes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.writes...)
}
