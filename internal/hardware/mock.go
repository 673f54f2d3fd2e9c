package hardware

import (
	"context"
	"sync"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/errors"
)

// Mock drivers back the manager in tests and in simulation mode on
// development machines without the real peripherals attached.

type MockGate struct {
	mu         sync.Mutex
	connected  bool
	OpenCount  int
	CloseCount int
	FailOpens  int
	FailCloses int
}

func NewMockGate() *MockGate { return &MockGate{} }

func (g *MockGate) Connect() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = true
	return nil
}

func (g *MockGate) Disconnect() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = false
	return nil
}

func (g *MockGate) Open(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return errors.New(errors.ErrNotInitialized, "mock gate not connected").
			WithDevice(string(DeviceGate)).WithOp("open")
	}
	if g.FailOpens > 0 {
		g.FailOpens--
		return errors.New(errors.ErrSerialWrite, "injected open failure").
			WithDevice(string(DeviceGate)).WithOp("open")
	}
	g.OpenCount++
	return nil
}

func (g *MockGate) Close(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return errors.New(errors.ErrNotInitialized, "mock gate not connected").
			WithDevice(string(DeviceGate)).WithOp("close")
	}
	if g.FailCloses > 0 {
		g.FailCloses--
		return errors.New(errors.ErrSerialWrite, "injected close failure").
			WithDevice(string(DeviceGate)).WithOp("close")
	}
	g.CloseCount++
	return nil
}

type MockCamera struct {
	mu           sync.Mutex
	Image        []byte
	FailCaptures int
	CaptureCount int
}

func NewMockCamera(image []byte) *MockCamera { return &MockCamera{Image: image} }

func (c *MockCamera) Connect() error    { return nil }
func (c *MockCamera) Disconnect() error { return nil }

func (c *MockCamera) Capture(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CaptureCount++
	if c.FailCaptures > 0 {
		c.FailCaptures--
		return nil, errors.New(errors.ErrCaptureFailed, "injected capture failure").
			WithDevice(string(DeviceCamera)).WithOp("capture")
	}
	if len(c.Image) == 0 {
		return nil, errors.New(errors.ErrCaptureFailed, "mock image empty").
			WithDevice(string(DeviceCamera)).WithOp("capture")
	}
	return c.Image, nil
}

type MockPrinter struct {
	mu         sync.Mutex
	Jobs       [][]byte
	FailPrints int
}

func NewMockPrinter() *MockPrinter { return &MockPrinter{} }

func (p *MockPrinter) Connect() error    { return nil }
func (p *MockPrinter) Disconnect() error { return nil }

func (p *MockPrinter) Print(ctx context.Context, job []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailPrints > 0 {
		p.FailPrints--
		return errors.New(errors.ErrPrintFailed, "injected print failure").
			WithDevice(string(DevicePrinter)).WithOp("print")
	}
	cp := make([]byte, len(job))
	copy(cp, job)
	p.Jobs = append(p.Jobs, cp)
	return nil
}

func (p *MockPrinter) JobCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Jobs)
}

type MockScanner struct {
	ch   chan string
	once sync.Once
}

func NewMockScanner() *MockScanner {
	return &MockScanner{ch: make(chan string, 16)}
}

func (s *MockScanner) Connect() error { return nil }

func (s *MockScanner) Disconnect() error {
	s.once.Do(func() { close(s.ch) })
	return nil
}

func (s *MockScanner) Barcodes() <-chan string { return s.ch }

// Scan simulates a physical scan.
func (s *MockScanner) Scan(code string) { s.ch <- code }

type MockTrigger struct {
	mu     sync.Mutex
	levels map[int]bool
	Errs   map[int]error
}

func NewMockTrigger() *MockTrigger {
	return &MockTrigger{levels: make(map[int]bool), Errs: make(map[int]error)}
}

func (t *MockTrigger) Connect() error    { return nil }
func (t *MockTrigger) Disconnect() error { return nil }

func (t *MockTrigger) Read(pin int) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.Errs[pin]; err != nil {
		return false, err
	}
	return t.levels[pin], nil
}

// Set drives the simulated pin level.
func (t *MockTrigger) Set(pin int, level bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.levels[pin] = level
}
