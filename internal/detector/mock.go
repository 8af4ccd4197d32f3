package detector

import (
	"sync"

	"github.com/ayusman/detectcam/internal/config"
	"github.com/ayusman/detectcam/internal/preprocess"
)

// MockModel is a test implementation of Model.
// It returns a preset tensor and counts calls.
type MockModel struct {
	mu     sync.Mutex
	output Tensor
	err    error
	calls  int
	closed bool

	// Block, when set, is received from before Run returns.
	Block chan struct{}
}

// NewMockModel creates a new MockModel instance.
func NewMockModel() *MockModel {
	return &MockModel{}
}

// SetOutput sets the tensor returned by Run.
func (m *MockModel) SetOutput(t Tensor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.output = t
}

// SetError sets the error returned by Run.
func (m *MockModel) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Run returns the configured output or error.
func (m *MockModel) Run(input preprocess.Input) (Tensor, error) {
	m.mu.Lock()
	m.calls++
	block := m.Block
	m.mu.Unlock()

	if block != nil {
		<-block
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Tensor{}, m.err
	}
	return m.output, nil
}

// Calls returns how many times Run was invoked.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close marks the model closed.
func (m *MockModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockModel) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockSuppressor is a test implementation of Suppressor that returns preset rows.
type MockSuppressor struct {
	mu   sync.Mutex
	rows []Row
	err  error
	last config.Thresholds
}

// NewMockSuppressor creates a MockSuppressor returning rows.
func NewMockSuppressor(rows ...Row) *MockSuppressor {
	return &MockSuppressor{rows: rows}
}

// SetRows replaces the rows returned by Select.
func (s *MockSuppressor) SetRows(rows []Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = rows
}

// SetError sets the error returned by Select.
func (s *MockSuppressor) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Select records th and returns the configured rows or error.
func (s *MockSuppressor) Select(raw Tensor, th config.Thresholds) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = th
	if s.err != nil {
		return nil, s.err
	}
	return s.rows, nil
}

// LastThresholds returns the thresholds seen by the most recent Select.
func (s *MockSuppressor) LastThresholds() config.Thresholds {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Close is a no-op.
func (s *MockSuppressor) Close() error {
	return nil
}

// PersonRow returns a row scoring "person" at score, centered at (cx, cy) in model space.
func PersonRow(cx, cy, w, h, score float32) Row {
	scores := make([]float32, 80)
	scores[0] = score
	return Row{Box: [4]float32{cx, cy, w, h}, Scores: scores}
}
