package api

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/ayusman/detectcam/internal/app"
	"github.com/ayusman/detectcam/internal/config"
	"github.com/ayusman/detectcam/internal/labels"
	"github.com/ayusman/detectcam/internal/store"
)

// newTestStore creates a new Store with a temporary database for testing.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// fakeController records calls made by the handlers.
type fakeController struct {
	mu         sync.Mutex
	startErr   error
	ready      bool
	state      app.State
	thresholds config.Thresholds
	starts     int
	stops      int
}

func newFakeController() *fakeController {
	return &fakeController{ready: true, thresholds: config.Default().Thresholds}
}

func (c *fakeController) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts++
	if c.startErr != nil {
		return c.startErr
	}
	c.state = app.Capturing
	return nil
}

func (c *fakeController) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	c.state = app.Idle
}

func (c *fakeController) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func (c *fakeController) Stats() app.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return app.Stats{State: c.state.String(), SessionID: "session-1", Ticks: 12, Thresholds: c.thresholds}
}

func (c *fakeController) Thresholds() config.Thresholds {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.thresholds
}

func (c *fakeController) SetThresholds(th config.Thresholds) error {
	if err := th.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.thresholds = th
	return nil
}

func (c *fakeController) Labels() labels.Table {
	return labels.COCO
}
