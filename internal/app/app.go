// Package app owns the capture loop: it reads frames, runs detection and publishes
// annotated results to registered sinks.
package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/detectcam/internal/capture"
	"github.com/ayusman/detectcam/internal/config"
	"github.com/ayusman/detectcam/internal/detector"
	"github.com/ayusman/detectcam/internal/labels"
	"github.com/ayusman/detectcam/internal/preprocess"
	"github.com/ayusman/detectcam/internal/render"
	"github.com/ayusman/detectcam/internal/store"
)

// State is the capture loop state.
type State int

const (
	// Idle means no camera is held and no ticks run.
	Idle State = iota
	// Capturing means the ticker is running.
	Capturing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Result is one published tick.
type Result struct {
	SessionID  string               `json:"session_id"`
	Tick       uint64               `json:"tick"`
	Time       time.Time            `json:"time"`
	Width      int                  `json:"width"`
	Height     int                  `json:"height"`
	Inferred   bool                 `json:"inferred"`
	Detections []detector.Detection `json:"detections"`
	// Frame is the camera frame with detections drawn over it.
	Frame *image.RGBA `json:"-"`
}

// Sink receives published results. Publish must not block for long; it is called
// from the tick goroutine.
type Sink interface {
	Publish(r Result)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(r Result)

// Publish calls f(r).
func (f SinkFunc) Publish(r Result) { f(r) }

// Stats is a snapshot of loop counters for the current or last session.
type Stats struct {
	State      string            `json:"state"`
	SessionID  string            `json:"session_id,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	Ticks      uint64            `json:"ticks"`
	Skipped    uint64            `json:"skipped"`
	Errors     uint64            `json:"errors"`
	Published  uint64            `json:"published"`
	Gated      uint64            `json:"gated"`
	Discarded  uint64            `json:"discarded"`
	LastTick   time.Time         `json:"last_tick"`
	LastCount  int               `json:"last_count"`
	LastError  string            `json:"last_error,omitempty"`
	Thresholds config.Thresholds `json:"thresholds"`
}

// Options configures an App.
type Options struct {
	Config  config.Config
	Camera  capture.Camera
	Session *detector.Session
	Labels  labels.Table
	Palette labels.Palette
	// Store, when set and Config.History is true, receives sessions and detections.
	Store  *store.Store
	Logger *zap.Logger
}

// App runs the capture loop.
type App struct {
	cfg      config.Config
	camera   capture.Camera
	session  *detector.Session
	table    labels.Table
	renderer *render.Renderer
	gate     *capture.MotionGate
	store    *store.Store
	logger   *zap.Logger

	prepare func(frame gocv.Mat, width, height int) (preprocess.Input, error)

	mu         sync.Mutex
	state      State
	cancel     context.CancelFunc
	done       chan struct{}
	sessionID  string
	startedAt  time.Time
	thresholds config.Thresholds
	last       []detector.Detection
	lastErr    string
	lastTick   time.Time
	lastCount  int
	watchers   []func(State)

	// pubMu orders publishes against Stop: a publish holds it shared and
	// re-checks gen, Stop bumps gen under the exclusive lock.
	pubMu sync.RWMutex
	sinks []Sink

	gen  atomic.Uint64
	busy atomic.Bool
	seq  atomic.Uint64

	ticks     atomic.Uint64
	skipped   atomic.Uint64
	errs      atomic.Uint64
	published atomic.Uint64
	gated     atomic.Uint64
	discarded atomic.Uint64
}

// New creates an idle App.
func New(opts Options) *App {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	table := opts.Labels
	if table == nil {
		table = labels.COCO
	}
	palette := opts.Palette
	if palette == nil {
		palette = labels.Ultralytics
	}
	camera := opts.Camera
	if camera == nil {
		camera = capture.NewCamera(opts.Config.Camera)
	}

	return &App{
		cfg:        opts.Config,
		camera:     camera,
		session:    opts.Session,
		table:      table,
		renderer:   render.New(table, palette, logger.Named("render")),
		gate:       capture.NewMotionGate(opts.Config.MotionThreshold),
		store:      opts.Store,
		logger:     logger,
		prepare:    preprocess.Prepare,
		thresholds: opts.Config.Thresholds,
	}
}

// Start moves Idle to Capturing. It fails with detector.ErrModelNotReady when the
// graphs are not loaded and with capture.ErrCameraAccessDenied when the camera
// cannot be opened; in both cases the loop does not start. Starting while
// capturing is a no-op.
func (a *App) Start() error {
	a.mu.Lock()

	if a.state == Capturing {
		a.mu.Unlock()
		return nil
	}
	if !a.session.Ready() {
		a.mu.Unlock()
		return detector.ErrModelNotReady
	}
	if err := a.camera.Open(); err != nil {
		a.mu.Unlock()
		a.logger.Error("failed to open camera", zap.Error(err))
		if !errors.Is(err, capture.ErrCameraAccessDenied) {
			err = fmt.Errorf("%w: %v", capture.ErrCameraAccessDenied, err)
		}
		return err
	}

	a.resetCounters()
	a.gate.Reset()
	a.sessionID = uuid.NewString()
	a.startedAt = time.Now()
	a.last = nil
	a.lastErr = ""
	a.lastCount = 0
	a.lastTick = time.Time{}

	gen := a.gen.Add(1)
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})
	a.state = Capturing

	a.beginHistory(a.sessionID, a.startedAt)
	go a.run(ctx, gen, a.sessionID, a.done)

	a.logger.Info("capture started",
		zap.String("session", a.sessionID),
		zap.Duration("interval", a.cfg.Interval),
	)
	watchers := a.watchers
	a.mu.Unlock()

	notify(watchers, Capturing)
	return nil
}

// Stop moves Capturing to Idle. When it returns the ticker has stopped, the camera
// is released and no further result will be published. A tick that is still running
// finishes in the background and its result is dropped.
func (a *App) Stop() {
	a.mu.Lock()

	if a.state != Capturing {
		a.mu.Unlock()
		return
	}

	a.pubMu.Lock()
	a.gen.Add(1)
	a.pubMu.Unlock()

	a.cancel()
	<-a.done
	a.cancel = nil
	a.done = nil

	if err := a.camera.Close(); err != nil {
		a.logger.Warn("error closing camera", zap.Error(err))
	}
	a.state = Idle

	stats := a.statsLocked()
	a.finishHistory(stats)

	a.logger.Info("capture stopped",
		zap.String("session", stats.SessionID),
		zap.Uint64("ticks", stats.Ticks),
		zap.Uint64("skipped", stats.Skipped),
		zap.Uint64("errors", stats.Errors),
		zap.Uint64("discarded", stats.Discarded),
	)
	watchers := a.watchers
	a.mu.Unlock()

	notify(watchers, Idle)
}

// Toggle starts an idle loop or stops a running one.
func (a *App) Toggle() error {
	if a.State() == Capturing {
		a.Stop()
		return nil
	}
	return a.Start()
}

// Close stops capturing and releases the motion gate and the model session.
func (a *App) Close() error {
	a.Stop()
	a.gate.Close()
	return a.session.Close()
}

// State returns the current loop state.
func (a *App) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// OnStateChange registers fn to be called after every Start or Stop transition.
func (a *App) OnStateChange(fn func(State)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.watchers = append(a.watchers, fn)
}

// Subscribe registers a sink for published results.
func (a *App) Subscribe(s Sink) {
	a.pubMu.Lock()
	defer a.pubMu.Unlock()
	a.sinks = append(a.sinks, s)
}

// Thresholds returns the thresholds used by the next tick.
func (a *App) Thresholds() config.Thresholds {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.thresholds
}

// SetThresholds validates th and applies it from the next tick on.
func (a *App) SetThresholds(th config.Thresholds) error {
	if err := th.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	a.thresholds = th
	a.mu.Unlock()

	// cached detections were selected with the old thresholds
	a.gate.Reset()
	a.logger.Info("thresholds updated",
		zap.Int("topk", th.TopK),
		zap.Float64("iou", th.IoU),
		zap.Float64("score", th.Score),
	)
	return nil
}

// Labels returns the label table.
func (a *App) Labels() labels.Table {
	return a.table
}

// Ready reports whether detection can run.
func (a *App) Ready() bool {
	return a.session.Ready()
}

// Stats returns a snapshot of the loop counters.
func (a *App) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.statsLocked()
}

func (a *App) statsLocked() Stats {
	return Stats{
		State:      a.state.String(),
		SessionID:  a.sessionID,
		StartedAt:  a.startedAt,
		Ticks:      a.ticks.Load(),
		Skipped:    a.skipped.Load(),
		Errors:     a.errs.Load(),
		Published:  a.published.Load(),
		Gated:      a.gated.Load(),
		Discarded:  a.discarded.Load(),
		LastTick:   a.lastTick,
		LastCount:  a.lastCount,
		LastError:  a.lastErr,
		Thresholds: a.thresholds,
	}
}

func (a *App) resetCounters() {
	a.ticks.Store(0)
	a.skipped.Store(0)
	a.errs.Store(0)
	a.published.Store(0)
	a.gated.Store(0)
	a.discarded.Store(0)
	a.seq.Store(0)
}

func notify(watchers []func(State), s State) {
	for _, fn := range watchers {
		fn(s)
	}
}
