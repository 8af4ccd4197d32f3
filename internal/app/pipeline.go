package app

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/detectcam/internal/detector"
	"github.com/ayusman/detectcam/internal/store"
)

// run drives ticks until ctx is cancelled. At most one tick is in flight; a tick that
// fires while the previous one is still running is skipped and counted.
func (a *App) run(ctx context.Context, gen uint64, sessionID string, done chan struct{}) {
	defer close(done)

	interval := a.cfg.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !a.busy.CompareAndSwap(false, true) {
				a.skipped.Add(1)
				continue
			}
			seq := a.seq.Add(1)
			go func() {
				defer a.busy.Store(false)
				a.tick(ctx, gen, sessionID, seq)
			}()
		}
	}
}

// tick runs one frame through preprocess, inference, mapping and rendering, then
// publishes the result unless the loop was stopped meanwhile.
func (a *App) tick(ctx context.Context, gen uint64, sessionID string, seq uint64) {
	a.ticks.Add(1)

	frame, err := a.camera.ReadFrame()
	if err != nil {
		// the camera is closed under a tick that outlived Stop
		if ctx.Err() == nil {
			a.fail("read frame", err)
		}
		return
	}
	defer frame.Close()

	changed := true
	if a.gate.Enabled() {
		changed, _ = a.gate.Changed(*frame)
	}

	var dets []detector.Detection
	if changed {
		dets, err = a.detect(ctx, *frame)
		if err != nil {
			if ctx.Err() == nil {
				a.fail("detect", err)
			}
			return
		}
	} else {
		a.gated.Add(1)
		dets = a.cached()
	}

	img, err := frame.ToImage()
	if err != nil {
		a.fail("convert frame", err)
		return
	}
	annotated := a.renderer.Annotate(img, dets)

	result := Result{
		SessionID:  sessionID,
		Tick:       seq,
		Time:       time.Now(),
		Width:      frame.Cols(),
		Height:     frame.Rows(),
		Inferred:   changed,
		Detections: dets,
		Frame:      annotated,
	}

	if !a.publish(gen, result) {
		a.discarded.Add(1)
		a.logger.Debug("discarding result of stopped session",
			zap.String("session", sessionID),
			zap.Uint64("tick", seq),
		)
		return
	}

	a.mu.Lock()
	if changed {
		a.last = dets
	}
	a.lastTick = result.Time
	a.lastCount = len(dets)
	a.mu.Unlock()

	a.recordHistory(sessionID, seq, dets, changed)
}

// detect prepares the frame at the model input size, runs the session and maps the
// surviving rows to frame-space detections with known classes.
func (a *App) detect(ctx context.Context, frame gocv.Mat) ([]detector.Detection, error) {
	input, err := a.prepare(frame, a.cfg.Model.InputWidth, a.cfg.Model.InputHeight)
	if err != nil {
		return nil, err
	}

	rows, err := a.session.Invoke(ctx, input, a.Thresholds())
	if err != nil {
		return nil, err
	}

	sx, sy := input.Scale()
	mapped := detector.MapAll(rows, sx, sy, a.table)

	dets := mapped[:0]
	for _, d := range mapped {
		if err := detector.CheckClass(d, a.table); err != nil {
			a.logger.Warn("dropping detection", zap.Error(err))
			continue
		}
		dets = append(dets, d)
	}
	return dets, nil
}

// publish hands r to every sink if gen is still current. It reports whether r was published.
func (a *App) publish(gen uint64, r Result) bool {
	a.pubMu.RLock()
	defer a.pubMu.RUnlock()

	if a.gen.Load() != gen {
		return false
	}
	for _, s := range a.sinks {
		s.Publish(r)
	}
	a.published.Add(1)
	return true
}

func (a *App) cached() []detector.Detection {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// fail counts and logs a per-tick error. The loop keeps running.
func (a *App) fail(stage string, err error) {
	a.errs.Add(1)
	a.logger.Warn("tick failed", zap.String("stage", stage), zap.Error(err))

	a.mu.Lock()
	a.lastErr = stage + ": " + err.Error()
	a.mu.Unlock()
}

func (a *App) historyEnabled() bool {
	return a.store != nil && a.cfg.History
}

func (a *App) beginHistory(id string, startedAt time.Time) {
	if !a.historyEnabled() {
		return
	}
	sess := &store.Session{ID: id, Camera: a.cfg.Camera.DeviceID, StartedAt: startedAt}
	if err := a.store.Sessions().Create(sess); err != nil {
		a.logger.Warn("failed to record session", zap.String("session", id), zap.Error(err))
	}
}

func (a *App) finishHistory(stats Stats) {
	if !a.historyEnabled() || stats.SessionID == "" {
		return
	}
	err := a.store.Sessions().Finish(stats.SessionID, time.Now(), store.SessionStats{
		Ticks:   int64(stats.Ticks),
		Skipped: int64(stats.Skipped),
		Errors:  int64(stats.Errors),
	})
	if err != nil {
		a.logger.Warn("failed to finish session", zap.String("session", stats.SessionID), zap.Error(err))
	}
}

// recordHistory stores freshly inferred detections. Reused detections from a static
// scene are not stored again.
func (a *App) recordHistory(sessionID string, seq uint64, dets []detector.Detection, inferred bool) {
	if !a.historyEnabled() || !inferred || len(dets) == 0 {
		return
	}
	rows := make([]store.Detection, 0, len(dets))
	for _, d := range dets {
		rows = append(rows, store.Detection{
			ClassID:    d.ClassID,
			Label:      d.Label,
			Confidence: d.Confidence,
			X:          d.Box.X,
			Y:          d.Box.Y,
			W:          d.Box.W,
			H:          d.Box.H,
		})
	}
	if err := a.store.Detections().Create(sessionID, int64(seq), rows); err != nil {
		a.logger.Warn("failed to record detections", zap.String("session", sessionID), zap.Error(err))
	}
}
