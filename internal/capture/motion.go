package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

const (
	// BlurSize is the Gaussian kernel applied before differencing.
	BlurSize = 21
	// DiffThreshold is the per-pixel intensity change that counts as changed.
	DiffThreshold = 25
)

// MotionGate decides whether a frame differs enough from the last inferred frame
// to be worth running the detector on.
type MotionGate struct {
	threshold float64
	baseline  gocv.Mat
	primed    bool
	mu        sync.Mutex
}

// NewMotionGate returns a gate that opens when more than threshold percent of
// pixels change. A threshold <= 0 disables the gate; Changed then always reports true.
func NewMotionGate(threshold float64) *MotionGate {
	return &MotionGate{
		threshold: threshold,
		baseline:  gocv.NewMat(),
	}
}

// Enabled reports whether the gate filters frames at all.
func (g *MotionGate) Enabled() bool {
	return g != nil && g.threshold > 0
}

// Changed reports whether frame differs from the baseline and by how many percent.
// The first frame after construction or Reset always counts as changed. The baseline
// only moves when a change is reported, so slow drift still accumulates.
func (g *MotionGate) Changed(frame gocv.Mat) (bool, float64) {
	if !g.Enabled() {
		return true, 100
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Pt(BlurSize, BlurSize), 0, 0, gocv.BorderDefault)

	if !g.primed || blurred.Rows() != g.baseline.Rows() || blurred.Cols() != g.baseline.Cols() {
		blurred.CopyTo(&g.baseline)
		g.primed = true
		return true, 100
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, g.baseline, &diff)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(diff, &mask, DiffThreshold, 255, gocv.ThresholdBinary)

	percent := float64(gocv.CountNonZero(mask)) / float64(mask.Rows()*mask.Cols()) * 100
	if percent <= g.threshold {
		return false, percent
	}

	blurred.CopyTo(&g.baseline)
	return true, percent
}

// Reset forgets the baseline so the next frame counts as changed.
func (g *MotionGate) Reset() {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.primed = false
}

// Close releases the baseline Mat.
func (g *MotionGate) Close() {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.baseline.Close()
	g.baseline = gocv.NewMat()
	g.primed = false
}
