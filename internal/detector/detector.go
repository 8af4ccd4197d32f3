// Package detector runs the exported YOLO graphs and maps their output rows to detections.
package detector

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayusman/detectcam/internal/config"
	"github.com/ayusman/detectcam/internal/preprocess"
)

var (
	// ErrModelNotReady is returned when detection runs before the graphs are loaded and warmed up.
	ErrModelNotReady = errors.New("detector: model not ready")

	// ErrClassIndexOutOfRange marks a class id the label table does not know.
	ErrClassIndexOutOfRange = errors.New("detector: class index out of range")
)

// Tensor is a dense float32 tensor with its shape.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Row is one selected detection in model input space.
type Row struct {
	// Box holds center x, center y, width and height.
	Box [4]float32
	// Scores holds one probability per class.
	Scores []float32
}

// Model runs the detector graph on a preprocessed input.
type Model interface {
	// Run returns the raw output, shaped [1, 4+classes, anchors].
	Run(input preprocess.Input) (Tensor, error)

	// Close releases any resources held by the model.
	Close() error
}

// Suppressor filters raw detector output down to at most TopK non-overlapping rows.
type Suppressor interface {
	Select(raw Tensor, th config.Thresholds) ([]Row, error)
	Close() error
}

// Session pairs the detector graph with its post-processor.
// A nil *Session is valid and reports ErrModelNotReady.
type Session struct {
	Model Model
	NMS   Suppressor

	release func()
}

// NewSession wraps an already loaded model and suppressor.
func NewSession(m Model, nms Suppressor) *Session {
	return &Session{Model: m, NMS: nms}
}

// Ready reports whether both graphs are set.
func (s *Session) Ready() bool {
	return s != nil && s.Model != nil && s.NMS != nil
}

// Invoke runs the detector and the NMS step, returning surviving rows in confidence order.
func (s *Session) Invoke(ctx context.Context, input preprocess.Input, th config.Thresholds) ([]Row, error) {
	if !s.Ready() {
		return nil, ErrModelNotReady
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := s.Model.Run(input)
	if err != nil {
		return nil, fmt.Errorf("run detector: %w", err)
	}

	// the caller may have stopped while the detector ran
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.NMS.Select(raw, th)
	if err != nil {
		return nil, fmt.Errorf("run nms: %w", err)
	}
	return rows, nil
}

// Close releases both graphs.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.Model != nil {
		errs = append(errs, s.Model.Close())
	}
	if s.NMS != nil {
		errs = append(errs, s.NMS.Close())
	}
	if s.release != nil {
		s.release()
		s.release = nil
	}
	return errors.Join(errs...)
}
