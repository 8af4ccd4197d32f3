package detector

import (
	"context"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/detectcam/internal/config"
	"github.com/ayusman/detectcam/internal/preprocess"
)

// Tensor names baked into the exported graphs.
const (
	detectorInput  = "images"
	detectorOutput = "output0"
	nmsInput       = "detection"
	nmsConfig      = "config"
	nmsOutput      = "selected"
)

var (
	envMu    sync.Mutex
	envUsers int
)

// acquireEnvironment initializes the shared onnxruntime environment on first use.
func acquireEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if envUsers == 0 && !ort.IsInitialized() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}
	envUsers++
	return nil
}

// releaseEnvironment tears the environment down once the last session is closed.
func releaseEnvironment() {
	envMu.Lock()
	defer envMu.Unlock()

	if envUsers == 0 {
		return
	}
	envUsers--
	if envUsers == 0 && ort.IsInitialized() {
		ort.DestroyEnvironment()
	}
}

func newSession(path string, inputs, outputs []string) (*ort.DynamicAdvancedSession, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("model file %s: %w", path, err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer opts.Destroy()

	if err := opts.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		return nil, fmt.Errorf("set optimization level: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(path, inputs, outputs, opts)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return session, nil
}

// runFloat runs session with the given inputs and returns its single float32 output.
func runFloat(session *ort.DynamicAdvancedSession, inputs ...ort.Value) (Tensor, error) {
	outputs := []ort.Value{nil}
	if err := session.Run(inputs, outputs); err != nil {
		return Tensor{}, err
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return Tensor{}, fmt.Errorf("unexpected output type %T", outputs[0])
	}

	data := out.GetData()
	t := Tensor{
		Shape: append([]int64(nil), out.GetShape()...),
		Data:  make([]float32, len(data)),
	}
	copy(t.Data, data)
	return t, nil
}

// OnnxModel runs the detector graph through onnxruntime.
type OnnxModel struct {
	session *ort.DynamicAdvancedSession
	mu      sync.Mutex
}

// NewOnnxModel loads the detector graph from path. The environment must already be acquired.
func NewOnnxModel(path string) (*OnnxModel, error) {
	session, err := newSession(path, []string{detectorInput}, []string{detectorOutput})
	if err != nil {
		return nil, err
	}
	return &OnnxModel{session: session}, nil
}

// Run executes the detector on input.
func (m *OnnxModel) Run(input preprocess.Input) (Tensor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return Tensor{}, ErrModelNotReady
	}

	images, err := ort.NewTensor(ort.NewShape(input.Shape()...), input.Data)
	if err != nil {
		return Tensor{}, fmt.Errorf("input tensor: %w", err)
	}
	defer images.Destroy()

	return runFloat(m.session, images)
}

// Close destroys the session.
func (m *OnnxModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	return err
}

// GraphSuppressor runs the exported NMS graph. Its config input is [topk, iou, score].
type GraphSuppressor struct {
	session *ort.DynamicAdvancedSession
	mu      sync.Mutex
}

// NewGraphSuppressor loads the NMS graph from path. The environment must already be acquired.
func NewGraphSuppressor(path string) (*GraphSuppressor, error) {
	session, err := newSession(path, []string{nmsInput, nmsConfig}, []string{nmsOutput})
	if err != nil {
		return nil, err
	}
	return &GraphSuppressor{session: session}, nil
}

// Select runs the graph and splits its [1, K, 4+classes] output into rows.
func (g *GraphSuppressor) Select(raw Tensor, th config.Thresholds) ([]Row, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.session == nil {
		return nil, ErrModelNotReady
	}

	detection, err := ort.NewTensor(ort.NewShape(raw.Shape...), raw.Data)
	if err != nil {
		return nil, fmt.Errorf("detection tensor: %w", err)
	}
	defer detection.Destroy()

	cfg, err := ort.NewTensor(ort.NewShape(3), []float32{float32(th.TopK), float32(th.IoU), float32(th.Score)})
	if err != nil {
		return nil, fmt.Errorf("config tensor: %w", err)
	}
	defer cfg.Destroy()

	selected, err := runFloat(g.session, detection, cfg)
	if err != nil {
		return nil, err
	}
	return SplitRows(selected)
}

// Close destroys the session.
func (g *GraphSuppressor) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.session == nil {
		return nil
	}
	err := g.session.Destroy()
	g.session = nil
	return err
}

// SplitRows slices a [1, K, 4+classes] tensor into K rows.
func SplitRows(t Tensor) ([]Row, error) {
	if len(t.Shape) != 3 {
		return nil, fmt.Errorf("selected tensor has shape %v, want 3 dims", t.Shape)
	}
	count, width := int(t.Shape[1]), int(t.Shape[2])
	if width < 5 {
		return nil, fmt.Errorf("selected rows have %d values, want at least 5", width)
	}
	if len(t.Data) < count*width {
		return nil, fmt.Errorf("selected tensor holds %d values, shape %v needs %d", len(t.Data), t.Shape, count*width)
	}

	rows := make([]Row, 0, count)
	for i := 0; i < count; i++ {
		data := t.Data[i*width : (i+1)*width]
		row := Row{Scores: make([]float32, width-4)}
		copy(row.Box[:], data[:4])
		copy(row.Scores, data[4:])
		rows = append(rows, row)
	}
	return rows, nil
}

// Load initializes onnxruntime, loads both graphs in parallel and warms the detector
// up with a zero tensor. The returned session owns the environment reference.
func Load(ctx context.Context, cfg config.ModelConfig, logger *zap.Logger) (*Session, error) {
	if err := acquireEnvironment(cfg.RuntimeLibrary); err != nil {
		return nil, err
	}

	var (
		model *OnnxModel
		nms   Suppressor
	)

	var g errgroup.Group
	g.Go(func() error {
		m, err := NewOnnxModel(cfg.DetectorPath)
		model = m
		return err
	})
	g.Go(func() error {
		if cfg.NMSMode == config.NMSOpenCV {
			nms = NewBoxSuppressor()
			return nil
		}
		s, err := NewGraphSuppressor(cfg.NMSPath)
		if s != nil {
			nms = s
		}
		return err
	})

	if err := g.Wait(); err != nil {
		if model != nil {
			model.Close()
		}
		if nms != nil {
			nms.Close()
		}
		releaseEnvironment()
		return nil, err
	}

	session := &Session{Model: model, NMS: nms, release: releaseEnvironment}
	if err := ctx.Err(); err != nil {
		session.Close()
		return nil, err
	}
	if err := Warmup(session.Model, cfg.InputWidth, cfg.InputHeight); err != nil {
		session.Close()
		return nil, fmt.Errorf("warmup: %w", err)
	}

	logger.Info("models loaded",
		zap.String("detector", cfg.DetectorPath),
		zap.String("nms_mode", cfg.NMSMode),
		zap.Int("input_width", cfg.InputWidth),
		zap.Int("input_height", cfg.InputHeight),
	)
	return session, nil
}

// Warmup runs m once on an all-zero input so lazy initialization happens before the first frame.
func Warmup(m Model, width, height int) error {
	if m == nil {
		return ErrModelNotReady
	}
	_, err := m.Run(preprocess.Input{
		Data:   make([]float32, 3*width*height),
		Width:  width,
		Height: height,
	})
	return err
}
