// Package config loads the detectcam configuration from YAML with built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// NMS modes.
const (
	// NMSGraph runs the exported post-processing graph.
	NMSGraph = "graph"
	// NMSOpenCV runs gocv.NMSBoxes over the raw detector output.
	NMSOpenCV = "opencv"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// ModelConfig describes the two exported graphs and the runtime that executes them.
type ModelConfig struct {
	DetectorPath string `yaml:"detector_path"`
	NMSPath      string `yaml:"nms_path"`
	NMSMode      string `yaml:"nms_mode"`
	// RuntimeLibrary is the path to the onnxruntime shared library. Empty uses the platform default.
	RuntimeLibrary string `yaml:"runtime_library"`
	InputWidth     int    `yaml:"input_width"`
	InputHeight    int    `yaml:"input_height"`
}

// Thresholds are the selection parameters handed to the NMS step.
type Thresholds struct {
	TopK  int     `yaml:"top_k" json:"top_k"`
	IoU   float64 `yaml:"iou" json:"iou"`
	Score float64 `yaml:"score" json:"score"`
}

// CameraConfig selects and sizes the capture device.
type CameraConfig struct {
	DeviceID int `yaml:"device_id"`
	Width    int `yaml:"width"`
	Height   int `yaml:"height"`
}

// Config holds all detectcam settings.
type Config struct {
	Model      ModelConfig   `yaml:"model"`
	Thresholds Thresholds    `yaml:"thresholds"`
	Camera     CameraConfig  `yaml:"camera"`
	Interval   time.Duration `yaml:"interval"`
	// MotionThreshold is the percentage of changed pixels that counts as motion. 0 disables the gate.
	MotionThreshold float64 `yaml:"motion_threshold"`

	Addr     string `yaml:"addr"`
	WebDir   string `yaml:"web_dir"`
	DBPath   string `yaml:"db_path"`
	History  bool   `yaml:"history"`
	Tray     bool   `yaml:"tray"`
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	dbPath := "detectcam.db"
	if home, err := os.UserHomeDir(); err == nil {
		dbPath = filepath.Join(home, ".detectcam", "detectcam.db")
	}

	return Config{
		Model: ModelConfig{
			DetectorPath: "model/yolov8n.onnx",
			NMSPath:      "model/nms-yolov8.onnx",
			NMSMode:      NMSGraph,
			InputWidth:   416,
			InputHeight:  416,
		},
		Thresholds: Thresholds{
			TopK:  100,
			IoU:   0.45,
			Score: 0.2,
		},
		Camera: CameraConfig{
			DeviceID: 0,
			Width:    640,
			Height:   480,
		},
		Interval: 100 * time.Millisecond,
		Addr:     ":8080",
		DBPath:   dbPath,
		History:  true,
		LogLevel: "info",
	}
}

// Load reads a YAML file on top of the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, cfg.Validate()
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	if c.Model.InputWidth <= 0 || c.Model.InputHeight <= 0 {
		return fmt.Errorf("%w: model input size %dx%d", ErrInvalid, c.Model.InputWidth, c.Model.InputHeight)
	}
	if c.Model.NMSMode != NMSGraph && c.Model.NMSMode != NMSOpenCV {
		return fmt.Errorf("%w: unknown nms_mode %q", ErrInvalid, c.Model.NMSMode)
	}
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("%w: camera size %dx%d", ErrInvalid, c.Camera.Width, c.Camera.Height)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %s", ErrInvalid, c.Interval)
	}
	if c.MotionThreshold < 0 {
		return fmt.Errorf("%w: motion_threshold must not be negative", ErrInvalid)
	}
	return nil
}

// Validate checks the selection parameters.
func (t Thresholds) Validate() error {
	if t.TopK < 1 {
		return fmt.Errorf("%w: top_k must be at least 1, got %d", ErrInvalid, t.TopK)
	}
	if t.IoU < 0 || t.IoU > 1 {
		return fmt.Errorf("%w: iou %.3f outside [0,1]", ErrInvalid, t.IoU)
	}
	if t.Score < 0 || t.Score > 1 {
		return fmt.Errorf("%w: score %.3f outside [0,1]", ErrInvalid, t.Score)
	}
	return nil
}
