package capture

import (
	"errors"
	"testing"

	"github.com/ayusman/detectcam/internal/config"
)

func TestNewCamera(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.CameraConfig
	}{
		{name: "default device", cfg: config.CameraConfig{DeviceID: 0, Width: 640, Height: 480}},
		{name: "device 1", cfg: config.CameraConfig{DeviceID: 1, Width: 1280, Height: 720}},
		{name: "device default size", cfg: config.CameraConfig{DeviceID: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := NewCamera(tt.cfg)
			if cam == nil {
				t.Fatal("NewCamera returned nil")
			}
			if cam.IsOpen() {
				t.Error("camera should not be open initially")
			}
		})
	}
}

func TestCamera_ReadFrameNotOpen(t *testing.T) {
	cam := NewCamera(config.CameraConfig{})

	frame, err := cam.ReadFrame()
	if !errors.Is(err, ErrCameraNotOpen) {
		t.Errorf("ReadFrame() error = %v, want ErrCameraNotOpen", err)
	}
	if frame != nil {
		t.Error("ReadFrame() should return nil frame when camera is not open")
	}
}

func TestCamera_CloseNotOpen(t *testing.T) {
	cam := NewCamera(config.CameraConfig{})

	if err := cam.Close(); err != nil {
		t.Errorf("Close() on unopened camera error = %v", err)
	}
	if err := cam.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestCamera_OpenMissingDevice(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that probes video devices")
	}

	cam := NewCamera(config.CameraConfig{DeviceID: 99})
	err := cam.Open()
	if err == nil {
		cam.Close()
		t.Skip("device 99 exists on this machine")
	}
	if !errors.Is(err, ErrCameraAccessDenied) {
		t.Errorf("Open() error = %v, want ErrCameraAccessDenied", err)
	}
	if cam.IsOpen() {
		t.Error("camera should not be open after a failed Open")
	}
}
