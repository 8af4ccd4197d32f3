package server

import (
	"fmt"
	"image"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/detectcam/internal/app"
)

// StreamHandler serves the annotated frames as MJPEG. Frames are encoded once
// per tick, on demand, and shared between viewers.
type StreamHandler struct {
	mu      sync.Mutex
	frame   *image.RGBA
	seq     uint64
	jpeg    []byte
	jpegSeq uint64
	changed chan struct{}
	done    chan struct{}
	closed  bool
	logger  *zap.Logger
}

// NewStreamHandler creates a StreamHandler with no frame yet.
func NewStreamHandler(logger *zap.Logger) *StreamHandler {
	return &StreamHandler{
		changed: make(chan struct{}),
		done:    make(chan struct{}),
		logger:  logger,
	}
}

// Publish stores the annotated frame and wakes viewers.
func (h *StreamHandler) Publish(r app.Result) {
	if r.Frame == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.frame = r.Frame
	h.seq++
	close(h.changed)
	h.changed = make(chan struct{})
}

// Close ends every open stream.
func (h *StreamHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		close(h.done)
	}
}

// latest returns the JPEG for the newest frame, its sequence number and a channel
// closed when a newer frame arrives.
func (h *StreamHandler) latest() ([]byte, uint64, <-chan struct{}, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.frame == nil {
		return nil, 0, h.changed, nil
	}
	if h.jpegSeq != h.seq {
		buf, err := EncodeJPEG(h.frame)
		if err != nil {
			return nil, h.seq, h.changed, err
		}
		h.jpeg = buf
		h.jpegSeq = h.seq
	}
	return h.jpeg, h.seq, h.changed, nil
}

// ServeHTTP streams MJPEG frames to connected clients.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	var sent uint64
	for {
		buf, seq, changed, err := h.latest()
		if err != nil {
			h.logger.Warn("failed to encode frame", zap.Error(err))
		}

		if buf != nil && seq != sent {
			fmt.Fprintf(w, "--frame\r\n")
			fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
			fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(buf))
			if _, err := w.Write(buf); err != nil {
				return
			}
			fmt.Fprintf(w, "\r\n")
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
			sent = seq
		}

		select {
		case <-r.Context().Done():
			return
		case <-h.done:
			return
		case <-changed:
		}
	}
}

// EncodeJPEG encodes img with OpenCV.
func EncodeJPEG(img image.Image) ([]byte, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
