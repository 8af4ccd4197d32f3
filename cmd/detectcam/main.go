// Package main is the detectcam binary: webcam object detection served over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/ayusman/detectcam/internal/app"
	"github.com/ayusman/detectcam/internal/config"
	"github.com/ayusman/detectcam/internal/detector"
	"github.com/ayusman/detectcam/internal/labels"
	"github.com/ayusman/detectcam/internal/logging"
	"github.com/ayusman/detectcam/internal/server"
	"github.com/ayusman/detectcam/internal/server/api"
	"github.com/ayusman/detectcam/internal/store"
	"github.com/ayusman/detectcam/internal/tray"
)

const (
	flagConfig     = "config"
	flagAddr       = "addr"
	flagCamera     = "camera"
	flagDetector   = "detector"
	flagNMS        = "nms"
	flagNMSMode    = "nms-mode"
	flagRuntime    = "onnxruntime"
	flagInterval   = "interval"
	flagMotion     = "motion-threshold"
	flagWebDir     = "web-dir"
	flagDB         = "db"
	flagNoHistory  = "no-history"
	flagTray       = "tray"
	flagLogLevel   = "log-level"
	flagAutoStart  = "start"
	flagTopK       = "top-k"
	flagIoU        = "iou"
	flagScore      = "score"
	defaultCfgPath = "detectcam.yaml"
)

func main() {
	cliApp := &cli.App{
		Name:  "detectcam",
		Usage: "detect objects in a webcam feed with YOLOv8 and serve the annotated stream",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Value:   defaultCfgPath,
				Usage:   "path to the YAML config file",
			},
			&cli.StringFlag{Name: flagAddr, Usage: "HTTP listen address"},
			&cli.IntFlag{Name: flagCamera, Usage: "camera device id"},
			&cli.StringFlag{Name: flagDetector, Usage: "path to the detector graph"},
			&cli.StringFlag{Name: flagNMS, Usage: "path to the NMS graph"},
			&cli.StringFlag{Name: flagNMSMode, Usage: "post-processing: graph or opencv"},
			&cli.StringFlag{Name: flagRuntime, Usage: "path to the onnxruntime shared library"},
			&cli.DurationFlag{Name: flagInterval, Usage: "time between capture ticks"},
			&cli.Float64Flag{Name: flagMotion, Usage: "percent of changed pixels that triggers inference, 0 disables"},
			&cli.IntFlag{Name: flagTopK, Usage: "maximum detections per frame"},
			&cli.Float64Flag{Name: flagIoU, Usage: "NMS overlap threshold"},
			&cli.Float64Flag{Name: flagScore, Usage: "minimum detection score"},
			&cli.StringFlag{Name: flagWebDir, Usage: "directory with the web UI"},
			&cli.StringFlag{Name: flagDB, Usage: "path to the history database"},
			&cli.BoolFlag{Name: flagNoHistory, Usage: "do not record sessions and detections"},
			&cli.BoolFlag{Name: flagTray, Usage: "show a system tray menu"},
			&cli.BoolFlag{Name: flagAutoStart, Usage: "start capturing as soon as the models are loaded"},
			&cli.StringFlag{Name: flagLogLevel, Usage: "debug, info, warn or error"},
		},
		Action: run,
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies the flags that were set explicitly.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String(flagConfig))
	if err != nil {
		return cfg, err
	}

	if c.IsSet(flagAddr) {
		cfg.Addr = c.String(flagAddr)
	}
	if c.IsSet(flagCamera) {
		cfg.Camera.DeviceID = c.Int(flagCamera)
	}
	if c.IsSet(flagDetector) {
		cfg.Model.DetectorPath = c.String(flagDetector)
	}
	if c.IsSet(flagNMS) {
		cfg.Model.NMSPath = c.String(flagNMS)
	}
	if c.IsSet(flagNMSMode) {
		cfg.Model.NMSMode = c.String(flagNMSMode)
	}
	if c.IsSet(flagRuntime) {
		cfg.Model.RuntimeLibrary = c.String(flagRuntime)
	}
	if c.IsSet(flagInterval) {
		cfg.Interval = c.Duration(flagInterval)
	}
	if c.IsSet(flagMotion) {
		cfg.MotionThreshold = c.Float64(flagMotion)
	}
	if c.IsSet(flagTopK) {
		cfg.Thresholds.TopK = c.Int(flagTopK)
	}
	if c.IsSet(flagIoU) {
		cfg.Thresholds.IoU = c.Float64(flagIoU)
	}
	if c.IsSet(flagScore) {
		cfg.Thresholds.Score = c.Float64(flagScore)
	}
	if c.IsSet(flagWebDir) {
		cfg.WebDir = c.String(flagWebDir)
	}
	if c.IsSet(flagDB) {
		cfg.DBPath = c.String(flagDB)
	}
	if c.Bool(flagNoHistory) {
		cfg.History = false
	}
	if c.IsSet(flagTray) {
		cfg.Tray = c.Bool(flagTray)
	}
	if c.IsSet(flagLogLevel) {
		cfg.LogLevel = c.String(flagLogLevel)
	}

	return cfg, cfg.Validate()
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger, err := logging.New("detectcam", cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st *store.Store
	if cfg.History {
		st, err = store.New(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer st.Close()
		logger.Info("history enabled", zap.String("db", st.Path()))
	}

	th, err := api.LoadThresholds(st, cfg.Thresholds)
	if err != nil {
		logger.Warn("ignoring stored thresholds", zap.Error(err))
	}
	cfg.Thresholds = th

	// A missing model leaves the server up; start requests then fail with 503.
	session, err := detector.Load(ctx, cfg.Model, logger.Named("detector"))
	if err != nil {
		logger.Error("failed to load models", zap.Error(err))
	}

	a := app.New(app.Options{
		Config:  cfg,
		Session: session,
		Labels:  labels.COCO,
		Palette: labels.Ultralytics,
		Store:   st,
		Logger:  logger.Named("app"),
	})
	defer a.Close()

	webDir := cfg.WebDir
	if webDir == "" {
		webDir = findWebDir()
	}
	if webDir != "" {
		logger.Info("serving static files", zap.String("dir", webDir))
	}

	srv := server.New(server.Config{
		StaticDir:  webDir,
		Controller: a,
		Store:      st,
		Labels:     labels.COCO,
		Palette:    labels.Ultralytics,
		Logger:     logger.Named("server"),
	})
	a.Subscribe(srv)

	if c.Bool(flagAutoStart) {
		if err := a.Start(); err != nil {
			logger.Error("failed to start capture", zap.Error(err))
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(ctx, cfg.Addr)
		cancel()
	}()

	if cfg.Tray {
		runTray(ctx, cancel, a, browserURL(cfg.Addr), logger.Named("tray"))
	} else {
		<-ctx.Done()
	}

	a.Stop()
	return <-errCh
}

// runTray blocks on the tray event loop until the user quits or ctx is done.
func runTray(ctx context.Context, cancel context.CancelFunc, a *app.App, url string, logger *zap.Logger) {
	t := tray.New()
	t.OnToggle(func() {
		if err := a.Toggle(); err != nil {
			logger.Error("toggle capture", zap.Error(err))
		}
	})
	t.OnOpen(func() {
		if err := openBrowser(url); err != nil {
			logger.Error("open browser", zap.String("url", url), zap.Error(err))
		}
	})
	t.OnQuit(cancel)

	a.Subscribe(t)
	a.OnStateChange(func(s app.State) {
		t.SetCapturing(s == app.Capturing)
	})
	t.SetCapturing(a.State() == app.Capturing)

	go func() {
		<-ctx.Done()
		t.Quit()
	}()
	t.Run()
}

// browserURL turns a listen address such as ":8080" into a local URL.
func browserURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/"
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.detectcam/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".detectcam", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
