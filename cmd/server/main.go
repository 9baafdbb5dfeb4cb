package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"ocr-relay/internal/capture"
	"ocr-relay/internal/extract"
	"ocr-relay/internal/orchestrator"
	"ocr-relay/internal/platform/config"
	"ocr-relay/internal/platform/logger"
	"ocr-relay/internal/platform/metrics"
	"ocr-relay/internal/relay"
	"ocr-relay/internal/store"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "5348")
	room := config.GetEnv("ROOM", "ocr_relay_room")
	captureDir := config.GetEnv("CAPTURE_DIR", "frames")
	captureCommand := config.GetEnv("CAPTURE_COMMAND", "screencapture -x {output}")
	captureInterval := config.GetEnvDuration("CAPTURE_INTERVAL", 4*time.Second)
	captureTimeout := config.GetEnvDuration("CAPTURE_TIMEOUT", 10*time.Second)
	retentionWindow := config.GetEnvDuration("RETENTION_WINDOW", 3*time.Minute)
	sweepInterval := config.GetEnvDuration("SWEEP_INTERVAL", 30*time.Second)
	degradedThreshold := config.GetEnvInt("DEGRADED_THRESHOLD", 3)
	ocrLanguage := config.GetEnv("OCR_LANGUAGE", "eng")
	ocrWhitelist := config.GetEnv("OCR_WHITELIST", "")
	ocrTimeout := config.GetEnvDuration("OCR_TIMEOUT", 15*time.Second)
	confidenceThreshold := config.GetEnvFloat("OCR_CONFIDENCE_THRESHOLD", 0.5)
	statusInterval := config.GetEnvDuration("STATUS_INTERVAL", 30*time.Second)
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	logFile := config.GetEnv("LOG_FILE", "")

	log := logger.New(logLevel, logFormat, logFile)

	frames, err := store.Open(captureDir)
	if err != nil {
		log.Error("open frame store", "error", err)
		os.Exit(1)
	}

	grabber, err := capture.NewCommandGrabber(captureCommand)
	if err != nil {
		log.Error("invalid capture command", "error", err)
		os.Exit(1)
	}

	met := metrics.New()
	engine := extract.NewTesseract(ocrLanguage, ocrWhitelist, confidenceThreshold)
	hub := relay.NewHub(log, met)
	orch := orchestrator.New(frames, engine, hub, ocrTimeout, log, met)
	hub.SetTriggerHandler(orch)

	// Last reported capture state, surfaced via /healthz.
	var state atomic.Value
	state.Store(capture.StateCapturing)

	loop := &capture.Loop{
		Grabber:   grabber,
		Sink:      frames,
		Interval:  captureInterval,
		Timeout:   captureTimeout,
		Threshold: degradedThreshold,
		Log:       log,
		Metrics:   met,
		Notify: func(s string) {
			state.Store(s)
			hub.EmitStatus(room, s)
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go loop.Run(ctx)
	go frames.Sweep(ctx, sweepInterval, retentionWindow, log, met.AddEvictions)
	go hub.ServerStatusLoop(ctx, room, statusInterval)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/ws", hub.ServeWS)
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":          "ok",
			"state":           state.Load(),
			"buffered_frames": frames.Len(),
			"connected_peers": hub.PeerCount(),
		})
	})
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		met.Handler(func() {
			met.SetBufferedFrames(frames.Len())
			met.SetConnectedPeers(hub.PeerCount())
		}).ServeHTTP(w, req)
	})

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("relay starting",
		"port", port,
		"room", room,
		"capture_interval", captureInterval.String(),
		"retention_window", retentionWindow.String(),
		"ocr_language", ocrLanguage,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	cancel()
	hub.Close()

	sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer scancel()

	if err := srv.Shutdown(sctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("relay stopped")
}
