// Command fuseviz runs the sensor fusion pipeline: it ingests LiDAR point
// clouds, detector boxes, and camera frames, aligns them in time, projects
// the point cloud onto the image plane, and streams fused frames to renderer
// clients over WebSocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/newslab-data/fuseviz/internal/calib"
	"github.com/newslab-data/fuseviz/internal/config"
	"github.com/newslab-data/fuseviz/internal/framelog"
	"github.com/newslab-data/fuseviz/internal/fusion"
	"github.com/newslab-data/fuseviz/internal/projection"
	"github.com/newslab-data/fuseviz/internal/version"
	"github.com/newslab-data/fuseviz/internal/visualiser"
)

var (
	configPath = flag.String("config", "", "Path to the pipeline config YAML (overrides FUSEVIZ_CONFIG)")
	listenFlag = flag.String("listen", "", "HTTP listen address (overrides config)")
	synthetic  = flag.Bool("synthetic", false, "Run against generated sensor streams instead of live drivers")
	frameLog   = flag.String("frame-log", "", "Path to the SQLite fusion log (overrides config)")
)

func main() {
	flag.Parse()

	log.Printf("fuseviz %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *listenFlag != "" {
		cfg.ListenAddr = *listenFlag
	}
	if *frameLog != "" {
		cfg.FrameLogPath = *frameLog
	}
	if *synthetic {
		cfg.Synthetic = true
	}

	// The calibration is required for live runs. Synthetic mode falls back
	// to an ideal pinhole matching the generated detector geometry.
	var model *calib.Model
	switch {
	case cfg.CalibrationPath != "":
		model, err = calib.Load(cfg.CalibrationPath)
		if err != nil {
			log.Fatalf("Failed to load calibration: %v", err)
		}
		log.Printf("Loaded calibration from %s (%dx%d image)", cfg.CalibrationPath, model.ImageWidth, model.ImageHeight)
	case cfg.Synthetic:
		model = calib.Pinhole(640, 480, 500, 500, 320, 240)
		log.Print("No calibration configured; using ideal pinhole for synthetic streams")
	default:
		log.Fatal("calibration_path is required (set it in the config or run with -synthetic)")
	}

	projector := projection.New(model)

	synchronizer := fusion.NewSynchronizer(fusion.SynchronizerConfig{
		MaxSkew:             cfg.GetMaxSkew(),
		BufferCapacity:      cfg.BufferCapacity,
		PointCloudStaleness: cfg.GetPointCloudStaleness(),
		DetectionStaleness:  cfg.GetDetectionStaleness(),
		ImageStaleness:      cfg.GetImageStaleness(),
	})
	dispatcher := fusion.NewDispatcher(fusion.DispatcherConfig{
		Synchronizer:         synchronizer,
		Projector:            projector.Project,
		FailureWarnThreshold: cfg.FailureWarnThreshold,
	})

	var fl *framelog.FrameLog
	if cfg.FrameLogPath != "" {
		fl, err = framelog.Open(cfg.FrameLogPath)
		if err != nil {
			log.Fatalf("Failed to open frame log: %v", err)
		}
		defer fl.Close()
		log.Printf("Logging fused frames to %s", cfg.FrameLogPath)
	}

	publisher := visualiser.NewPublisher()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	// Dispatch loop: the single consumer of sensor triggers.
	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatcher.Run(ctx)
		log.Print("Dispatch loop terminated")
	}()

	// Frame consumer: every fused frame goes to connected renderers and,
	// when enabled, the fusion log.
	var hooks []func(*fusion.FusedFrame)
	if fl != nil {
		hooks = append(hooks, func(frame *fusion.FusedFrame) {
			if err := fl.Record(frame); err != nil {
				log.Printf("Frame log write failed: %v", err)
			}
		})
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		publisher.Serve(dispatcher.Frames(), hooks...)
	}()

	if cfg.Synthetic {
		gen := fusion.NewSyntheticGenerator()
		wg.Add(1)
		go func() {
			defer wg.Done()
			gen.Run(ctx, dispatcher)
			log.Print("Synthetic generator terminated")
		}()
		log.Print("Synthetic sensor streams enabled")
	} else {
		log.Print("Waiting for live sensor drivers (ingest API)")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", publisher.Handler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		frames, dropped, clients := publisher.Stats()
		fmt.Fprintf(w, `{"status": "ok", "service": "fuseviz", "version": "%s", "frames": %d, "dropped": %d, "clients": %d, "timestamp": "%s"}`,
			version.Version, frames, dropped, clients, time.Now().UTC().Format(time.RFC3339))
	})

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("Starting HTTP server on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Print("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	wg.Wait()
	log.Print("Shutdown complete")
}
