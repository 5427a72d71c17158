package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/banshee-data/cabinet.report/internal/api"
	"github.com/banshee-data/cabinet.report/internal/camera"
	"github.com/banshee-data/cabinet.report/internal/config"
	"github.com/banshee-data/cabinet.report/internal/db"
	"github.com/banshee-data/cabinet.report/internal/monitoring"
	"github.com/banshee-data/cabinet.report/internal/version"
)

var (
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	frameListen = flag.String("frame-listen", ":5005", "TCP listen address for camera frame streams")
	dbFile      = flag.String("db", "cabinet.db", "SQLite database path")
	configPath  = flag.String("config", "", "Tuning config JSON (optional; defaults apply)")
	modelPath   = flag.String("model", "", "ONNX detection model path")
	ortLibPath  = flag.String("onnxruntime", "", "onnxruntime shared library path")
	labelList   = flag.String("labels", "", "Comma-separated class labels in model output order")
	inferURL    = flag.String("infer-url", "", "HTTP inference endpoint (alternative to -model)")
	verbose     = flag.Bool("verbose", false, "Enable per-frame debug logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("cabinet.report %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}
	log.Printf("cabinet.report %s starting", version.Version)

	// .env is optional; flags and real environment win.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to load .env: %v", err)
	}
	monitoring.Verbose = *verbose

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}

	detector, cleanup, err := buildDetector()
	if err != nil {
		log.Fatalf("failed to build detector: %v", err)
	}
	defer cleanup()

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.MigrateUp(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := api.NewEventHub()
	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
		log.Print("event hub terminated")
	}()

	emitter := camera.NewEmitter(database, tuning.EmitterConfig(), nil)
	emitter.Notify = hub.Publish
	emitter.Start(ctx)
	defer emitter.Close()

	frameServer := camera.NewFrameServer(*frameListen, tuning.SessionConfig(), detector, database, emitter, nil)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := frameServer.Serve(ctx); err != nil {
			log.Printf("frame server error: %v", err)
		}
		log.Print("frame server terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// admin debugging routes (live SQL console, backups)
		database.AttachAdminRoutes(mux)

		apiServer := api.NewServer(database, frameServer, hub)
		apiMux := apiServer.ServeMux()
		mux.Handle("/api/", apiMux)
		mux.Handle("/ws/", apiMux)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// buildDetector picks the inference backend from flags, preferring the
// local ONNX model when both are given.
func buildDetector() (camera.Detector, func(), error) {
	switch {
	case *modelPath != "":
		labels := splitLabels(*labelList)
		if env := os.Getenv("CABINET_LABELS"); len(labels) == 0 && env != "" {
			labels = splitLabels(env)
		}
		detector, err := camera.NewONNXDetector(camera.ONNXDetectorConfig{
			ModelPath:   *modelPath,
			LibraryPath: *ortLibPath,
			Labels:      labels,
		})
		if err != nil {
			return nil, nil, err
		}
		return detector, detector.Close, nil
	case *inferURL != "":
		return camera.NewHTTPDetector(nil, *inferURL), func() {}, nil
	default:
		log.Print("no detector configured; frames will be ingested without detection")
		return camera.DetectorFunc(func(context.Context, *camera.Frame) ([]camera.Observation, error) {
			return nil, nil
		}), func() {}, nil
	}
}

func splitLabels(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	labels := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			labels = append(labels, trimmed)
		}
	}
	return labels
}
