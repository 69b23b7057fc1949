package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"dartcam/internal/auth"
	"dartcam/internal/board"
	"dartcam/internal/config"
	"dartcam/internal/database"
	"dartcam/internal/detection"
	"dartcam/internal/engine"
	"dartcam/internal/logger"
	"dartcam/internal/pipeline"
	"dartcam/internal/pipeline/detectors"
	"dartcam/internal/services"
	"dartcam/internal/stream"
	"dartcam/internal/ws"
)

func main() {
	var (
		autostartF = flag.Bool("autostart", false, "Start the camera on launch")
		dbgF       = flag.Bool("debug", false, "Log request and response bodies")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal(logger.Fields{"error": err.Error()}, "[Main] configuration")
	}

	db, err := database.New(cfg.DBPath)
	if err != nil {
		logger.Fatal(logger.Fields{"path": cfg.DBPath, "error": err.Error()}, "[Main] failed to open database")
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		logger.Fatal(logger.Fields{"error": err.Error()}, "[Main] failed to migrate database")
	}

	// Persisted settings win over the environment defaults.
	settings := services.LoadSettings(db, engine.Settings{
		LensStrength:   cfg.LensStrength,
		FallbackRadius: cfg.BoardRadius,
		SampleInterval: cfg.SampleInterval,
		RecalInterval:  cfg.RecalInterval,
		BlendFactor:    cfg.BlendFactor,
		Game:           pipeline.Game(cfg.Game),
	})

	var initial *board.Calibration
	if rec, err := db.LatestCalibration(); err != nil {
		logger.Warn(logger.Fields{"error": err.Error()}, "[Main] failed to load last calibration")
	} else if rec != nil {
		initial = &rec.Calibration
		logger.Info(logger.Fields{"id": rec.ID, "created_at": rec.CreatedAt}, "[Main] restored last calibration")
	}

	hints := detectors.NewRegistry()
	defer hints.Close()
	if err := registerHintProvider(hints, cfg); err != nil {
		logger.Fatal(logger.Fields{"provider": cfg.HintProvider, "error": err.Error()}, "[Main] failed to create hint provider")
	}

	source := pipeline.NewCameraSource(pipeline.CameraSourceConfig{Device: cfg.Device})
	eng, err := engine.New(engine.Options{
		Source:        source,
		Hints:         hints,
		Recalibration: pipeline.RecalibrationMode(cfg.RecalMode),
		Settings:      settings,
		WorkWidth:     cfg.WorkWidth,
		Initial:       initial,
	})
	if err != nil {
		logger.Fatal(logger.Fields{"error": err.Error()}, "[Main] failed to create engine")
	}

	authenticator, err := auth.NewAuthenticator(auth.Options{
		Enabled:   cfg.AuthEnabled,
		Username:  cfg.AuthUsername,
		Password:  cfg.AuthPassword,
		JWTSecret: cfg.JWTSecret,
		JWTExpiry: cfg.JWTExpiry,
	})
	if err != nil {
		logger.Fatal(logger.Fields{"error": err.Error()}, "[Main] failed to configure auth")
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	bus := eng.Bus()
	recorder := database.NewRecorder(db, bus)
	go recorder.Run(ctx)

	hub := ws.NewHub()
	detach := hub.Attach(bus)

	preview := stream.NewPreview(eng)
	unsubPreview := bus.Subscribe(preview)

	if cfg.HitRetention > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pruneHits(ctx, db, cfg.HitRetention)
		}()
	}

	srv := &services.Server{
		Health:  services.NewHealthService(db),
		Auth:    services.NewAuthService(authenticator),
		Camera:  services.NewCameraService(ctx, eng),
		Config:  services.NewConfigService(eng, db),
		History: services.NewHistoryService(db),
		Preview: preview,
		WS:      ws.NewHandler(hub),
	}

	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	u := &url.URL{Scheme: "http", Host: cfg.HTTPAddr}
	handleHTTPServer(ctx, u, srv, authenticator, &wg, errc, *dbgF)

	if *autostartF {
		if err := eng.Start(ctx); err != nil {
			logger.Error(logger.Fields{"device": cfg.Device, "error": err.Error()}, "[Main] autostart failed")
		}
	}

	logger.Info(logger.Fields{"reason": (<-errc).Error()}, "[Main] exiting")

	cancel()
	eng.Stop()
	unsubPreview()
	detach()
	hub.Close()
	bus.Close()
	<-recorder.Done()

	wg.Wait()
	logger.Info(nil, "[Main] exited")
}

func registerHintProvider(reg *detectors.Registry, cfg *config.Config) error {
	var p detection.Provider
	switch cfg.HintProvider {
	case "http":
		p = detection.NewHTTPProvider(cfg.HintHTTPEndpoint, float32(cfg.HintConfidence))
	case "grpc":
		gp, err := detection.NewGRPCProvider(detection.GRPCProviderConfig{
			Endpoint:      cfg.HintGRPCEndpoint,
			ConfThreshold: float32(cfg.HintConfidence),
		})
		if err != nil {
			return err
		}
		p = gp
	default:
		return nil
	}
	return reg.Register(p)
}

// pruneHits deletes hits older than retention once an hour.
func pruneHits(ctx context.Context, db *database.Database, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		n, err := db.DeleteHitsBefore(time.Now().Add(-retention))
		if err != nil {
			logger.Warn(logger.Fields{"error": err.Error()}, "[Main] hit pruning failed")
		} else if n > 0 {
			logger.Info(logger.Fields{"deleted": n}, "[Main] pruned old hits")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
