package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/camden-git/imageindex/config"
	"github.com/camden-git/imageindex/database"
	"github.com/camden-git/imageindex/handlers"
	"github.com/camden-git/imageindex/logger"
	"github.com/camden-git/imageindex/media"
	"github.com/camden-git/imageindex/realtime"
	"github.com/camden-git/imageindex/repository"
	"github.com/camden-git/imageindex/services"
	"github.com/camden-git/imageindex/workers"
)

const shutdownTimeout = 15 * time.Second

func main() {
	envErr := godotenv.Load()

	cfg, err := config.LoadConfig()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Environment})
	if err != nil {
		log.Fatal().Err(err).Msg("main: failed to load configuration")
	}
	if envErr != nil {
		log.Debug().Err(envErr).Msg("main: no .env file loaded")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		log.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("main: failed to create database directory")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := database.Open(ctx, cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("main: failed to open database")
	}
	defer store.Close()

	gdb, err := database.OpenGorm(store.DB())
	if err != nil {
		log.Fatal().Err(err).Msg("main: failed to initialize GORM")
	}

	albumRepo := repository.NewAlbumRepository(gdb)
	directoryRepo := repository.NewDirectoryRepository(gdb)

	albumService := services.NewAlbumService(albumRepo, store)
	directoryService := services.NewDirectoryService(directoryRepo)
	directoryTree := services.NewDirectoryTree(store)

	hub := realtime.NewHub(cfg.AllowedOrigins)
	go hub.Run()
	defer hub.Stop()

	scanner := workers.NewScanner(workers.ScannerDeps{
		Store:       store,
		Directories: directoryService,
		Detector:    workers.NewChangeDetector(store),
		Thumbnails:  media.NewGenerator(cfg.MaxImagePixels),
		Metadata:    media.InfoReader{},
		Events:      hub,
	}, workers.NewScannerConfig(cfg))
	scanner.Start()
	defer scanner.Stop()

	router := handlers.NewRouter(handlers.RouterConfig{
		Images: &handlers.ImageHandler{Store: store},
		Albums: &handlers.AlbumHandler{Service: albumService},
		Directories: &handlers.DirectoryHandler{
			Service:      directoryService,
			Tree:         directoryTree,
			DefaultDepth: cfg.TreeMaxDepth,
		},
		Scan:           &handlers.ScanHandler{Scanner: scanner},
		Events:         hub.ServeWS,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		// no WriteTimeout: forced scans and the event stream run long
	}

	go func() {
		log.Info().Str("addr", server.Addr).Str("database", cfg.DatabasePath).Msg("main: server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("main: server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("main: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("main: server shutdown failed")
	}
}
