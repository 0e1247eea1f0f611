package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/bounteer/restream/internal/api"
	"github.com/bounteer/restream/internal/broadcast"
	"github.com/bounteer/restream/internal/config"
	"github.com/bounteer/restream/internal/session"
	"github.com/bounteer/restream/internal/transcript"
	"github.com/bounteer/restream/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	transcriptDir := flag.String("transcripts", "", "Override transcript directory")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Fatal().Err(err).Str("path", *configPath).Msg("failed to load config")
		}
		cfg = config.Default()
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *transcriptDir != "" {
		cfg.Transcript.Dir = *transcriptDir
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store := session.NewStore()
	source := transcript.NewSource(cfg.Transcript.Dir)
	runner := broadcast.NewRunner(store, source, cfg.Broadcast.PaceInterval,
		log.With().Str("component", "broadcast").Logger())

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	api.NewServer(ctx, cfg, store, source, runner,
		log.With().Str("component", "api").Logger()).Register(e)
	ws.NewEndpoint(store, log.With().Str("component", "ws").Logger()).Register(e)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		log.Info().Str("addr", addr).Str("transcripts", cfg.Transcript.Dir).Msg("server listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}
