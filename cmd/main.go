package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/Vasu1712/scenyx-realtime/internal/api/sessions"
	"github.com/Vasu1712/scenyx-realtime/internal/config"
	"github.com/Vasu1712/scenyx-realtime/internal/logging"
	"github.com/Vasu1712/scenyx-realtime/internal/middleware"
	"github.com/Vasu1712/scenyx-realtime/internal/presence"
	"github.com/Vasu1712/scenyx-realtime/internal/scene"
	"github.com/Vasu1712/scenyx-realtime/internal/session"
	"github.com/Vasu1712/scenyx-realtime/internal/storage"
	"github.com/Vasu1712/scenyx-realtime/internal/storage/memory"
	"github.com/Vasu1712/scenyx-realtime/internal/storage/postgres"
	"github.com/Vasu1712/scenyx-realtime/internal/storage/valkey"
	"github.com/Vasu1712/scenyx-realtime/internal/throttle"
	"github.com/Vasu1712/scenyx-realtime/internal/ws"
)

func openStore(ctx context.Context, cfg config.StoreConfig) (storage.SessionStore, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.NewSessionStore(ctx, cfg.PostgresDSN)
	case "valkey":
		return valkey.NewSessionStore(ctx, valkey.Options{
			Addr:      cfg.Valkey.Addr,
			Password:  cfg.Valkey.Password,
			DB:        cfg.Valkey.DB,
			KeyPrefix: cfg.Valkey.KeyPrefix,
		})
	case "memory":
		return memory.NewSessionStore(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Console output until the configured format is known.
	logging.Setup(os.Stderr, "debug", "info")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Setup(os.Stderr, cfg.Mode, cfg.LogLevel)

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open session store")
	}
	log.Info().Str("driver", cfg.Store.Driver).Msg("session store ready")

	scenes := scene.NewStore(store)
	reg := presence.NewRegistry()
	engine := throttle.NewEngine(
		throttle.WithDelay(throttle.KindTransform, cfg.Throttle.TransformDelay),
		throttle.WithDelay(throttle.KindColor, cfg.Throttle.ColorDelay),
	)

	hub := ws.NewHub()
	go hub.Run(ctx)

	handler := &sessions.SessionHandler{
		Store:    store,
		Scenes:   scenes,
		Presence: reg,
		Hub:      hub,
		Router:   session.NewRouter(hub, reg, scenes, engine, session.Options{FlushOnDisconnect: cfg.Throttle.FlushOnDisconnect}),
		BaseCtx:  ctx,
		Pump: ws.PumpOptions{
			ReadLimit:  cfg.WS.ReadLimit,
			PingPeriod: cfg.WS.PingPeriod,
		},
		SendBuffer:  cfg.WS.SendBuffer,
		FrontendURL: cfg.FrontendURL,
		Origin:      cfg.CORSOrigin,
		Started:     time.Now(),
	}

	r := mux.NewRouter()
	sessions.RegisterRoutes(r, handler)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           middleware.CORS(cfg.CORSOrigin)(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("scenyx realtime server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Pending throttled edits are dropped before the writer drains.
	engine.Stop()
	scenes.Close()
	if err := store.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close session store")
	}
	log.Info().Msg("server exited gracefully")
}
