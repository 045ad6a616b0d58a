// draftwire keeps a live auction draft in sync: it holds one persistent
// line-protocol connection to the auction server and relays the draft
// state to browser clients over an incremental polling and websocket
// gateway.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/draftwire/draftwire/internal/config"
	"github.com/draftwire/draftwire/internal/dispatch"
	"github.com/draftwire/draftwire/internal/events"
	"github.com/draftwire/draftwire/internal/gateway"
	"github.com/draftwire/draftwire/internal/link"
	"github.com/draftwire/draftwire/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("draftwire exited with error")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	bus := events.NewBus(256)
	publishers := events.Fanout{bus}

	if cfg.NATS.Enabled {
		np, err := events.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			return err
		}
		defer np.Close()
		publishers = append(publishers, np)
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS fan-out enabled")
	}

	st := store.New(store.WithPublisher(publishers))

	// Session bootstrap: (re)create the configured draft and purge any
	// state left over from a previous session.
	quota, err := cfg.Quota()
	if err != nil {
		return err
	}
	if _, err := st.UpsertDraft(cfg.Draft.ID, cfg.Draft.MaxManagers, quota); err != nil {
		return err
	}
	if err := st.Reset(cfg.Draft.ID); err != nil {
		return err
	}
	log.Info().
		Str("draft_id", cfg.Draft.ID).
		Int("max_managers", cfg.Draft.MaxManagers).
		Msg("draft session initialized")

	dispatcher := dispatch.New(st)
	lk, err := link.Dial(ctx, cfg.Server.Addr, st, dispatcher, link.DefaultConfig())
	if err != nil {
		return err
	}
	lk.Start(ctx)
	log.Info().Str("server", cfg.Server.Addr).Msg("connected to auction server")

	broadcaster := gateway.NewBroadcaster(gateway.DefaultBroadcastConfig())
	go broadcaster.Run(ctx, bus)

	gw := gateway.New(st, lk, broadcaster)
	server := gateway.NewServer(cfg.HTTP.Addr, gw)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("gateway listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case <-lk.Done():
		log.Warn().Msg("auction server connection closed")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("gateway shutdown failed")
	}
	return lk.Close()
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
