package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/seabattle/internal/config"
	"github.com/robalobadob/seabattle/internal/history"
	"github.com/robalobadob/seabattle/internal/httpserver"
	"github.com/robalobadob/seabattle/internal/hub"
	"github.com/robalobadob/seabattle/internal/session"
	"github.com/robalobadob/seabattle/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(nil)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	setupLogging(cfg)

	db, err := openDB(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	st, err := openStore(cfg, db)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("open game store")
	}

	mgr := session.NewManager(st,
		session.WithLogger(log.With().Str("component", "session").Logger()),
		session.WithHistory(history.NewStore(db)),
		session.WithTTL(cfg.SessionTTL),
		session.WithGCInterval(cfg.GCInterval),
	)
	h := hub.New(mgr, hub.Config{
		ClientOrigin:    cfg.ClientOrigin,
		Heartbeat:       cfg.HeartbeatInterval,
		MaxMessageBytes: cfg.MaxMessageBytes,
		MaxKeyLen:       cfg.MaxKeyLen,
		MsgRate:         cfg.MsgRate,
		MsgBurst:        cfg.MsgBurst,
	}, log.With().Str("component", "hub").Logger())

	srv := httpserver.New(httpserver.Options{
		Sessions:     mgr,
		Sockets:      h,
		Results:      history.NewStore(db),
		StaticDir:    cfg.StaticDir,
		ClientOrigin: cfg.ClientOrigin,
		AdminSecret:  cfg.AdminJWTSecret,
	})
	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Str("store", cfg.StoreBackend).Msg("starting seabattle server")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server exited")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	h.Stop()
	mgr.Stop()
	if err := st.Close(); err != nil {
		log.Error().Err(err).Msg("close store")
	}
	if err := db.Close(); err != nil {
		log.Error().Err(err).Msg("close database")
	}
}

func setupLogging(cfg *config.Config) {
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// openStore builds the configured game record backend.
func openStore(cfg *config.Config, db *sql.DB) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendFile:
		return store.NewFileStore(cfg.GamesDir)
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return store.NewRedisStore(ctx, client, cfg.RedisPrefix)
	case config.BackendMemory:
		return store.NewMemoryStore(), nil
	default:
		return store.NewSQLiteStore(db), nil
	}
}
