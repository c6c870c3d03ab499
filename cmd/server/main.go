package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/AntonTsoy/session-service/internal/auth"
	"github.com/AntonTsoy/session-service/internal/db"
	"github.com/AntonTsoy/session-service/internal/email"
	"github.com/AntonTsoy/session-service/internal/logging"
	"github.com/AntonTsoy/session-service/internal/metrics"
	"github.com/AntonTsoy/session-service/internal/session"
	"github.com/AntonTsoy/session-service/internal/token"
	"github.com/AntonTsoy/session-service/internal/user"
	"github.com/AntonTsoy/session-service/pkg/config"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel, cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("server stopped")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	conn, err := db.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer conn.Close()

	registry, closeRegistry, err := newRegistry(ctx, cfg, conn)
	if err != nil {
		return err
	}
	defer closeRegistry.Close()

	codec, err := token.NewCodec(token.Config{
		AccessSecret:  []byte(cfg.AccessTokenSecret),
		RefreshSecret: []byte(cfg.RefreshTokenSecret),
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	})
	if err != nil {
		return err
	}

	m := metrics.New()
	controller := session.NewController(
		user.NewPostgresStore(conn),
		user.BcryptVerifier{},
		codec,
		registry,
		session.WithLogger(log),
		session.WithNotifier(email.NewLogNotifier(log)),
		session.WithMetrics(m),
		session.WithStorageTimeout(cfg.StorageTimeout),
	)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), logging.GinLogger(log))
	router.GET("/healthz", func(c *gin.Context) {
		if err := conn.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	authHandler := auth.NewAuthHandler(controller, !cfg.IsDevelopment(), log)
	authHandler.Routes(router, auth.NewGuard(codec, m))

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.ListenAddr).Str("registry", cfg.RegistryBackend).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return session.RunSweeper(gctx, registry, cfg.SweepInterval, log, m)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info().Msg("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newRegistry(ctx context.Context, cfg *config.Config, conn *sql.DB) (session.Registry, io.Closer, error) {
	switch cfg.RegistryBackend {
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		return session.NewRedisRegistry(rdb, ""), rdb, nil
	case config.BackendMemory:
		return session.NewMemoryRegistry(), nopCloser{}, nil
	default:
		return session.NewPostgresRegistry(conn), nopCloser{}, nil
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
