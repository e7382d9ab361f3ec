package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"eventide/config"
	"eventide/directory"
	"eventide/middlewares"
	"eventide/routes"
	"eventide/utils"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API on PORT.

Records live in STORE_BACKEND. When REDIS_ADDR is set, responses are cached
and a per-user quota applies.

Example:
  JWT_SECRET=dev eventide serve
  STORE_BACKEND=postgres PG_DSN=postgres://... eventide serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rootOpts.cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, rootOpts.cfg, rootOpts.logger)
		},
	}
}

// app is a fully wired server and what to release after it stops.
type app struct {
	handler http.Handler
	cleanup []func()
}

func (a *app) close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.cleanup = append(a.cleanup, st.close)

	users := directory.NewUsers(st.users)
	events := directory.NewEvents(st.events, users,
		directory.WithStrictRSVP(cfg.StrictRSVP),
		directory.WithEventsLogger(logger),
	)

	if _, err := seedUsers(ctx, users, cfg, false); err != nil {
		return nil, fmt.Errorf("failed to seed users: %w", err)
	}

	verifier, err := newVerifier(cfg)
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		rdb, err = openRedis(pingCtx, cfg.RedisAddr)
		cancel()
		if err != nil {
			return nil, err
		}
		a.cleanup = append(a.cleanup, func() { _ = rdb.Close() })
	}

	if strings.EqualFold(cfg.LogLevel, "debug") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	server := gin.New()
	server.Use(gin.Recovery(), middlewares.RequestLogger(logger))

	stopLimiters := routes.RegisterRoutes(server, routes.Options{
		Users:       users,
		Events:      events,
		Verifier:    verifier,
		Logger:      logger,
		Redis:       rdb,
		CacheTTL:    cfg.CacheTTL,
		QuotaLimit:  cfg.QuotaLimit,
		QuotaWindow: cfg.QuotaWindow,
		IPLimit: middlewares.LimiterConfig{
			RPS:     cfg.RateRPS,
			Burst:   cfg.RateBurst,
			IdleTTL: 3 * time.Minute,
		},
		SubjectLimit: middlewares.LimiterConfig{
			RPS:     cfg.RateRPS / 4,
			Burst:   max(cfg.RateBurst/4, 1),
			IdleTTL: 10 * time.Minute,
		},
	})
	a.cleanup = append(a.cleanup, stopLimiters)

	a.handler = server
	ok = true
	return a, nil
}

func newVerifier(cfg *config.Config) (*utils.Verifier, error) {
	vc := utils.VerifierConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	}
	if cfg.JWTPublicKeyFile != "" {
		pem, err := os.ReadFile(cfg.JWTPublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read JWT public key: %w", err)
		}
		vc.PublicKeyPEM = pem
	}
	return utils.NewVerifier(vc)
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
