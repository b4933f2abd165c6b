package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nkiryanov/eazynet/internal/cache"
	"github.com/nkiryanov/eazynet/internal/db"
	"github.com/nkiryanov/eazynet/internal/handlers"
	"github.com/nkiryanov/eazynet/internal/logger"
	"github.com/nkiryanov/eazynet/internal/repository"
	"github.com/nkiryanov/eazynet/internal/repository/memory"
	"github.com/nkiryanov/eazynet/internal/repository/postgres"
	"github.com/nkiryanov/eazynet/internal/service/oauth"
	"github.com/nkiryanov/eazynet/internal/service/session"
)

const (
	shutdownTimeout = 5 * time.Second

	// How often expired OAuth sessions are removed
	sweepInterval = 10 * time.Minute
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	sessions repository.OAuthSessionRepo
	logger   logger.Logger
	closers  []func()
}

func NewServerApp(ctx context.Context, c *Config) (_ *ServerApp, err error) {
	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	app := &ServerApp{ListenAddr: c.ListenAddr, logger: l}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	// Subscription cache: redis if configured so instances share it
	var subscriptions cache.Cache = cache.NewMemory(time.Now)
	if c.RedisAddr != "" {
		r, err := cache.NewRedis(ctx, cache.RedisConfig{Addr: c.RedisAddr, Prefix: "eazynet:"})
		if err != nil {
			return nil, fmt.Errorf("error while connecting to redis. Err: %w", err)
		}
		app.closers = append(app.closers, func() { _ = r.Close() })
		subscriptions = r
	}

	// OAuth sessions: postgres if configured, process memory otherwise
	app.sessions = memory.NewOAuthSessionRepo(time.Now)
	if c.DatabaseDSN != "" {
		pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
		}
		app.closers = append(app.closers, pool.Close)
		app.sessions = &postgres.OAuthSessionRepo{DB: pool}
	}

	deps := handlers.Deps{
		Session: session.Config{
			BaseURL:         c.APIURL,
			Timeout:         c.RequestTimeout,
			SubscriptionTTL: c.SubscriptionTTL,
		},
		Cache:         subscriptions,
		OAuthSessions: app.sessions,
		SecureCookies: c.SecureCookies(),
		Logger:        l,
	}

	if c.GoogleEnabled() {
		google, err := oauth.NewGoogle(ctx, oauth.GoogleConfig{
			ClientID:     c.GoogleClientID,
			ClientSecret: c.GoogleClientSecret,
			RedirectURL:  c.GoogleRedirectURL,
		})
		if err != nil {
			return nil, fmt.Errorf("error while initializing google sign in. Err: %w", err)
		}
		deps.Google = google
	} else {
		l.Warn("Google sign in is not configured")
	}

	app.Handler, err = handlers.NewRouter(deps)
	if err != nil {
		return nil, fmt.Errorf("error while creating router. Err: %w", err)
	}

	return app, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("Starting server", "address", s.ListenAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		return nil
	})

	g.Go(func() error {
		s.sweep(gctx)
		return nil
	})

	return g.Wait()
}

// Remove expired OAuth sessions until context is cancelled
func (s *ServerApp) sweep(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.sessions.DeleteExpired(ctx)
			if err != nil {
				s.logger.Warn("Failed to delete expired oauth sessions", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Debug("Expired oauth sessions deleted", "count", n)
			}
		}
	}
}

func (s *ServerApp) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
