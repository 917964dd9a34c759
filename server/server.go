// Package server hosts the HTTP surface of the conversation engine.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/convoflow/convoflow/internal/profile"
	"github.com/convoflow/convoflow/server/chat"
	apiv1 "github.com/convoflow/convoflow/server/router/api/v1"
	"github.com/convoflow/convoflow/store"
)

// Server is the HTTP server for the conversation engine.
type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
}

// NewServer builds the Echo instance and mounts the v1 routes.
func NewServer(ctx context.Context, profile *profile.Profile, st *store.Store, generator chat.Generator) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			slog.Default().LogAttrs(ctx, slog.LevelInfo, "http request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
			)
			return nil
		},
	}))

	s := &Server{
		Profile:    profile,
		Store:      st,
		echoServer: e,
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})

	signer := chat.NewTokenSigner(profile.Secret, 0)
	streamer := chat.NewStreamer(st, generator, signer, chat.Config{
		WordDelay:        profile.StreamWordDelay,
		GeneratorTimeout: profile.GeneratorTimeout,
	})
	apiv1.NewAPIV1Service(profile, st, streamer).Register(e)

	return s, nil
}

// Start begins serving and blocks until the listener fails or ctx is done.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	slog.Default().LogAttrs(ctx, slog.LevelInfo, "server started",
		slog.String("address", address),
		slog.String("mode", s.Profile.Mode),
		slog.String("version", s.Profile.Version),
	)
	if err := s.echoServer.Start(address); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and closes the store. A fresh timeout
// context is used so shutdown still runs after the serving context is gone.
func (s *Server) Shutdown(_ context.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Default().Warn("failed to shut down server gracefully", slog.Any("error", err))
	}
	if err := s.Store.Close(); err != nil {
		slog.Default().Warn("failed to close store", slog.Any("error", err))
	}
	slog.Default().Info("server shutdown complete")
}
