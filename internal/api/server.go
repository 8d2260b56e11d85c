// Package api exposes the store node over HTTP.
package api

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dmitrijs2005/shopkeeper/internal/auth"
	"github.com/dmitrijs2005/shopkeeper/internal/connectivity"
	"github.com/dmitrijs2005/shopkeeper/internal/logging"
	"github.com/dmitrijs2005/shopkeeper/internal/notifications"
	"github.com/dmitrijs2005/shopkeeper/internal/syncengine"
)

// Connectivity is the part of the monitor the API drives.
type Connectivity interface {
	State() connectivity.State
	SetOnline(ctx context.Context, online bool)
}

type Deps struct {
	Engine  *syncengine.Engine
	Channel *notifications.Channel
	Auth    *auth.Service
	Monitor Connectivity
	Log     logging.Logger
}

type Server struct {
	address   string
	app       *fiber.App
	logger    logging.Logger
	done      chan struct{}
	heartbeat time.Duration
}

func NewServer(address string, d Deps) *Server {
	s := &Server{
		address:   address,
		logger:    d.Log.With("module", "http_server"),
		done:      make(chan struct{}),
		heartbeat: 15 * time.Second,
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "shopkeeper",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(s.logger),
	})
	s.routes(d)
	return s
}

// App exposes the router, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listener(listen)
	}()
	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info(ctx, "Stopping HTTP server...")
	close(s.done)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = s.app.ShutdownWithContext(shutdownCtx)
	_ = listen.Close()
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
