// Package server assembles the store node: local cache, remote backend,
// connectivity monitor, sync engine, notification channel and the HTTP
// API, and runs them until the process is told to stop.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	firebase "firebase.google.com/go/v4"

	"github.com/dmitrijs2005/shopkeeper/internal/api"
	"github.com/dmitrijs2005/shopkeeper/internal/auth"
	"github.com/dmitrijs2005/shopkeeper/internal/config"
	"github.com/dmitrijs2005/shopkeeper/internal/connectivity"
	"github.com/dmitrijs2005/shopkeeper/internal/filex"
	"github.com/dmitrijs2005/shopkeeper/internal/firebasex"
	"github.com/dmitrijs2005/shopkeeper/internal/localstore"
	"github.com/dmitrijs2005/shopkeeper/internal/logging"
	"github.com/dmitrijs2005/shopkeeper/internal/notifications"
	"github.com/dmitrijs2005/shopkeeper/internal/remote"
	"github.com/dmitrijs2005/shopkeeper/internal/session"
	"github.com/dmitrijs2005/shopkeeper/internal/syncengine"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	local   localstore.Store
	remote  remote.Store
	monitor *connectivity.Monitor
	engine  *syncengine.Engine
	http    *api.Server
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	var out io.Writer = os.Stdout
	if c.LogFile != "" {
		out = logging.RotatingFile(c.LogFile)
	}
	return NewAppWithLogger(ctx, c, logging.New(out, logging.Format(c.LogFormat), c.LogLevel))
}

// NewAppWithLogger is NewApp with a caller-supplied logger.
func NewAppWithLogger(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	app := &App{config: c, logger: logger}
	if err := app.init(ctx); err != nil {
		app.close(ctx)
		return nil, err
	}
	return app, nil
}

func (app *App) init(ctx context.Context) error {
	c := app.config

	var fb *firebase.App
	if c.RemoteBackend == config.BackendFirestore {
		var err error
		if fb, err = firebasex.NewApp(ctx, c.FirebaseProjectID, c.FirebaseCredentialsFile); err != nil {
			return err
		}
	}

	rem, err := app.openRemote(ctx, fb)
	if err != nil {
		return fmt.Errorf("remote init error: %w", err)
	}
	app.remote = rem

	var conn syncengine.Connectivity = connectivity.AlwaysOnline{}
	var apiConn api.Connectivity = connectivity.AlwaysOnline{}
	if c.CloudOnly {
		app.local = localstore.Disabled{}
	} else {
		path, err := filex.EnsureParentDir(c.LocalDBPath)
		if err != nil {
			return fmt.Errorf("local store init error: %w", err)
		}
		local, err := localstore.Open(ctx, path)
		if err != nil {
			return fmt.Errorf("local store init error: %w", err)
		}
		app.local = local
		app.monitor = connectivity.NewMonitor(rem, connectivity.Offline, app.logger.With("component", "connectivity"))
		conn, apiConn = app.monitor, app.monitor
	}

	app.engine = syncengine.New(app.local, rem, conn, session.NewHolder(nil), app.logger, syncengine.Options{CloudOnly: c.CloudOnly})
	if err := app.engine.Init(ctx); err != nil {
		return err
	}

	var pusher notifications.Pusher
	if c.PushEnabled {
		fcm, err := notifications.NewFCM(ctx, fb)
		if err != nil {
			return fmt.Errorf("push init error: %w", err)
		}
		pusher = fcm
	}
	channel := notifications.New(app.engine, rem, app.local, conn, pusher, app.logger, c.NotificationLimit)

	authService := auth.NewService(app.engine, []byte(c.SecretKey), c.TokenValidity, app.logger)

	app.http = api.NewServer(c.HTTPAddr, api.Deps{
		Engine:  app.engine,
		Channel: channel,
		Auth:    authService,
		Monitor: apiConn,
		Log:     app.logger,
	})
	return nil
}

func (app *App) openRemote(ctx context.Context, fb *firebase.App) (remote.Store, error) {
	switch app.config.RemoteBackend {
	case config.BackendFirestore:
		return remote.NewFirestore(ctx, fb, app.logger)
	case config.BackendPostgres:
		return remote.OpenPostgres(ctx, app.config.DatabaseDSN, app.logger)
	case config.BackendMemory:
		app.logger.Warn(ctx, "using in-memory remote backend, data is lost on exit")
		return remote.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown remote backend %q", app.config.RemoteBackend)
	}
}

// Engine exposes the sync engine, mainly for tests.
func (app *App) Engine() *syncengine.Engine { return app.engine }

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// startConnectivity hooks the replay sweep to reconnects, probes once and
// then keeps probing on the configured interval.
func (app *App) startConnectivity(ctx context.Context) {
	if app.monitor == nil {
		return
	}

	app.monitor.OnReconnect(func(ctx context.Context) {
		if _, err := app.engine.SyncPendingData(ctx); err != nil {
			app.logger.Warn(ctx, "replay finished with errors", "error", err)
		}
	})
	app.monitor.Probe(ctx)
	app.monitor.Run(ctx, app.config.OnlineCheckInterval)
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.http.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until ctx is cancelled or a termination signal arrives.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "backend", app.config.RemoteBackend, "cloud_only", app.config.CloudOnly)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startConnectivity(ctx)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.close(context.Background())
	app.logger.Info(context.Background(), "App stopped")
}

func (app *App) close(ctx context.Context) {
	var errs []error
	if app.local != nil {
		errs = append(errs, app.local.Close())
	}
	if app.remote != nil {
		errs = append(errs, app.remote.Close())
	}
	if err := errors.Join(errs...); err != nil {
		app.logger.Error(ctx, "close failed", "error", err)
	}
}
