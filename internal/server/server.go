// Package server exposes story generation and session inspection over HTTP,
// streaming run progress to clients as server-sent events.
package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/plotcraft/internal/generation"
	"github.com/zulandar/plotcraft/internal/progress"
	"github.com/zulandar/plotcraft/internal/session"
)

// Defaults for the HTTP server.
const (
	DefaultPort      = 8080
	DefaultHeartbeat = 15 * time.Second
	shutdownTimeout  = 10 * time.Second
)

// Replayer returns the buffered events of a session with Seq above since.
type Replayer interface {
	Replay(ctx context.Context, id string, since int64) ([]progress.Event, error)
}

// Opts holds configuration for the HTTP server.
type Opts struct {
	Service *generation.Service
	Store   *session.Store
	// Replay serves polling clients; nil disables the events endpoint.
	Replay    Replayer
	Port      int
	Heartbeat time.Duration
	Out       io.Writer
	// BaseContext stops in-flight runs when it is cancelled. Start sets it
	// to its own ctx; defaults to context.Background.
	BaseContext context.Context
}

func (o *Opts) validate() error {
	if o.Service == nil {
		return fmt.Errorf("server: service is required")
	}
	if o.Store == nil {
		return fmt.Errorf("server: store is required")
	}
	if o.Port <= 0 {
		o.Port = DefaultPort
	}
	if o.Heartbeat <= 0 {
		o.Heartbeat = DefaultHeartbeat
	}
	if o.BaseContext == nil {
		o.BaseContext = context.Background()
	}
	return nil
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(opts Opts) (*gin.Engine, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, &handlers{
		svc:       opts.Service,
		store:     opts.Store,
		replay:    opts.Replay,
		heartbeat: opts.Heartbeat,
		base:      opts.BaseContext,
	})
	return router, nil
}

// Start launches the HTTP server. It blocks until ctx is cancelled, then
// shuts down gracefully. Cancelling ctx also stops in-flight runs, and Start
// waits for their sessions to be failed before returning.
func Start(ctx context.Context, opts Opts) error {
	gin.SetMode(gin.ReleaseMode)
	opts.BaseContext = ctx
	router, err := NewRouter(opts)
	if err != nil {
		return err
	}
	if opts.Port <= 0 {
		opts.Port = DefaultPort
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("server: shutdown: %v", err)
		}
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "PlotCraft API listening on http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	<-stopped
	return nil
}
