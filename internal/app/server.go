package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	intrnl "github.com/Falco0906/syncstream/internal"
	"github.com/Falco0906/syncstream/internal/gateway"
	"github.com/Falco0906/syncstream/internal/janitor"
	"github.com/Falco0906/syncstream/internal/logging"
	"github.com/Falco0906/syncstream/internal/media"
	"github.com/Falco0906/syncstream/internal/metrics"
	"github.com/Falco0906/syncstream/internal/room"
	"github.com/Falco0906/syncstream/internal/storage"
)

const shutdownTimeout = 5 * time.Second

// ServerHandle represents a running HTTP/WebSocket server instance.
type ServerHandle struct {
	addr     string
	server   *http.Server
	store    *storage.Store
	registry *room.Registry
	cancel   context.CancelFunc
	workers  sync.WaitGroup
	done     chan struct{}
	err      error
}

// Addr returns the actual listen address (after the OS allocated a port).
func (h *ServerHandle) Addr() string {
	return h.addr
}

// Registry exposes the live rooms.
func (h *ServerHandle) Registry() *room.Registry {
	return h.registry
}

// Stop triggers a graceful shutdown with the provided context deadline.
func (h *ServerHandle) Stop(ctx context.Context) error {
	if h == nil || h.server == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
	}
	return h.server.Shutdown(ctx)
}

// Wait blocks until the server exits.
func (h *ServerHandle) Wait() error {
	if h == nil {
		return nil
	}
	<-h.done
	return h.err
}

// RunServer opens the ledger and media store, wires the room components and
// starts serving in the background. Call Stop/Wait to manage its lifecycle.
func RunServer(ctx context.Context, cfg Config, log zerolog.Logger) (*ServerHandle, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := storage.NewStore(cfg.Ledger.DSN)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	blobs, uploadDir, err := openMedia(ctx, cfg.Uploads)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	m := metrics.New()
	hub := intrnl.NewHub(log, m)
	registry := room.NewRegistry(
		room.WithSink(hub),
		room.WithLogger(log),
		room.WithMetrics(m),
	)
	jan := janitor.New(registry, store, blobs,
		janitor.WithLogger(log),
		janitor.WithMetrics(m),
	)
	registry.OnDelete(func(roomID string) {
		jan.CleanupRoom(roomID)
	})
	gw := gateway.New(registry, log, m)

	server := intrnl.NewServer(intrnl.ServerOptions{
		WSPath:          cfg.Server.WSPath,
		PublicDir:       cfg.Server.PublicDir,
		UploadDir:       uploadDir,
		UploadURLPrefix: cfg.Uploads.URLPrefix,
		MaxUploadBytes:  cfg.Uploads.MaxBytes,
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		RateLimit:       cfg.RateLimit.Requests,
		RateWindow:      cfg.RateLimit.Window,
		WS: intrnl.WSOptions{
			PingInterval:   cfg.WebSocket.PingInterval,
			PongWait:       cfg.WebSocket.PongWait,
			WriteWait:      cfg.WebSocket.WriteWait,
			MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		},
	}, intrnl.ServerDeps{
		Hub:      hub,
		Registry: registry,
		Gateway:  gw,
		Recorder: jan,
		Ledger:   store,
		Media:    blobs,
		Metrics:  m,
		Logger:   log,
	})

	listener, err := net.Listen("tcp", cfg.Server.Addr())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}

	httpServer := &http.Server{
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logging.StdLogger(log),
	}

	runCtx, cancel := context.WithCancel(context.Background())
	handle := &ServerHandle{
		addr:     listener.Addr().String(),
		server:   httpServer,
		store:    store,
		registry: registry,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	handle.workers.Add(2)
	go func() {
		defer handle.workers.Done()
		registry.RunExpirySweep(runCtx, cfg.Rooms.SweepInterval, cfg.Rooms.MaxAge)
	}()
	go func() {
		defer handle.workers.Done()
		jan.Run(runCtx, cfg.Uploads.SweepInterval, cfg.Uploads.Retention)
	}()

	go func() {
		select {
		case <-ctx.Done():
		case <-handle.done:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server shutdown")
		}
	}()

	go handle.serve(listener, log)

	log.Info().
		Str("addr", handle.addr).
		Str("ws_path", cfg.Server.WSPath).
		Str("uploads", cfg.Uploads.Backend).
		Msg("syncstream listening")
	return handle, nil
}

func (h *ServerHandle) serve(listener net.Listener, log zerolog.Logger) {
	defer close(h.done)
	err := h.server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	h.cancel()
	h.workers.Wait()
	if err := h.store.Close(); err != nil {
		log.Error().Err(err).Msg("ledger close")
	}
	h.err = err
}

// openMedia builds the configured byte store. The returned directory is
// non-empty when uploads are served from local disk.
func openMedia(ctx context.Context, cfg UploadsConfig) (media.Store, string, error) {
	switch cfg.Backend {
	case BackendS3:
		s3, err := media.NewS3(ctx, cfg.S3)
		if err != nil {
			return nil, "", fmt.Errorf("open s3 media: %w", err)
		}
		return s3, "", nil
	default:
		local, err := media.NewLocal(cfg.LocalMedia())
		if err != nil {
			return nil, "", fmt.Errorf("open local media: %w", err)
		}
		return local, local.Dir(), nil
	}
}
