package internal

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Falco0906/syncstream/internal/gateway"
	"github.com/Falco0906/syncstream/internal/media"
	"github.com/Falco0906/syncstream/internal/metrics"
	"github.com/Falco0906/syncstream/internal/room"
)

// WSOptions tunes websocket keepalive and limits.
type WSOptions struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	SendBuffer     int
	ChatBurst      int
	ChatWindow     time.Duration
}

func (o WSOptions) withDefaults() WSOptions {
	if o.PongWait <= 0 {
		o.PongWait = pongWait
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = (o.PongWait * 9) / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = writeWait
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = maxMsgSize
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = sendBufferSize
	}
	if o.ChatBurst <= 0 {
		o.ChatBurst = rateLimitBurst
	}
	if o.ChatWindow <= 0 {
		o.ChatWindow = rateLimitWindow
	}
	return o
}

// ServerOptions configures the HTTP surface.
type ServerOptions struct {
	WSPath          string
	PublicDir       string
	UploadDir       string // served under UploadURLPrefix; empty when media is not on local disk
	UploadURLPrefix string
	MaxUploadBytes  int64
	AllowedOrigins  []string
	RateLimit       int
	RateWindow      time.Duration
	WS              WSOptions
}

// ServerDeps are the components the server routes traffic into.
type ServerDeps struct {
	Hub      *Hub
	Registry *room.Registry
	Gateway  *gateway.Gateway
	Recorder UploadRecorder
	Ledger   UploadCounter
	Media    media.Store
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

// UploadCounter reports how many uploaded files are on record.
type UploadCounter interface {
	CountUploads(ctx context.Context) (int, error)
}

// Server owns the HTTP and websocket handlers.
type Server struct {
	opts     ServerOptions
	hub      *Hub
	registry *room.Registry
	gateway  *gateway.Gateway
	uploads  *FileUploadHandler
	ledger   UploadCounter
	limiter  *RateLimiter
	metrics  *metrics.Metrics
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewServer wires the handlers. deps.Hub must be the sink the registry
// delivers to.
func NewServer(opts ServerOptions, deps ServerDeps) *Server {
	if opts.WSPath == "" {
		opts.WSPath = "/ws"
	}
	if opts.UploadURLPrefix == "" {
		opts.UploadURLPrefix = "/uploads"
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 30
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = time.Minute
	}
	opts.WS = opts.WS.withDefaults()

	s := &Server{
		opts:     opts,
		hub:      deps.Hub,
		registry: deps.Registry,
		gateway:  deps.Gateway,
		ledger:   deps.Ledger,
		limiter:  NewRateLimiter(opts.RateLimit, opts.RateWindow),
		metrics:  deps.Metrics,
		log:      deps.Logger,
	}
	s.uploads = NewFileUploadHandler(deps.Recorder, deps.Media, opts.MaxUploadBytes, deps.Metrics, deps.Logger)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return s
}

// Hub returns the live connection table.
func (s *Server) Hub() *Hub {
	return s.hub
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
