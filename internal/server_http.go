package internal

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/Falco0906/syncstream/internal/logging"
	"github.com/Falco0906/syncstream/internal/metrics"
)

type createRoomResponse struct {
	RoomID  string `json:"roomId"`
	RoomURL string `json:"roomUrl"`
}

type healthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Rooms       int    `json:"rooms"`
	Connections int    `json:"connections"`
	Uploads     int    `json:"uploads"`
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(logging.HTTPMiddleware(s.log))
	r.Use(metrics.RequestMiddleware(s.metrics))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler)

	r.Get(s.opts.WSPath, s.ServeWS)
	r.Get("/healthz", s.HandleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler(s.refreshGauges))

	r.Group(func(r chi.Router) {
		r.Use(s.limiter.Middleware)
		r.Get("/api/create-room", s.HandleCreateRoom)
		r.Post("/upload", s.uploads.HandleUpload)
	})
	r.Get("/api/rooms/{roomId}", s.HandleRoomInfo)

	if s.opts.UploadDir != "" {
		prefix := strings.TrimRight(s.opts.UploadURLPrefix, "/")
		r.Handle(prefix+"/*", http.StripPrefix(prefix+"/", http.FileServer(http.Dir(s.opts.UploadDir))))
	}

	r.NotFound(s.HandleSPA)
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		methodNotAllowed(w, http.MethodGet)
	})
	return r
}

func (s *Server) refreshGauges() {
	s.metrics.SetActiveRooms(s.registry.Count())
}

// HandleCreateRoom allocates a room id. The room is created on first join.
func (s *Server) HandleCreateRoom(w http.ResponseWriter, r *http.Request) {
	id, err := s.registry.CreateRoomID()
	if err != nil {
		log := logging.Ctx(r.Context())
		log.Error().Err(err).Msg("create room id")
		writeError(w, http.StatusInternalServerError, errors.New("could not create room"))
		return
	}
	writeJSON(w, http.StatusOK, createRoomResponse{RoomID: id, RoomURL: "/room/" + id})
}

// HandleRoomInfo is a lightweight probe so clients can check a room before joining.
func (s *Server) HandleRoomInfo(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.registry.Get(chi.URLParam(r, "roomId"))
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("room not found"))
		return
	}
	writeJSON(w, http.StatusOK, rm.Info())
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:      "ok",
		Version:     Version,
		Rooms:       s.registry.Count(),
		Connections: s.hub.Count(),
	}
	status := http.StatusOK
	if s.ledger != nil {
		n, err := s.ledger.CountUploads(r.Context())
		if err != nil {
			log := logging.Ctx(r.Context())
			log.Error().Err(err).Msg("count uploads")
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
		resp.Uploads = n
	}
	writeJSON(w, status, resp)
}

// HandleSPA serves files from the public directory and falls back to
// index.html for client-side routes such as /room/<id>. API and upload paths
// that reach here get a bare 404.
func (s *Server) HandleSPA(w http.ResponseWriter, r *http.Request) {
	if isReservedPath(r.URL.Path, s.opts.UploadURLPrefix) || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if s.opts.PublicDir == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	clean := path.Clean("/" + r.URL.Path)
	candidate := filepath.Join(s.opts.PublicDir, filepath.FromSlash(clean))
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		http.ServeFile(w, r, candidate)
		return
	}
	index := filepath.Join(s.opts.PublicDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	http.ServeFile(w, r, index)
}

func isReservedPath(p, uploadPrefix string) bool {
	uploadPrefix = strings.TrimRight(uploadPrefix, "/")
	switch {
	case p == "/upload", strings.HasPrefix(p, "/upload/"):
		return true
	case p == uploadPrefix, strings.HasPrefix(p, uploadPrefix+"/"):
		return true
	case p == "/uploads", strings.HasPrefix(p, "/uploads/"):
		return true
	case strings.HasPrefix(p, "/api/"):
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
