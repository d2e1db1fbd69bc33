// Package gateway binds connections to rooms and dispatches inbound events.
//
// A connection starts unbound. join-room binds it to exactly one room for
// the rest of its life. Every other event from an unbound connection is
// dropped without a reply, as are malformed payloads.
package gateway

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Falco0906/syncstream/internal/logging"
	"github.com/Falco0906/syncstream/internal/metrics"
	"github.com/Falco0906/syncstream/internal/room"
)

// Client to server event names.
const (
	EventJoinRoom       = "join-room"
	EventVideoAction    = "video-action"
	EventVideoURLShared = "video-url-shared"
	EventFileUploaded   = "file-uploaded"
	EventChatMessage    = "chat-message"
)

const (
	maxRoomIDLength = 64
	maxJoinAttempts = 3
)

// Envelope is the frame shape in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinRequest is the join-room payload. Username is accepted as an alias.
type JoinRequest struct {
	RoomID      string `json:"roomId"`
	DisplayName string `json:"displayName"`
	Username    string `json:"username"`
}

type VideoActionRequest struct {
	Action      room.Action `json:"action"`
	CurrentTime float64     `json:"currentTime"`
}

type VideoURLRequest struct {
	URL         string `json:"url"`
	Name        string `json:"name"`
	OriginalURL string `json:"originalUrl"`
}

type FileUploadedRequest struct {
	VideoURL     string `json:"videoUrl"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
}

// Binding is what the gateway knows about a bound connection.
type Binding struct {
	RoomID      string
	DisplayName string
}

type handlerFunc func(connID string, b Binding, data json.RawMessage)

// Gateway owns the connection side table.
type Gateway struct {
	rooms   *room.Registry
	log     zerolog.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	bindings map[string]Binding

	handlers map[string]handlerFunc
}

// New builds a gateway over rooms.
func New(rooms *room.Registry, log zerolog.Logger, m *metrics.Metrics) *Gateway {
	g := &Gateway{
		rooms:    rooms,
		log:      log,
		metrics:  m,
		bindings: make(map[string]Binding),
	}
	g.handlers = map[string]handlerFunc{
		EventVideoAction:    g.handleVideoAction,
		EventVideoURLShared: g.handleVideoURL,
		EventFileUploaded:   g.handleFileUploaded,
		EventChatMessage:    g.handleChat,
	}
	return g
}

// Binding returns the room binding of connID, if any.
func (g *Gateway) Binding(connID string) (Binding, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	b, ok := g.bindings[connID]
	return b, ok
}

// Bound returns the number of bound connections.
func (g *Gateway) Bound() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.bindings)
}

// Dispatch decodes one raw frame and handles it.
func (g *Gateway) Dispatch(connID string, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		g.log.Debug().Err(err).Str(logging.FieldConnID, connID).Msg("dropping malformed frame")
		return
	}
	g.Handle(connID, env.Event, env.Data)
}

// Handle runs the handler for event. Unknown events are dropped.
func (g *Gateway) Handle(connID, event string, data json.RawMessage) {
	if event == EventJoinRoom {
		g.metrics.IncEvent(event)
		g.handleJoin(connID, data)
		return
	}
	h, ok := g.handlers[event]
	if !ok {
		g.log.Debug().Str(logging.FieldConnID, connID).Str(logging.FieldEvent, event).Msg("unknown event")
		return
	}
	b, bound := g.Binding(connID)
	if !bound {
		return
	}
	g.metrics.IncEvent(event)
	h(connID, b, data)
}

// Disconnect releases connID's binding. When the room empties it is removed
// from the registry, which runs the registry's delete hooks synchronously.
func (g *Gateway) Disconnect(connID string) {
	g.mu.Lock()
	b, ok := g.bindings[connID]
	delete(g.bindings, connID)
	g.mu.Unlock()
	if !ok {
		return
	}

	rm, ok := g.rooms.Get(b.RoomID)
	if !ok {
		return
	}
	res := rm.Leave(connID)
	if res.Removed {
		g.log.Info().Str(logging.FieldRoomID, b.RoomID).Str(logging.FieldConnID, connID).
			Str(logging.FieldName, b.DisplayName).Msg("participant left")
	}
	if res.Empty {
		g.rooms.DeleteIfEmpty(b.RoomID)
	}
}

func (g *Gateway) handleJoin(connID string, data json.RawMessage) {
	if _, bound := g.Binding(connID); bound {
		return
	}
	var req JoinRequest
	if !g.decode(connID, EventJoinRoom, data, &req) {
		return
	}
	roomID := strings.TrimSpace(req.RoomID)
	if roomID == "" || len(roomID) > maxRoomIDLength {
		return
	}
	name := req.DisplayName
	if strings.TrimSpace(name) == "" {
		name = req.Username
	}

	for attempt := 0; attempt < maxJoinAttempts; attempt++ {
		rm := g.rooms.GetOrCreate(roomID)
		res, err := rm.Join(connID, name)
		if errors.Is(err, room.ErrRoomClosed) {
			continue
		}
		if err != nil {
			g.log.Debug().Err(err).Str(logging.FieldConnID, connID).Msg("join rejected")
			return
		}
		g.mu.Lock()
		g.bindings[connID] = Binding{RoomID: roomID, DisplayName: res.Participant.DisplayName}
		g.mu.Unlock()
		g.log.Info().Str(logging.FieldRoomID, roomID).Str(logging.FieldConnID, connID).
			Str(logging.FieldName, res.Participant.DisplayName).Bool("host", res.IsHost).Msg("participant joined")
		return
	}
	g.log.Warn().Str(logging.FieldRoomID, roomID).Msg("join kept racing room deletion")
}

func (g *Gateway) handleVideoAction(connID string, b Binding, data json.RawMessage) {
	var req VideoActionRequest
	if !g.decode(connID, EventVideoAction, data, &req) {
		return
	}
	rm, ok := g.rooms.Get(b.RoomID)
	if !ok {
		return
	}
	if _, err := rm.ApplyAction(req.Action, req.CurrentTime, connID); err != nil {
		g.log.Debug().Err(err).Str(logging.FieldConnID, connID).Msg("video action ignored")
	}
}

func (g *Gateway) handleVideoURL(connID string, b Binding, data json.RawMessage) {
	var req VideoURLRequest
	if !g.decode(connID, EventVideoURLShared, data, &req) {
		return
	}
	desc := room.VideoDescriptor{
		URL:         req.URL,
		Name:        req.Name,
		OriginalURL: req.OriginalURL,
		Type:        room.DetectSourceKind(req.URL),
	}
	g.setVideo(connID, b, desc, room.AudienceAll)
}

func (g *Gateway) handleFileUploaded(connID string, b Binding, data json.RawMessage) {
	var req FileUploadedRequest
	if !g.decode(connID, EventFileUploaded, data, &req) {
		return
	}
	desc := room.VideoDescriptor{
		URL:  req.VideoURL,
		Name: req.OriginalName,
		Type: room.SourceUploadedFile,
		Size: req.Size,
	}
	g.setVideo(connID, b, desc, room.AudienceOthers)
}

func (g *Gateway) setVideo(connID string, b Binding, desc room.VideoDescriptor, aud room.Audience) {
	rm, ok := g.rooms.Get(b.RoomID)
	if !ok {
		return
	}
	loaded, err := rm.SetVideo(desc, connID, aud)
	if err != nil {
		g.log.Debug().Err(err).Str(logging.FieldConnID, connID).Msg("video load ignored")
		return
	}
	g.log.Info().Str(logging.FieldRoomID, b.RoomID).Str("type", string(loaded.Type)).Msg("video loaded")
}

func (g *Gateway) handleChat(connID string, b Binding, data json.RawMessage) {
	text, ok := chatText(data)
	if !ok {
		return
	}
	rm, found := g.rooms.Get(b.RoomID)
	if !found {
		return
	}
	rm.PostMessage(connID, text)
}

// chatText accepts a bare JSON string or an object with a message field.
func chatText(data json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s, true
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.Message != "" {
		return obj.Message, true
	}
	return "", false
}

func (g *Gateway) decode(connID, event string, data json.RawMessage, v any) bool {
	if len(data) == 0 {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		g.log.Debug().Err(err).Str(logging.FieldConnID, connID).Str(logging.FieldEvent, event).Msg("invalid payload")
		return false
	}
	return true
}
