package internal

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/Falco0906/syncstream/internal/gateway"
	"github.com/Falco0906/syncstream/internal/logging"
	"github.com/Falco0906/syncstream/internal/room"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	maxMsgSize      = 8192
	sendBufferSize  = 256
	rateLimitWindow = 3 * time.Second
	rateLimitBurst  = 5
)

// Client is one websocket connection.
type Client struct {
	id           string
	conn         *websocket.Conn
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	opts         WSOptions
	messageTimes []time.Time
}

func newClient(id string, conn *websocket.Conn, opts WSOptions) *Client {
	return &Client{
		id:           id,
		conn:         conn,
		send:         make(chan []byte, opts.SendBuffer),
		done:         make(chan struct{}),
		opts:         opts,
		messageTimes: make([]time.Time, 0, opts.ChatBurst),
	}
}

// enqueue queues payload without blocking and reports false when the buffer is full.
func (client *Client) enqueue(payload []byte) bool {
	select {
	case <-client.done:
		return true
	default:
	}
	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// close stops the write pump and closes the socket, which ends the read pump.
func (client *Client) close() {
	client.closeOnce.Do(func() {
		close(client.done)
		_ = client.conn.Close()
	})
}

func (client *Client) readPump(s *Server) {
	defer func() {
		s.hub.unregister(client.id)
		s.gateway.Disconnect(client.id)
		client.close()
	}()
	client.conn.SetReadLimit(client.opts.MaxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(client.opts.PongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(client.opts.PongWait))
	})
	for {
		messageType, payload, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug().Err(err).Str(logging.FieldConnID, client.id).Msg("websocket read")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if !client.handle(s, payload) {
			return
		}
	}
}

// handle dispatches one frame. It returns false if the dispatch panicked.
func (client *Client) handle(s *Server, payload []byte) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str(logging.FieldConnID, client.id).Msg("dispatch panicked")
			ok = false
		}
	}()

	var env gateway.Envelope
	if err := json.Unmarshal(payload, &env); err != nil || env.Event == "" {
		return true
	}
	if env.Event == gateway.EventChatMessage {
		now := time.Now()
		if !client.allowMessage(now) {
			client.notifyRateLimit(now)
			return true
		}
	}
	s.gateway.Handle(client.id, env.Event, env.Data)
	return true
}

func (client *Client) writePump() {
	ticker := time.NewTicker(client.opts.PingInterval)
	defer func() {
		ticker.Stop()
		client.close()
	}()
	for {
		select {
		case <-client.done:
			_ = client.conn.SetWriteDeadline(time.Now().Add(client.opts.WriteWait))
			_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(client.opts.WriteWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(client.opts.WriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// rate limits

func (client *Client) allowMessage(now time.Time) bool {
	cutoff := now.Add(-client.opts.ChatWindow)
	idx := 0
	for _, ts := range client.messageTimes {
		if ts.After(cutoff) {
			client.messageTimes[idx] = ts
			idx++
		}
	}
	client.messageTimes = client.messageTimes[:idx]
	if len(client.messageTimes) >= client.opts.ChatBurst {
		return false
	}
	client.messageTimes = append(client.messageTimes, now)
	return true
}

func (client *Client) notifyRateLimit(now time.Time) {
	payload, err := json.Marshal(outboundFrame{
		Event: room.EventChatMessage,
		Data: room.ChatEvent{
			ID:        ulid.Make().String(),
			UserID:    systemUser,
			Username:  systemUser,
			Message:   "You're sending messages too quickly. Please wait a moment and try again.",
			Timestamp: now.UnixMilli(),
		},
	})
	if err != nil {
		return
	}
	client.enqueue(payload)
}
