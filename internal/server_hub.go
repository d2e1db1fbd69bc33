package internal

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Falco0906/syncstream/internal/logging"
	"github.com/Falco0906/syncstream/internal/metrics"
	"github.com/Falco0906/syncstream/internal/room"
)

// outboundFrame is what goes over the wire for every server event.
type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Hub is the table of live websocket clients keyed by connection id. It is
// the room.Sink: room operations hand it messages with resolved recipients
// and it queues the encoded frames on each recipient's send buffer.
type Hub struct {
	mutex   sync.RWMutex
	clients map[string]*Client
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// NewHub builds an empty hub.
func NewHub(log zerolog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{clients: make(map[string]*Client), log: log, metrics: m}
}

func (hub *Hub) register(client *Client) {
	hub.mutex.Lock()
	hub.clients[client.id] = client
	hub.mutex.Unlock()
	hub.metrics.IncConnections()
}

func (hub *Hub) unregister(id string) {
	hub.mutex.Lock()
	_, ok := hub.clients[id]
	delete(hub.clients, id)
	hub.mutex.Unlock()
	if ok {
		hub.metrics.DecConnections()
	}
}

// Count returns the number of open connections.
func (hub *Hub) Count() int {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	return len(hub.clients)
}

// Deliver encodes each message once and queues it for its recipients. A
// recipient whose buffer is full is disconnected rather than blocking the room.
func (hub *Hub) Deliver(roomID string, msgs []room.Outbound) {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	for _, msg := range msgs {
		if len(msg.Recipients) == 0 {
			continue
		}
		payload, err := json.Marshal(outboundFrame{Event: msg.Event, Data: msg.Data})
		if err != nil {
			hub.log.Error().Err(err).Str(logging.FieldEvent, msg.Event).Msg("encode outbound event")
			continue
		}
		for _, id := range msg.Recipients {
			client, ok := hub.clients[id]
			if !ok {
				continue
			}
			if !client.enqueue(payload) {
				hub.log.Warn().Str(logging.FieldRoomID, roomID).Str(logging.FieldConnID, id).Msg("slow client dropped")
				client.close()
			}
		}
	}
}
