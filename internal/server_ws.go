package internal

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/Falco0906/syncstream/internal/logging"
)

const systemUser = "system"

// ServeWS upgrades the request and runs the connection's pumps. The
// connection starts unbound and joins a room with a join-room event.
func (s *Server) ServeWS(writer http.ResponseWriter, request *http.Request) {
	websocketConn, err := s.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		log := logging.Ctx(request.Context())
		log.Debug().Err(err).Msg("websocket upgrade")
		return
	}

	client := newClient(uuid.NewString(), websocketConn, s.opts.WS)
	s.hub.register(client)
	s.log.Debug().Str(logging.FieldConnID, client.id).Str(logging.FieldClientIP, logging.ClientIP(request)).Msg("websocket connected")

	go client.writePump()
	go client.readPump(s)
}
