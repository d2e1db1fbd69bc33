package room

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// ChatEvent is one relayed chat line.
type ChatEvent struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// PostMessage trims text and relays it to every participant, the actor
// included. Blank text and non-members are ignored and report false.
func (r *Room) PostMessage(actorID, text string) (ChatEvent, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatEvent{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ChatEvent{}, false
	}
	actor, ok := r.participants[actorID]
	if !ok {
		return ChatEvent{}, false
	}

	evt := ChatEvent{
		ID:        ulid.Make().String(),
		UserID:    actor.ID,
		Username:  actor.DisplayName,
		Message:   text,
		Timestamp: r.now().UnixMilli(),
	}
	r.deliverLocked(r.outboundLocked(EventChatMessage, evt, AudienceAll, actorID))
	return evt, true
}
