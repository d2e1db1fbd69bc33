package room

// Server to client event names.
const (
	EventRoomState       = "room-state"
	EventUserJoined      = "user-joined"
	EventUserLeft        = "user-left"
	EventUserCountUpdate = "user-count-update"
	EventNewHost         = "new-host"
	EventVideoSync       = "video-sync"
	EventVideoLoaded     = "video-loaded"
	EventChatMessage     = "chat-message"
)

// Audience selects who in a room receives an outbound message.
type Audience int

const (
	// AudienceAll includes the actor.
	AudienceAll Audience = iota
	// AudienceOthers is everyone except the actor.
	AudienceOthers
	// AudienceSender is only the actor.
	AudienceSender
)

func (a Audience) String() string {
	switch a {
	case AudienceOthers:
		return "others"
	case AudienceSender:
		return "sender"
	default:
		return "all"
	}
}

// Outbound is one event with its recipients already resolved to participant ids.
type Outbound struct {
	Event      string
	Data       any
	Audience   Audience
	Recipients []string
}

// Sink receives the messages produced by a room operation. Deliver is called
// with the room lock held and must not call back into the room or registry.
type Sink interface {
	Deliver(roomID string, msgs []Outbound)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(roomID string, msgs []Outbound)

func (f SinkFunc) Deliver(roomID string, msgs []Outbound) {
	f(roomID, msgs)
}

type discardSink struct{}

func (discardSink) Deliver(string, []Outbound) {}

// UserRef is the payload of user-joined and user-left.
type UserRef struct {
	Username string `json:"username"`
	UserID   string `json:"userId"`
}

// HostChange is the payload of new-host.
type HostChange struct {
	HostID string `json:"hostId"`
}
