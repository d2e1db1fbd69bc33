// Package room holds the in-memory co-watching state: the registry of rooms,
// their participants and host, the shared video and playback state, and the
// fan-out rules for every change.
//
// Every mutation of a Room runs under that room's mutex and hands the
// resulting messages to a Sink before the mutex is released, so each
// recipient observes a room's events in the order they were processed.
package room

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrRoomClosed is returned when the room was removed from the registry
	// while the caller held a reference to it.
	ErrRoomClosed = errors.New("room closed")
	// ErrNotMember is returned when the actor is not a participant.
	ErrNotMember = errors.New("not a room participant")
	// ErrAlreadyMember is returned when a participant id joins twice.
	ErrAlreadyMember = errors.New("already a room participant")
	// ErrInvalidAction is returned for unknown actions or unusable positions.
	ErrInvalidAction = errors.New("invalid playback action")
	// ErrInvalidVideo is returned when a descriptor has no source URL.
	ErrInvalidVideo = errors.New("invalid video descriptor")
	// ErrIDExhausted is returned when no free room id could be generated.
	ErrIDExhausted = errors.New("could not allocate a unique room id")
)

// Participant is one live connection bound to a room.
type Participant struct {
	ID          string
	DisplayName string
	JoinedAt    time.Time
}

// ParticipantView is the wire shape of a participant.
type ParticipantView struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsHost   bool   `json:"isHost"`
}

// Snapshot is the late-join view of a room sent with room-state.
type Snapshot struct {
	RoomID       string            `json:"roomId"`
	HostID       string            `json:"hostId"`
	Users        []ParticipantView `json:"users"`
	VideoState   *PlaybackState    `json:"videoState"`
	CurrentVideo *VideoDescriptor  `json:"currentVideo"`
}

// Info is a lightweight summary used by the HTTP probe.
type Info struct {
	RoomID       string `json:"roomId"`
	Participants int    `json:"participants"`
	HasVideo     bool   `json:"hasVideo"`
	CreatedAt    int64  `json:"createdAt"`
}

// Room is a single co-watching session.
type Room struct {
	id        string
	createdAt time.Time
	now       func() time.Time
	sink      Sink

	mu           sync.Mutex
	host         string
	participants map[string]*Participant
	order        []string
	video        *VideoDescriptor
	playback     *PlaybackState
	closed       bool
}

func newRoom(id string, now func() time.Time, sink Sink) *Room {
	return &Room{
		id:           id,
		createdAt:    now(),
		now:          now,
		sink:         sink,
		participants: make(map[string]*Participant),
	}
}

// ID returns the room identifier.
func (r *Room) ID() string {
	return r.id
}

// CreatedAt returns when the room was materialized.
func (r *Room) CreatedAt() time.Time {
	return r.createdAt
}

// Host returns the current host id, empty when the room has no participants.
func (r *Room) Host() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.host
}

// Count returns the number of participants.
func (r *Room) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participants)
}

// CurrentVideo returns a copy of the loaded video, if any.
func (r *Room) CurrentVideo() (VideoDescriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.video == nil {
		return VideoDescriptor{}, false
	}
	return *r.video, true
}

// Playback returns a copy of the playback state, if any.
func (r *Room) Playback() (PlaybackState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.playback == nil {
		return PlaybackState{}, false
	}
	return *r.playback, true
}

// Snapshot returns the full room view.
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Info returns the probe summary.
func (r *Room) Info() Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Info{
		RoomID:       r.id,
		Participants: len(r.participants),
		HasVideo:     r.video != nil,
		CreatedAt:    r.createdAt.UnixMilli(),
	}
}

func (r *Room) snapshotLocked() Snapshot {
	users := make([]ParticipantView, 0, len(r.order))
	for _, id := range r.order {
		p := r.participants[id]
		users = append(users, ParticipantView{UserID: p.ID, Username: p.DisplayName, IsHost: p.ID == r.host})
	}
	snap := Snapshot{RoomID: r.id, HostID: r.host, Users: users}
	if r.playback != nil {
		ps := *r.playback
		snap.VideoState = &ps
	}
	if r.video != nil {
		vd := *r.video
		snap.CurrentVideo = &vd
	}
	return snap
}

// recipientsLocked resolves an audience to participant ids in join order.
func (r *Room) recipientsLocked(aud Audience, actor string) []string {
	switch aud {
	case AudienceSender:
		if _, ok := r.participants[actor]; ok {
			return []string{actor}
		}
		return nil
	case AudienceOthers:
		out := make([]string, 0, len(r.order))
		for _, id := range r.order {
			if id != actor {
				out = append(out, id)
			}
		}
		return out
	default:
		out := make([]string, len(r.order))
		copy(out, r.order)
		return out
	}
}

func (r *Room) outboundLocked(event string, data any, aud Audience, actor string) Outbound {
	return Outbound{
		Event:      event,
		Data:       data,
		Audience:   aud,
		Recipients: r.recipientsLocked(aud, actor),
	}
}

func (r *Room) deliverLocked(msgs ...Outbound) {
	if r.sink == nil || len(msgs) == 0 {
		return
	}
	r.sink.Deliver(r.id, msgs)
}
