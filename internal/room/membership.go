package room

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// JoinResult describes a successful join.
type JoinResult struct {
	Participant Participant
	IsHost      bool
	Snapshot    Snapshot
}

// LeaveResult describes the outcome of a leave.
type LeaveResult struct {
	Removed     bool
	Participant Participant
	HostChanged bool
	NewHost     string
	Remaining   int
	Empty       bool
}

// DefaultDisplayName returns a generated name such as "User417".
func DefaultDisplayName() string {
	return fmt.Sprintf("User%d", rand.IntN(1000))
}

// Join adds a participant. The first participant of a hostless room becomes
// host. The joiner receives room-state, the others user-joined, and everyone
// the new count.
func (r *Room) Join(participantID, displayName string) (JoinResult, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = DefaultDisplayName()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return JoinResult{}, ErrRoomClosed
	}
	if _, ok := r.participants[participantID]; ok {
		return JoinResult{}, ErrAlreadyMember
	}

	p := &Participant{ID: participantID, DisplayName: name, JoinedAt: r.now()}
	r.participants[participantID] = p
	r.order = append(r.order, participantID)
	if r.host == "" {
		r.host = participantID
	}

	snap := r.snapshotLocked()
	r.deliverLocked(
		r.outboundLocked(EventRoomState, snap, AudienceSender, participantID),
		r.outboundLocked(EventUserJoined, UserRef{Username: name, UserID: participantID}, AudienceOthers, participantID),
		r.outboundLocked(EventUserCountUpdate, len(r.participants), AudienceAll, participantID),
	)
	return JoinResult{Participant: *p, IsHost: r.host == participantID, Snapshot: snap}, nil
}

// Leave removes a participant. When the host leaves and others remain, the
// earliest-joined remaining participant becomes host. Unknown ids are a no-op.
func (r *Room) Leave(participantID string) LeaveResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[participantID]
	if !ok {
		return LeaveResult{Remaining: len(r.participants), Empty: len(r.participants) == 0}
	}
	delete(r.participants, participantID)
	for i, id := range r.order {
		if id == participantID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	res := LeaveResult{Removed: true, Participant: *p, Remaining: len(r.participants)}
	if len(r.order) == 0 {
		r.host = ""
		res.Empty = true
		return res
	}
	if r.host == participantID {
		r.host = r.order[0]
		res.HostChanged = true
		res.NewHost = r.host
	}

	msgs := []Outbound{
		r.outboundLocked(EventUserLeft, UserRef{Username: p.DisplayName, UserID: p.ID}, AudienceOthers, participantID),
	}
	if res.HostChanged {
		msgs = append(msgs, r.outboundLocked(EventNewHost, HostChange{HostID: r.host}, AudienceOthers, participantID))
	}
	msgs = append(msgs, r.outboundLocked(EventUserCountUpdate, len(r.participants), AudienceOthers, participantID))
	r.deliverLocked(msgs...)
	return res
}

// Participant looks up one participant.
func (r *Room) Participant(id string) (Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[id]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}
