package internal

import (
	"fmt"
	"math"
	"time"

	"github.com/Falco0906/syncstream/internal/room"
)

// resyncTolerance is how far, in seconds, a local position may drift from a
// received one before the receiver jumps to it.
const resyncTolerance = 0.5

// ShouldResync reports whether a received position is far enough from the
// local one to be applied.
func ShouldResync(local, remote float64) bool {
	return math.Abs(local-remote) > resyncTolerance
}

// playback simulates a player clock for the terminal client.
type playback struct {
	video    *room.VideoDescriptor
	playing  bool
	position float64
	anchor   time.Time
}

// Position returns the current position in seconds.
func (p *playback) Position(now time.Time) float64 {
	if !p.playing {
		return p.position
	}
	return p.position + now.Sub(p.anchor).Seconds()
}

// Load replaces the video and rewinds to a paused start.
func (p *playback) Load(video room.VideoDescriptor) {
	p.video = &video
	p.playing = false
	p.position = 0
}

// Restore applies a room snapshot on join.
func (p *playback) Restore(snap room.Snapshot, now time.Time) {
	p.video = snap.CurrentVideo
	p.playing = false
	p.position = 0
	if snap.VideoState != nil {
		p.Apply(*snap.VideoState, now)
	}
}

// Apply takes a remote action. The position only moves when it is outside the
// tolerance, and it returns whether it moved.
func (p *playback) Apply(state room.PlaybackState, now time.Time) bool {
	current := p.Position(now)
	moved := ShouldResync(current, state.CurrentTime)
	if moved {
		current = state.CurrentTime
	}
	p.position = current
	p.anchor = now
	switch state.Action {
	case room.ActionPlay:
		p.playing = true
	case room.ActionPause:
		p.playing = false
	}
	return moved
}

// Local applies an action issued by this client and returns the position to send.
func (p *playback) Local(action room.Action, at float64, hasAt bool, now time.Time) float64 {
	if !hasAt {
		at = p.Position(now)
	}
	p.position = at
	p.anchor = now
	switch action {
	case room.ActionPlay:
		p.playing = true
	case room.ActionPause:
		p.playing = false
	}
	return at
}

func formatPosition(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int(math.Round(seconds))
	h, m, sec := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", m, sec)
}
