package room

import (
	"math"
	"regexp"
	"strings"
)

// SourceKind tells clients how to render a video.
type SourceKind string

const (
	SourceDirectURL    SourceKind = "direct-url"
	SourceYouTube      SourceKind = "youtube"
	SourceUploadedFile SourceKind = "uploaded-file"
)

// Action is a playback control.
type Action string

const (
	ActionPlay  Action = "play"
	ActionPause Action = "pause"
	ActionSeek  Action = "seek"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionPlay, ActionPause, ActionSeek:
		return true
	}
	return false
}

// VideoDescriptor is the room's current video source.
type VideoDescriptor struct {
	URL         string     `json:"url"`
	Name        string     `json:"name"`
	Type        SourceKind `json:"type"`
	OriginalURL string     `json:"originalUrl,omitempty"`
	Size        int64      `json:"size,omitempty"`
	LoadedBy    string     `json:"loadedBy"`
	UserID      string     `json:"userId"`
	LoadedAt    int64      `json:"loadedAt"`
}

// PlaybackState is the last processed playback action.
type PlaybackState struct {
	Action      Action  `json:"action"`
	CurrentTime float64 `json:"currentTime"`
	Timestamp   int64   `json:"timestamp"`
	UserID      string  `json:"userId"`
	Username    string  `json:"username"`
}

var youtubePattern = regexp.MustCompile(`(?:youtu\.be/|youtube\.com/(?:watch\?v=|embed/|v/|shorts/|.*[?&]v=))([^"&?/ ]{11})`)

// DetectSourceKind classifies a shared URL.
func DetectSourceKind(url string) SourceKind {
	if youtubePattern.MatchString(url) {
		return SourceYouTube
	}
	return SourceDirectURL
}

// YouTubeID extracts the 11 character video id, if url is a YouTube link.
func YouTubeID(url string) (string, bool) {
	m := youtubePattern.FindStringSubmatch(url)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// SetVideo replaces the current video and clears the playback state. The
// loader fields and load time are stamped here. aud is AudienceAll for shared
// URLs and AudienceOthers for uploads.
func (r *Room) SetVideo(desc VideoDescriptor, actorID string, aud Audience) (VideoDescriptor, error) {
	desc.URL = strings.TrimSpace(desc.URL)
	if desc.URL == "" {
		return VideoDescriptor{}, ErrInvalidVideo
	}
	if desc.Name == "" {
		desc.Name = desc.URL
	}
	if desc.Type == "" {
		desc.Type = DetectSourceKind(desc.URL)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return VideoDescriptor{}, ErrRoomClosed
	}
	actor, ok := r.participants[actorID]
	if !ok {
		return VideoDescriptor{}, ErrNotMember
	}

	desc.LoadedBy = actor.DisplayName
	desc.UserID = actor.ID
	desc.LoadedAt = r.now().UnixMilli()

	r.video = &desc
	r.playback = nil

	r.deliverLocked(r.outboundLocked(EventVideoLoaded, desc, aud, actorID))
	return desc, nil
}

// ApplyAction overwrites the playback state with the actor's action and sends
// video-sync to everyone except the actor. The latest processed action wins.
func (r *Room) ApplyAction(action Action, position float64, actorID string) (PlaybackState, error) {
	if !action.Valid() || math.IsNaN(position) || math.IsInf(position, 0) || position < 0 {
		return PlaybackState{}, ErrInvalidAction
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return PlaybackState{}, ErrRoomClosed
	}
	actor, ok := r.participants[actorID]
	if !ok {
		return PlaybackState{}, ErrNotMember
	}

	state := PlaybackState{
		Action:      action,
		CurrentTime: position,
		Timestamp:   r.now().UnixMilli(),
		UserID:      actor.ID,
		Username:    actor.DisplayName,
	}
	r.playback = &state

	r.deliverLocked(r.outboundLocked(EventVideoSync, state, AudienceOthers, actorID))
	return state, nil
}
