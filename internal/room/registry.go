package room

import (
	"context"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/Falco0906/syncstream/internal/logging"
	"github.com/Falco0906/syncstream/internal/metrics"
)

const (
	idAlphabet     = "0123456789abcdef"
	idLength       = 8
	maxIDAttempts  = 10
	reasonEmpty    = "empty"
	reasonExpired  = "expired"
	reasonExplicit = "explicit"
)

// Registry owns every live Room.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	hookMu   sync.RWMutex
	onDelete []func(roomID string)

	now     func() time.Time
	newID   func() (string, error)
	sink    Sink
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// Option configures a Registry.
type Option func(*Registry)

// WithSink sets where room operations deliver their messages.
func WithSink(s Sink) Option {
	return func(r *Registry) {
		if s != nil {
			r.sink = s
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDGenerator overrides the room id generator.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(r *Registry) {
		if gen != nil {
			r.newID = gen
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry builds an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		rooms: make(map[string]*Room),
		now:   time.Now,
		newID: func() (string, error) { return gonanoid.Generate(idAlphabet, idLength) },
		sink:  discardSink{},
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnDelete registers fn to run after a room is removed. Hooks run outside the
// registry lock, once per removed room.
func (r *Registry) OnDelete(fn func(roomID string)) {
	if fn == nil {
		return
	}
	r.hookMu.Lock()
	r.onDelete = append(r.onDelete, fn)
	r.hookMu.Unlock()
}

// CreateRoomID returns a fresh identifier that no live room uses. The room
// itself is not created until the first join.
func (r *Registry) CreateRoomID() (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id, err := r.newID()
		if err != nil {
			return "", err
		}
		if !r.Exists(id) {
			return id, nil
		}
	}
	return "", ErrIDExhausted
}

// GetOrCreate returns the room with id, creating an empty one if needed.
func (r *Registry) GetOrCreate(id string) *Room {
	r.mu.RLock()
	rm, ok := r.rooms[id]
	r.mu.RUnlock()
	if ok {
		return rm
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok = r.rooms[id]; ok {
		return rm
	}
	rm = newRoom(id, r.now, r.sink)
	r.rooms[id] = rm
	r.metrics.SetActiveRooms(len(r.rooms))
	r.log.Debug().Str(logging.FieldRoomID, id).Msg("room created")
	return rm
}

// Get looks up a room.
func (r *Registry) Get(id string) (*Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[id]
	return rm, ok
}

// Exists reports whether a room with id is live.
func (r *Registry) Exists(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// Count returns the number of live rooms.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Delete removes a room regardless of its participants. Unknown ids are a no-op.
func (r *Registry) Delete(id string) bool {
	return r.removeIf(id, reasonExplicit, func(*Room) bool { return true })
}

// DeleteIfEmpty removes the room only if it has no participants at the
// moment of removal.
func (r *Registry) DeleteIfEmpty(id string) bool {
	return r.removeIf(id, reasonEmpty, func(rm *Room) bool { return len(rm.participants) == 0 })
}

// SweepExpired removes every empty room older than maxAge and returns the
// removed ids. Each candidate is re-checked at removal time, so a room that
// gained a participant after the scan survives.
func (r *Registry) SweepExpired(maxAge time.Duration) []string {
	now := r.now()

	r.mu.RLock()
	candidates := make([]string, 0)
	for id, rm := range r.rooms {
		if now.Sub(rm.createdAt) > maxAge && rm.Count() == 0 {
			candidates = append(candidates, id)
		}
	}
	r.mu.RUnlock()

	var removed []string
	for _, id := range candidates {
		ok := r.removeIf(id, reasonExpired, func(rm *Room) bool {
			return len(rm.participants) == 0 && now.Sub(rm.createdAt) > maxAge
		})
		if ok {
			removed = append(removed, id)
		}
	}
	return removed
}

// RunExpirySweep calls SweepExpired every interval until ctx is done.
func (r *Registry) RunExpirySweep(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := r.SweepExpired(maxAge); len(removed) > 0 {
				r.log.Info().Int(logging.FieldRemoved, len(removed)).Msg("expired rooms swept")
			}
		}
	}
}

// removeIf deletes id when pred returns true under the room lock. The room is
// marked closed before the lock is released so a concurrent Join fails with
// ErrRoomClosed instead of landing in a detached room.
func (r *Registry) removeIf(id, reason string, pred func(*Room) bool) bool {
	r.mu.Lock()
	rm, ok := r.rooms[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	rm.mu.Lock()
	if !pred(rm) {
		rm.mu.Unlock()
		r.mu.Unlock()
		return false
	}
	rm.closed = true
	rm.mu.Unlock()
	delete(r.rooms, id)
	remaining := len(r.rooms)
	r.mu.Unlock()

	r.metrics.SetActiveRooms(remaining)
	r.metrics.IncRoomsDeleted(reason)
	r.log.Info().Str(logging.FieldRoomID, id).Str("reason", reason).Msg("room deleted")

	r.hookMu.RLock()
	hooks := append([]func(string){}, r.onDelete...)
	r.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(id)
	}
	return true
}
