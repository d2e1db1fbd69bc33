package room

import (
	"sync"
	"testing"
	"time"
)

type delivered struct {
	roomID string
	msg    Outbound
}

type recordingSink struct {
	mu   sync.Mutex
	msgs []delivered
}

func (s *recordingSink) Deliver(roomID string, msgs []Outbound) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.msgs = append(s.msgs, delivered{roomID: roomID, msg: m})
	}
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	s.msgs = nil
	s.mu.Unlock()
}

func (s *recordingSink) events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.msgs))
	for _, d := range s.msgs {
		out = append(out, d.msg.Event)
	}
	return out
}

// received returns the messages addressed to participant id.
func (s *recordingSink) received(id string) []Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Outbound
	for _, d := range s.msgs {
		for _, r := range d.msg.Recipients {
			if r == id {
				out = append(out, d.msg)
				break
			}
		}
	}
	return out
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestRegistry(t *testing.T) (*Registry, *recordingSink, *fakeClock) {
	t.Helper()
	sink := &recordingSink{}
	clock := newFakeClock()
	return NewRegistry(WithSink(sink), WithClock(clock.Now)), sink, clock
}

func eventsEqual(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func mustJoin(t *testing.T, rm *Room, id, name string) JoinResult {
	t.Helper()
	res, err := rm.Join(id, name)
	if err != nil {
		t.Fatalf("Join(%s): %v", id, err)
	}
	return res
}
