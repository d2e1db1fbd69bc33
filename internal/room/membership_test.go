package room

import (
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
)

func TestFirstJoinerBecomesHost(t *testing.T) {
	reg, sink, _ := newTestRegistry(t)
	rm := reg.GetOrCreate("r1")

	res := mustJoin(t, rm, "a", "alice")
	if !res.IsHost || rm.Host() != "a" {
		t.Fatalf("first joiner must be host, got host %q", rm.Host())
	}
	if len(res.Snapshot.Users) != 1 || !res.Snapshot.Users[0].IsHost {
		t.Fatalf("unexpected snapshot %+v", res.Snapshot)
	}
	if got := sink.events(); !eventsEqual(got, []string{EventRoomState, EventUserJoined, EventUserCountUpdate}) {
		t.Fatalf("unexpected events %v", got)
	}

	sink.reset()
	res = mustJoin(t, rm, "b", "bob")
	if res.IsHost || rm.Host() != "a" {
		t.Fatal("second joiner must not take host")
	}
	toAlice := sink.received("a")
	if len(toAlice) != 2 || toAlice[0].Event != EventUserJoined || toAlice[1].Event != EventUserCountUpdate {
		t.Fatalf("alice got %+v", toAlice)
	}
	if toAlice[1].Data.(int) != 2 {
		t.Fatalf("expected count 2, got %v", toAlice[1].Data)
	}
	toBob := sink.received("b")
	if len(toBob) != 2 || toBob[0].Event != EventRoomState || toBob[1].Event != EventUserCountUpdate {
		t.Fatalf("bob got %+v", toBob)
	}
	snap := toBob[0].Data.(Snapshot)
	if snap.HostID != "a" || len(snap.Users) != 2 || snap.Users[1].Username != "bob" {
		t.Fatalf("unexpected late-join snapshot %+v", snap)
	}
}

func TestJoinGeneratesDisplayName(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	res := mustJoin(t, reg.GetOrCreate("r1"), "a", "   ")
	if !strings.HasPrefix(res.Participant.DisplayName, "User") {
		t.Fatalf("expected generated name, got %q", res.Participant.DisplayName)
	}
}

func TestJoinTwiceRejected(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	rm := reg.GetOrCreate("r1")
	mustJoin(t, rm, "a", "alice")
	if _, err := rm.Join("a", "alice"); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("expected ErrAlreadyMember, got %v", err)
	}
	if rm.Count() != 1 {
		t.Fatalf("expected 1 participant, got %d", rm.Count())
	}
}

func TestHostFailoverToEarliestJoined(t *testing.T) {
	reg, sink, _ := newTestRegistry(t)
	rm := reg.GetOrCreate("r1")
	mustJoin(t, rm, "a", "alice")
	mustJoin(t, rm, "b", "bob")
	mustJoin(t, rm, "c", "carol")

	sink.reset()
	res := rm.Leave("a")
	if !res.HostChanged || res.NewHost != "b" || rm.Host() != "b" {
		t.Fatalf("expected host b, got %+v", res)
	}
	if got := sink.events(); !eventsEqual(got, []string{EventUserLeft, EventNewHost, EventUserCountUpdate}) {
		t.Fatalf("unexpected leave events %v", got)
	}
	if len(sink.received("a")) != 0 {
		t.Fatal("leaver must not receive its own leave events")
	}

	sink.reset()
	res = rm.Leave("c")
	if res.HostChanged {
		t.Fatal("non-host leaving must not change host")
	}
	if got := sink.events(); !eventsEqual(got, []string{EventUserLeft, EventUserCountUpdate}) {
		t.Fatalf("unexpected events %v", got)
	}

	res = rm.Leave("b")
	if !res.Empty || rm.Host() != "" {
		t.Fatalf("expected empty room, got %+v host=%q", res, rm.Host())
	}
}

func TestLeaveUnknownIsNoop(t *testing.T) {
	reg, sink, _ := newTestRegistry(t)
	rm := reg.GetOrCreate("r1")
	mustJoin(t, rm, "a", "alice")
	sink.reset()
	res := rm.Leave("ghost")
	if res.Removed || res.Empty {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(sink.events()) != 0 {
		t.Fatal("no events expected")
	}
}

// Randomized join/leave sequences must keep the host a present participant.
func TestHostInvariantUnderRandomMembership(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	reg, _, _ := newTestRegistry(t)
	rm := reg.GetOrCreate("r1")
	ids := []string{"a", "b", "c", "d", "e"}
	present := map[string]bool{}

	for step := 0; step < 500; step++ {
		id := ids[rng.IntN(len(ids))]
		prevHost := rm.Host()
		if present[id] {
			res := rm.Leave(id)
			delete(present, id)
			wantChange := prevHost == id && len(present) > 0
			if res.HostChanged != wantChange {
				t.Fatalf("step %d: host change %v, want %v", step, res.HostChanged, wantChange)
			}
		} else {
			mustJoin(t, rm, id, id)
			present[id] = true
			if prevHost != "" && rm.Host() != prevHost {
				t.Fatalf("step %d: join changed host from %q to %q", step, prevHost, rm.Host())
			}
		}
		host := rm.Host()
		if len(present) == 0 {
			if host != "" {
				t.Fatalf("step %d: empty room has host %q", step, host)
			}
			continue
		}
		if !present[host] {
			t.Fatalf("step %d: host %q is not present", step, host)
		}
	}
}
