package room

import "testing"

func TestPostMessageBroadcastsToAll(t *testing.T) {
	reg, sink, clock := newTestRegistry(t)
	rm := reg.GetOrCreate("r1")
	mustJoin(t, rm, "a", "alice")
	mustJoin(t, rm, "b", "bob")
	sink.reset()

	evt, ok := rm.PostMessage("a", "  hi  ")
	if !ok {
		t.Fatal("expected message to be posted")
	}
	if evt.Message != "hi" || evt.Username != "alice" || evt.Timestamp != clock.Now().UnixMilli() || evt.ID == "" {
		t.Fatalf("unexpected event %+v", evt)
	}
	for _, id := range []string{"a", "b"} {
		msgs := sink.received(id)
		if len(msgs) != 1 || msgs[0].Event != EventChatMessage {
			t.Fatalf("%s got %+v", id, msgs)
		}
	}
}

func TestPostMessageIgnoresBlankAndStrangers(t *testing.T) {
	reg, sink, _ := newTestRegistry(t)
	rm := reg.GetOrCreate("r1")
	mustJoin(t, rm, "a", "alice")
	sink.reset()

	if _, ok := rm.PostMessage("a", " \t\n "); ok {
		t.Fatal("blank message must be ignored")
	}
	if _, ok := rm.PostMessage("ghost", "hello"); ok {
		t.Fatal("non-member message must be ignored")
	}
	if len(sink.events()) != 0 {
		t.Fatalf("expected no events, got %v", sink.events())
	}
}

func TestChatOrderingPerRoom(t *testing.T) {
	reg, sink, _ := newTestRegistry(t)
	rm := reg.GetOrCreate("r1")
	mustJoin(t, rm, "a", "alice")
	mustJoin(t, rm, "b", "bob")
	sink.reset()

	for _, text := range []string{"one", "two", "three"} {
		rm.PostMessage("a", text)
	}
	msgs := sink.received("b")
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, want := range []string{"one", "two", "three"} {
		if got := msgs[i].Data.(ChatEvent).Message; got != want {
			t.Fatalf("message %d = %q, want %q", i, got, want)
		}
	}
}
