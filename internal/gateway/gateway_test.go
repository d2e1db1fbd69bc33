package gateway

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Falco0906/syncstream/internal/room"
)

// inbox records what each connection would have received.
type inbox struct {
	mu  sync.Mutex
	got map[string][]room.Outbound
}

func newInbox() *inbox {
	return &inbox{got: make(map[string][]room.Outbound)}
}

func (b *inbox) Deliver(_ string, msgs []room.Outbound) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range msgs {
		for _, id := range m.Recipients {
			b.got[id] = append(b.got[id], m)
		}
	}
}

// take returns and clears the messages for id.
func (b *inbox) take(id string) []room.Outbound {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs := b.got[id]
	delete(b.got, id)
	return msgs
}

func events(msgs []room.Outbound) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Event
	}
	return out
}

func expectEvents(t *testing.T, who string, msgs []room.Outbound, want ...string) {
	t.Helper()
	got := events(msgs)
	if len(got) != len(want) {
		t.Fatalf("%s: got events %v, want %v", who, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("%s: got events %v, want %v", who, got, want)
		}
	}
}

func frame(t *testing.T, event string, data any) []byte {
	t.Helper()
	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	raw, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func newTestGateway(t *testing.T) (*Gateway, *room.Registry, *inbox) {
	t.Helper()
	box := newInbox()
	reg := room.NewRegistry(room.WithSink(box))
	return New(reg, zerolog.Nop(), nil), reg, box
}

func TestAliceAndBobScenario(t *testing.T) {
	gw, reg, box := newTestGateway(t)
	var cleaned []string
	reg.OnDelete(func(id string) { cleaned = append(cleaned, id) })

	roomID, err := reg.CreateRoomID()
	if err != nil {
		t.Fatalf("CreateRoomID: %v", err)
	}

	gw.Dispatch("A", frame(t, EventJoinRoom, JoinRequest{RoomID: roomID, DisplayName: "Alice"}))
	msgs := box.take("A")
	expectEvents(t, "A", msgs, room.EventRoomState, room.EventUserCountUpdate)
	snap := msgs[0].Data.(room.Snapshot)
	if snap.HostID != "A" || snap.CurrentVideo != nil || snap.VideoState != nil {
		t.Fatalf("unexpected initial snapshot %+v", snap)
	}

	gw.Dispatch("B", frame(t, EventJoinRoom, JoinRequest{RoomID: roomID, DisplayName: "Bob"}))
	msgs = box.take("A")
	expectEvents(t, "A", msgs, room.EventUserJoined, room.EventUserCountUpdate)
	if ref := msgs[0].Data.(room.UserRef); ref.Username != "Bob" {
		t.Fatalf("expected user-joined Bob, got %+v", ref)
	}
	if msgs[1].Data.(int) != 2 {
		t.Fatalf("expected count 2, got %v", msgs[1].Data)
	}
	msgs = box.take("B")
	expectEvents(t, "B", msgs, room.EventRoomState, room.EventUserCountUpdate)
	if msgs[1].Data.(int) != 2 {
		t.Fatalf("expected count 2 for B, got %v", msgs[1].Data)
	}

	gw.Dispatch("A", frame(t, EventVideoURLShared, VideoURLRequest{URL: "https://youtu.be/dQw4w9WgXcQ"}))
	for _, who := range []string{"A", "B"} {
		msgs = box.take(who)
		expectEvents(t, who, msgs, room.EventVideoLoaded)
		if kind := msgs[0].Data.(room.VideoDescriptor).Type; kind != room.SourceYouTube {
			t.Fatalf("%s: expected youtube, got %q", who, kind)
		}
	}

	gw.Dispatch("B", frame(t, EventVideoAction, VideoActionRequest{Action: room.ActionPlay, CurrentTime: 5.0}))
	if msgs = box.take("B"); len(msgs) != 0 {
		t.Fatalf("actor must not receive video-sync, got %v", events(msgs))
	}
	msgs = box.take("A")
	expectEvents(t, "A", msgs, room.EventVideoSync)
	if ps := msgs[0].Data.(room.PlaybackState); ps.Action != room.ActionPlay || ps.CurrentTime != 5.0 {
		t.Fatalf("unexpected sync %+v", ps)
	}

	gw.Disconnect("A")
	msgs = box.take("B")
	expectEvents(t, "B", msgs, room.EventUserLeft, room.EventNewHost, room.EventUserCountUpdate)
	if ref := msgs[0].Data.(room.UserRef); ref.Username != "Alice" {
		t.Fatalf("expected user-left Alice, got %+v", ref)
	}
	if hc := msgs[1].Data.(room.HostChange); hc.HostID != "B" {
		t.Fatalf("expected new host B, got %+v", hc)
	}
	if msgs[2].Data.(int) != 1 {
		t.Fatalf("expected count 1, got %v", msgs[2].Data)
	}

	gw.Disconnect("B")
	if reg.Exists(roomID) {
		t.Fatal("room should be deleted after last participant leaves")
	}
	if len(cleaned) != 1 || cleaned[0] != roomID {
		t.Fatalf("expected cleanup hook for %s, got %v", roomID, cleaned)
	}
}

func TestUnboundEventsAreIgnored(t *testing.T) {
	gw, reg, box := newTestGateway(t)
	rm := reg.GetOrCreate("r1")
	gw.Dispatch("A", frame(t, EventJoinRoom, JoinRequest{RoomID: "r1", DisplayName: "Alice"}))
	box.take("A")

	gw.Dispatch("X", frame(t, EventChatMessage, "hello"))
	gw.Dispatch("X", frame(t, EventVideoAction, VideoActionRequest{Action: room.ActionPause, CurrentTime: 3}))
	gw.Dispatch("X", frame(t, EventVideoURLShared, VideoURLRequest{URL: "https://x/y.mp4"}))
	gw.Dispatch("X", frame(t, EventFileUploaded, FileUploadedRequest{VideoURL: "/uploads/z.mp4"}))

	if msgs := box.take("A"); len(msgs) != 0 {
		t.Fatalf("unbound events leaked: %v", events(msgs))
	}
	if _, ok := rm.CurrentVideo(); ok {
		t.Fatal("unbound connection changed the video")
	}
	if _, ok := rm.Playback(); ok {
		t.Fatal("unbound connection changed playback")
	}
}

func TestJoinValidationAndNoRebinding(t *testing.T) {
	gw, reg, box := newTestGateway(t)

	gw.Dispatch("A", frame(t, EventJoinRoom, JoinRequest{RoomID: "   "}))
	gw.Dispatch("A", []byte(`{"event":"join-room","data":"not-an-object"}`))
	gw.Dispatch("A", []byte(`not json`))
	if reg.Count() != 0 {
		t.Fatalf("invalid joins must not create rooms, have %d", reg.Count())
	}

	gw.Dispatch("A", frame(t, EventJoinRoom, JoinRequest{RoomID: "r1", Username: "alias"}))
	b, ok := gw.Binding("A")
	if !ok || b.RoomID != "r1" || b.DisplayName != "alias" {
		t.Fatalf("unexpected binding %+v %v", b, ok)
	}
	box.take("A")

	gw.Dispatch("A", frame(t, EventJoinRoom, JoinRequest{RoomID: "r2", DisplayName: "again"}))
	if b, _ := gw.Binding("A"); b.RoomID != "r1" {
		t.Fatalf("connection was rebound to %s", b.RoomID)
	}
	if reg.Exists("r2") {
		t.Fatal("second join must not create a room")
	}
}

func TestUploadedFileSkipsUploader(t *testing.T) {
	gw, _, box := newTestGateway(t)
	gw.Dispatch("A", frame(t, EventJoinRoom, JoinRequest{RoomID: "r1", DisplayName: "Alice"}))
	gw.Dispatch("B", frame(t, EventJoinRoom, JoinRequest{RoomID: "r1", DisplayName: "Bob"}))
	box.take("A")
	box.take("B")

	gw.Dispatch("A", frame(t, EventFileUploaded, FileUploadedRequest{VideoURL: "/uploads/f.mp4", OriginalName: "f.mp4", Size: 10}))
	if msgs := box.take("A"); len(msgs) != 0 {
		t.Fatalf("uploader got %v", events(msgs))
	}
	msgs := box.take("B")
	expectEvents(t, "B", msgs, room.EventVideoLoaded)
	desc := msgs[0].Data.(room.VideoDescriptor)
	if desc.Type != room.SourceUploadedFile || desc.Size != 10 || desc.LoadedBy != "Alice" {
		t.Fatalf("unexpected descriptor %+v", desc)
	}
}

func TestChatAcceptsStringAndObject(t *testing.T) {
	gw, _, box := newTestGateway(t)
	gw.Dispatch("A", frame(t, EventJoinRoom, JoinRequest{RoomID: "r1", DisplayName: "Alice"}))
	box.take("A")

	gw.Dispatch("A", frame(t, EventChatMessage, " hi "))
	gw.Dispatch("A", frame(t, EventChatMessage, map[string]string{"message": "obj"}))
	gw.Dispatch("A", frame(t, EventChatMessage, "   "))

	msgs := box.take("A")
	expectEvents(t, "A", msgs, room.EventChatMessage, room.EventChatMessage)
	if msgs[0].Data.(room.ChatEvent).Message != "hi" || msgs[1].Data.(room.ChatEvent).Message != "obj" {
		t.Fatalf("unexpected chat payloads %+v", msgs)
	}
}

func TestDisconnectUnknownIsNoop(t *testing.T) {
	gw, _, _ := newTestGateway(t)
	gw.Disconnect("nobody")
	if gw.Bound() != 0 {
		t.Fatal("expected no bindings")
	}
}

func TestJoinRetriesAfterConcurrentDelete(t *testing.T) {
	gw, reg, box := newTestGateway(t)
	stale := reg.GetOrCreate("r1")
	reg.Delete("r1")

	gw.Dispatch("A", frame(t, EventJoinRoom, JoinRequest{RoomID: "r1", DisplayName: "Alice"}))
	rm, ok := reg.Get("r1")
	if !ok || rm == stale || rm.Count() != 1 {
		t.Fatal("join should land in a fresh room")
	}
	expectEvents(t, "A", box.take("A"), room.EventRoomState, room.EventUserCountUpdate)
}
