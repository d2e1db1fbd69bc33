package janitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Falco0906/syncstream/internal/media"
	"github.com/Falco0906/syncstream/internal/storage"
)

type roomSet map[string]bool

func (s roomSet) Exists(id string) bool { return s[id] }

type fixture struct {
	j      *Janitor
	ledger *storage.Store
	blobs  *media.Local
	rooms  roomSet
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ledger, err := storage.NewStore("sqlite://file:" + t.Name() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = ledger.Close() })
	if err := ledger.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	blobs, err := media.NewLocal(media.LocalConfig{BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	f := &fixture{ledger: ledger, blobs: blobs, rooms: roomSet{}, now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	f.j = New(f.rooms, ledger, blobs, WithClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) upload(t *testing.T, name, room string, age time.Duration) {
	t.Helper()
	if err := f.blobs.Write(context.Background(), name, strings.NewReader("data"), 4, "video/mp4"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	err := f.j.Record(context.Background(), storage.Upload{
		Filename: name, OriginalName: name, Size: 4, MimeType: "video/mp4",
		UploadedBy: "alice", RoomID: room, UploadedAt: f.now.Add(-age),
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
}

func TestCleanupRoomRemovesOnlyThatRoom(t *testing.T) {
	f := newFixture(t)
	f.upload(t, "a.mp4", "r1", time.Minute)
	f.upload(t, "b.mp4", "r1", time.Minute)
	f.upload(t, "c.mp4", "r2", time.Minute)

	if n := f.j.CleanupRoom("r1"); n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
	if f.blobs.Exists("a.mp4") || f.blobs.Exists("b.mp4") {
		t.Fatal("room files still on disk")
	}
	if !f.blobs.Exists("c.mp4") {
		t.Fatal("other room's file was removed")
	}
	if recs, _ := f.ledger.ListUploadsByRoom(context.Background(), "r2"); len(recs) != 1 || recs[0].Filename != "c.mp4" {
		t.Fatal("other room's record was removed")
	}
	if n := f.j.CleanupRoom("r1"); n != 0 {
		t.Fatalf("second cleanup must be a no-op, removed %d", n)
	}
}

func TestSweepOrphansExactlyOnce(t *testing.T) {
	f := newFixture(t)
	f.rooms["live"] = true
	f.upload(t, "orphan-old.mp4", "gone", 25*time.Hour)
	f.upload(t, "orphan-young.mp4", "gone", time.Hour)
	f.upload(t, "live-old.mp4", "live", 48*time.Hour)

	if n := f.j.SweepOrphans(24 * time.Hour); n != 1 {
		t.Fatalf("expected 1 orphan removed, got %d", n)
	}
	if f.blobs.Exists("orphan-old.mp4") {
		t.Fatal("orphan still on disk")
	}
	if !f.blobs.Exists("orphan-young.mp4") || !f.blobs.Exists("live-old.mp4") {
		t.Fatal("sweep removed a file it should keep")
	}
	if n := f.j.SweepOrphans(24 * time.Hour); n != 0 {
		t.Fatalf("re-run must be a no-op, removed %d", n)
	}
}

func TestConcurrentCleanupClaimsOnce(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"1.mp4", "2.mp4", "3.mp4", "4.mp4"} {
		f.upload(t, name, "gone", 30*time.Hour)
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var n int
			if i%2 == 0 {
				n = f.j.CleanupRoom("gone")
			} else {
				n = f.j.SweepOrphans(24 * time.Hour)
			}
			mu.Lock()
			total += n
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	if total != 4 {
		t.Fatalf("expected each file removed exactly once, total %d", total)
	}
}

type failingBlobs struct{ media.Store }

func (failingBlobs) Delete(context.Context, string) error { return errors.New("disk on fire") }

func TestBlobFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.upload(t, "a.mp4", "r1", time.Minute)
	j := New(f.rooms, f.ledger, failingBlobs{f.blobs})
	if n := j.CleanupRoom("r1"); n != 1 {
		t.Fatalf("record should still be claimed, got %d", n)
	}
	if n, _ := f.ledger.CountUploads(context.Background()); n != 0 {
		t.Fatal("record must be gone after claim")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.j.Run(ctx, time.Millisecond, time.Hour)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
