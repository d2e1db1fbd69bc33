// Package janitor removes uploaded media once nothing can reference it.
//
// A file is removed when its room is deleted, or by the periodic sweep once
// it is older than the retention age and its room no longer exists. Each
// removal first claims the ledger row and only then deletes the bytes, so
// concurrent cleanups never delete the same file twice.
package janitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Falco0906/syncstream/internal/logging"
	"github.com/Falco0906/syncstream/internal/media"
	"github.com/Falco0906/syncstream/internal/metrics"
	"github.com/Falco0906/syncstream/internal/storage"
)

const defaultOpTimeout = 30 * time.Second

// RoomLookup answers whether a room is still live.
type RoomLookup interface {
	Exists(roomID string) bool
}

// Ledger is the record store for uploaded files.
type Ledger interface {
	InsertUpload(ctx context.Context, u storage.Upload) error
	ListUploadsByRoom(ctx context.Context, roomID string) ([]storage.Upload, error)
	ListUploadsBefore(ctx context.Context, cutoff time.Time) ([]storage.Upload, error)
	DeleteUpload(ctx context.Context, filename string) (bool, error)
}

// Janitor owns the upload records.
type Janitor struct {
	rooms   RoomLookup
	ledger  Ledger
	blobs   media.Store
	log     zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	timeout time.Duration
}

// Option configures a Janitor.
type Option func(*Janitor)

func WithClock(now func() time.Time) Option {
	return func(j *Janitor) {
		if now != nil {
			j.now = now
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(j *Janitor) { j.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(j *Janitor) { j.metrics = m }
}

// New wires a janitor.
func New(rooms RoomLookup, ledger Ledger, blobs media.Store, opts ...Option) *Janitor {
	j := &Janitor{
		rooms:   rooms,
		ledger:  ledger,
		blobs:   blobs,
		log:     zerolog.Nop(),
		now:     time.Now,
		timeout: defaultOpTimeout,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Record stores a new upload record.
func (j *Janitor) Record(ctx context.Context, u storage.Upload) error {
	if u.UploadedAt.IsZero() {
		u.UploadedAt = j.now()
	}
	return j.ledger.InsertUpload(ctx, u)
}

// CleanupRoom deletes every file recorded for roomID and returns how many
// were removed. Failures are logged and skipped.
func (j *Janitor) CleanupRoom(roomID string) int {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	uploads, err := j.ledger.ListUploadsByRoom(ctx, roomID)
	if err != nil {
		j.log.Error().Err(err).Str(logging.FieldRoomID, roomID).Msg("list room uploads")
		return 0
	}
	n := j.removeAll(ctx, uploads)
	if n > 0 {
		j.log.Info().Str(logging.FieldRoomID, roomID).Int(logging.FieldRemoved, n).Msg("room uploads cleaned")
	}
	j.metrics.AddFilesDeleted("room", n)
	return n
}

// SweepOrphans deletes files older than maxAge whose room no longer exists.
func (j *Janitor) SweepOrphans(maxAge time.Duration) int {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	uploads, err := j.ledger.ListUploadsBefore(ctx, j.now().Add(-maxAge))
	if err != nil {
		j.log.Error().Err(err).Msg("list expired uploads")
		return 0
	}
	orphans := uploads[:0]
	for _, u := range uploads {
		if !j.rooms.Exists(u.RoomID) {
			orphans = append(orphans, u)
		}
	}
	n := j.removeAll(ctx, orphans)
	if n > 0 {
		j.log.Info().Int(logging.FieldRemoved, n).Msg("orphaned uploads swept")
	}
	j.metrics.AddFilesDeleted("orphan", n)
	return n
}

// Run calls SweepOrphans every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context, interval, maxAge time.Duration) {
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
			j.SweepOrphans(maxAge)
		}
	}
}

func (j *Janitor) removeAll(ctx context.Context, uploads []storage.Upload) int {
	removed := 0
	for _, u := range uploads {
		claimed, err := j.ledger.DeleteUpload(ctx, u.Filename)
		if err != nil {
			j.log.Warn().Err(err).Str(logging.FieldFile, u.Filename).Msg("delete upload record")
			continue
		}
		if !claimed {
			continue
		}
		if err := j.blobs.Delete(ctx, u.Filename); err != nil {
			j.log.Warn().Err(err).Str(logging.FieldFile, u.Filename).Msg("delete upload file")
		}
		removed++
	}
	return removed
}
