package internal

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Falco0906/syncstream/internal/logging"
	"github.com/Falco0906/syncstream/internal/media"
	"github.com/Falco0906/syncstream/internal/metrics"
	"github.com/Falco0906/syncstream/internal/storage"
)

const (
	defaultMaxUploadBytes = 500 << 20
	multipartMemory       = 32 << 20
	formOverheadBytes     = 1 << 20
	maxExtensionLength    = 10
	anonymousUploader     = "Anonymous"
)

// UploadRecorder persists the record of a stored upload.
type UploadRecorder interface {
	Record(ctx context.Context, u storage.Upload) error
}

type uploadResponse struct {
	Success      bool   `json:"success"`
	VideoURL     string `json:"videoUrl"`
	Filename     string `json:"filename"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
}

// FileUploadHandler accepts video uploads for a room.
type FileUploadHandler struct {
	recorder    UploadRecorder
	blobs       media.Store
	maxFileSize int64
	metrics     *metrics.Metrics
	log         zerolog.Logger
}

// NewFileUploadHandler creates a new file upload handler.
func NewFileUploadHandler(recorder UploadRecorder, blobs media.Store, maxFileSize int64, m *metrics.Metrics, log zerolog.Logger) *FileUploadHandler {
	if maxFileSize <= 0 {
		maxFileSize = defaultMaxUploadBytes
	}
	return &FileUploadHandler{
		recorder:    recorder,
		blobs:       blobs,
		maxFileSize: maxFileSize,
		metrics:     m,
		log:         log,
	}
}

// HandleUpload stores the multipart "video" field and records it against roomId.
func (h *FileUploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	log := logging.Ctx(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+formOverheadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.reject(w, http.StatusRequestEntityTooLarge, "too_large", "File too large")
			return
		}
		h.reject(w, http.StatusBadRequest, "bad_form", "Invalid upload form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("video")
	if err != nil {
		h.reject(w, http.StatusBadRequest, "missing_file", "No video file uploaded")
		return
	}
	defer file.Close()

	if header.Size > h.maxFileSize {
		h.reject(w, http.StatusRequestEntityTooLarge, "too_large", "File too large")
		return
	}
	mimeType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(mimeType, "video/") {
		h.reject(w, http.StatusBadRequest, "mime", "Only video files are allowed")
		return
	}
	roomID := strings.TrimSpace(r.FormValue("roomId"))
	if roomID == "" {
		h.reject(w, http.StatusBadRequest, "missing_room", "roomId required")
		return
	}
	uploader := strings.TrimSpace(r.FormValue("displayName"))
	if uploader == "" {
		uploader = strings.TrimSpace(r.FormValue("username"))
	}
	if uploader == "" {
		uploader = anonymousUploader
	}

	originalName := filepath.Base(header.Filename)
	key := storedFilename(originalName)

	if err := h.blobs.Write(r.Context(), key, file, header.Size, mimeType); err != nil {
		log.Error().Err(err).Str(logging.FieldFile, key).Msg("store upload")
		h.reject(w, http.StatusInternalServerError, "storage", "Upload failed")
		return
	}
	videoURL, err := h.blobs.URL(r.Context(), key)
	if err != nil {
		h.discard(key)
		log.Error().Err(err).Str(logging.FieldFile, key).Msg("resolve upload url")
		h.reject(w, http.StatusInternalServerError, "storage", "Upload failed")
		return
	}
	record := storage.Upload{
		Filename:     key,
		OriginalName: originalName,
		Size:         header.Size,
		MimeType:     mimeType,
		UploadedBy:   uploader,
		RoomID:       roomID,
		UploadedAt:   time.Now(),
	}
	if err := h.recorder.Record(r.Context(), record); err != nil {
		h.discard(key)
		log.Error().Err(err).Str(logging.FieldFile, key).Msg("record upload")
		h.reject(w, http.StatusInternalServerError, "ledger", "Upload failed")
		return
	}

	h.metrics.IncUploads()
	log.Info().Str(logging.FieldRoomID, roomID).Str(logging.FieldFile, key).Int64("size", header.Size).Msg("video uploaded")
	writeJSON(w, http.StatusOK, uploadResponse{
		Success:      true,
		VideoURL:     videoURL,
		Filename:     key,
		OriginalName: originalName,
		Size:         header.Size,
	})
}

func (h *FileUploadHandler) reject(w http.ResponseWriter, status int, reason, message string) {
	h.metrics.IncUploadRejected(reason)
	writeError(w, status, errors.New(message))
}

func (h *FileUploadHandler) discard(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.blobs.Delete(ctx, key); err != nil {
		h.log.Warn().Err(err).Str(logging.FieldFile, key).Msg("discard upload")
	}
}

// storedFilename returns an unguessable name that keeps a safe extension.
func storedFilename(original string) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + sanitizeExtension(filepath.Ext(original))
}

// sanitizeExtension keeps a short lowercase alphanumeric extension or drops it.
func sanitizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" || len(ext) > maxExtensionLength {
		return ""
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return "." + ext
}
