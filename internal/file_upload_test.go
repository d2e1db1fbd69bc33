package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Falco0906/syncstream/internal/media"
	"github.com/Falco0906/syncstream/internal/storage"
)

type fakeRecorder struct {
	mu      sync.Mutex
	uploads []storage.Upload
	err     error
}

func (f *fakeRecorder) Record(ctx context.Context, u storage.Upload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.uploads = append(f.uploads, u)
	return nil
}

func (f *fakeRecorder) recorded() []storage.Upload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storage.Upload(nil), f.uploads...)
}

func newUploadHandler(t *testing.T, maxBytes int64) (*FileUploadHandler, *fakeRecorder, *media.Local) {
	t.Helper()
	blobs, err := media.NewLocal(media.LocalConfig{BasePath: t.TempDir(), URLPrefix: "/uploads"})
	if err != nil {
		t.Fatalf("local media: %v", err)
	}
	rec := &fakeRecorder{}
	return NewFileUploadHandler(rec, blobs, maxBytes, nil, zerolog.Nop()), rec, blobs
}

func newUploadRequest(t *testing.T, filename, contentType string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := form.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if filename != "" {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="video"; filename=%q`, filename))
		header.Set("Content-Type", contentType)
		part, err := form.CreatePart(header)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := form.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	return req
}

func visibleFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	return names
}

func TestUploadStoresAndRecordsVideo(t *testing.T) {
	handler, rec, blobs := newUploadHandler(t, 1<<20)
	content := []byte("not really a video but the bytes are opaque")
	req := newUploadRequest(t, "Holiday Clip.MP4", "video/mp4", content, map[string]string{
		"roomId":   "abcd1234",
		"username": "Alice",
	})
	rr := httptest.NewRecorder()
	handler.HandleUpload(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp uploadResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.OriginalName != "Holiday Clip.MP4" || resp.Size != int64(len(content)) {
		t.Fatalf("unexpected response %+v", resp)
	}
	if !strings.HasSuffix(resp.Filename, ".mp4") || len(resp.Filename) != 32+len(".mp4") {
		t.Fatalf("unexpected stored name %q", resp.Filename)
	}
	if resp.VideoURL != "/uploads/"+resp.Filename {
		t.Fatalf("unexpected url %q", resp.VideoURL)
	}
	if !blobs.Exists(resp.Filename) {
		t.Fatalf("expected %s on disk", resp.Filename)
	}

	uploads := rec.recorded()
	if len(uploads) != 1 {
		t.Fatalf("expected 1 record, got %d", len(uploads))
	}
	u := uploads[0]
	if u.RoomID != "abcd1234" || u.UploadedBy != "Alice" || u.Filename != resp.Filename || u.MimeType != "video/mp4" {
		t.Fatalf("unexpected record %+v", u)
	}
}

func TestUploadRejections(t *testing.T) {
	tests := []struct {
		name        string
		maxBytes    int64
		filename    string
		contentType string
		content     []byte
		fields      map[string]string
		want        int
	}{
		{"non video", 1 << 20, "notes.txt", "text/plain", []byte("hello"), map[string]string{"roomId": "r1"}, http.StatusBadRequest},
		{"missing file", 1 << 20, "", "", nil, map[string]string{"roomId": "r1"}, http.StatusBadRequest},
		{"missing room", 1 << 20, "a.mp4", "video/mp4", []byte("x"), nil, http.StatusBadRequest},
		{"too large", 10, "big.mp4", "video/mp4", bytes.Repeat([]byte("x"), 100), map[string]string{"roomId": "r1"}, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler, rec, blobs := newUploadHandler(t, tc.maxBytes)
			rr := httptest.NewRecorder()
			handler.HandleUpload(rr, newUploadRequest(t, tc.filename, tc.contentType, tc.content, tc.fields))
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rr.Code, rr.Body.String())
			}
			var body map[string]string
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || body["error"] == "" {
				t.Fatalf("expected json error body, got %q", rr.Body.String())
			}
			if n := len(rec.recorded()); n != 0 {
				t.Fatalf("expected no records, got %d", n)
			}
			if files := visibleFiles(t, blobs.Dir()); len(files) != 0 {
				t.Fatalf("expected no stored files, got %v", files)
			}
		})
	}
}

func TestUploadDiscardsBlobWhenLedgerFails(t *testing.T) {
	handler, rec, blobs := newUploadHandler(t, 1<<20)
	rec.err = errors.New("disk full")
	rr := httptest.NewRecorder()
	handler.HandleUpload(rr, newUploadRequest(t, "a.webm", "video/webm", []byte("data"), map[string]string{"roomId": "r1"}))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if files := visibleFiles(t, blobs.Dir()); len(files) != 0 {
		t.Fatalf("expected blob to be removed, got %v", files)
	}
}

func TestUploadRejectsGet(t *testing.T) {
	handler, _, _ := newUploadHandler(t, 1<<20)
	rr := httptest.NewRecorder()
	handler.HandleUpload(rr, httptest.NewRequest(http.MethodGet, "/upload", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestSanitizeExtension(t *testing.T) {
	cases := map[string]string{
		".mp4":         ".mp4",
		".MKV":         ".mkv",
		"":             "",
		".":            "",
		".tar.gz":      "",
		".a/b":         "",
		".verylongext": "",
		".m4v":         ".m4v",
	}
	for in, want := range cases {
		if got := sanitizeExtension(in); got != want {
			t.Errorf("sanitizeExtension(%q) = %q, want %q", in, got, want)
		}
	}
}
