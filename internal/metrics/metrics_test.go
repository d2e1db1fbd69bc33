package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.IncRequests()
	m.IncEvent("chat-message")
	m.AddFilesDeleted("room", 2)
	m.SetActiveRooms(3)
	m.IncConnections()
	m.DecConnections()

	rr := httptest.NewRecorder()
	m.Handler(nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 from nil metrics handler, got %d", rr.Code)
	}
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.IncEvent("video-action")
	m.IncEvent("video-action")
	m.IncUploadRejected("mime")

	called := false
	rr := httptest.NewRecorder()
	m.Handler(func() {
		called = true
		m.SetActiveRooms(4)
	}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !called {
		t.Fatal("expected gauge refresh before scrape")
	}
	body := rr.Body.String()
	for _, want := range []string{
		`syncstream_events_total{event="video-action"} 2`,
		`syncstream_upload_rejections_total{reason="mime"} 1`,
		`syncstream_active_rooms 4`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestRequestMiddlewareCountsErrors(t *testing.T) {
	m := New()
	h := RequestMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bad", nil))

	rr := httptest.NewRecorder()
	m.Handler(nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	if !strings.Contains(body, "syncstream_http_requests_total 2") {
		t.Errorf("expected 2 requests in scrape:\n%s", body)
	}
	if !strings.Contains(body, "syncstream_http_errors_total 1") {
		t.Errorf("expected 1 error in scrape:\n%s", body)
	}
}
