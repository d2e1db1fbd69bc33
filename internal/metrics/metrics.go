package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the relay. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry          *prometheus.Registry
	requestsTotal     prometheus.Counter
	errorsTotal       prometheus.Counter
	eventsTotal       *prometheus.CounterVec
	uploadsTotal      prometheus.Counter
	uploadRejections  *prometheus.CounterVec
	roomsDeleted      *prometheus.CounterVec
	filesDeleted      *prometheus.CounterVec
	activeRooms       prometheus.Gauge
	activeConnections prometheus.Gauge
}

// New creates and registers the collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "syncstream_http_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "syncstream_http_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "syncstream_events_total",
			Help: "Inbound websocket events dispatched, by event name",
		}, []string{"event"}),
		uploadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "syncstream_uploads_total",
			Help: "Video files stored successfully",
		}),
		uploadRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "syncstream_upload_rejections_total",
			Help: "Uploads refused, by reason",
		}, []string{"reason"}),
		roomsDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "syncstream_rooms_deleted_total",
			Help: "Rooms removed from the registry, by reason",
		}, []string{"reason"}),
		filesDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "syncstream_files_deleted_total",
			Help: "Uploaded files removed, by reason",
		}, []string{"reason"}),
		activeRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "syncstream_active_rooms",
			Help: "Rooms currently held in memory",
		}),
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "syncstream_active_connections",
			Help: "Open websocket connections",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.eventsTotal,
		m.uploadsTotal,
		m.uploadRejections,
		m.roomsDeleted,
		m.filesDeleted,
		m.activeRooms,
		m.activeConnections,
	)
	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

// IncErrors increments the error response counter.
func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// IncEvent counts one dispatched inbound event.
func (m *Metrics) IncEvent(event string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(event).Inc()
}

func (m *Metrics) IncUploads() {
	if m == nil {
		return
	}
	m.uploadsTotal.Inc()
}

func (m *Metrics) IncUploadRejected(reason string) {
	if m == nil {
		return
	}
	m.uploadRejections.WithLabelValues(reason).Inc()
}

// IncRoomsDeleted counts a room removal. reason is "empty" or "expired".
func (m *Metrics) IncRoomsDeleted(reason string) {
	if m == nil {
		return
	}
	m.roomsDeleted.WithLabelValues(reason).Inc()
}

// AddFilesDeleted counts removed uploads. reason is "room" or "orphan".
func (m *Metrics) AddFilesDeleted(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.filesDeleted.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) SetActiveRooms(n int) {
	if m == nil {
		return
	}
	m.activeRooms.Set(float64(n))
}

func (m *Metrics) IncConnections() {
	if m == nil {
		return
	}
	m.activeConnections.Inc()
}

func (m *Metrics) DecConnections() {
	if m == nil {
		return
	}
	m.activeConnections.Dec()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the Prometheus exposition format. updateGauges runs before
// each scrape so gauges reflect live state.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			http.NotFound(w, r)
			return
		}
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
