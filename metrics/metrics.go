package metrics

import (
	"codecollab-server/core"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "codecollab"

var (
	roomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rooms_active",
		Help:      "Number of rooms with at least one member",
	})

	membersJoined = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "members_joined",
		Help:      "Number of connections currently joined to a room",
	})

	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Inbound room events by name and outcome",
	}, []string{"event", "status"})

	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broadcast_deliveries_total",
		Help:      "Outbound events handed to a connection",
	}, []string{"event"})

	droppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broadcast_dropped_total",
		Help:      "Outbound events the transport refused",
	}, []string{"event"})

	filesSharedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "files_shared_bytes_total",
		Help:      "Bytes of file content accepted into rooms",
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests received",
	}, []string{"method", "path", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func RecordEvent(event string, err error) {
	status := "ok"
	if err != nil {
		status = core.ErrorCode(err)
	}
	eventsTotal.WithLabelValues(event, status).Inc()
}

func RecordDelivery(event string) {
	deliveriesTotal.WithLabelValues(event).Inc()
}

func RecordDrop(event string) {
	droppedTotal.WithLabelValues(event).Inc()
}

func RecordFileShared(size int64) {
	filesSharedBytes.Add(float64(size))
}

func SetRoomsActive(n int) {
	roomsActive.Set(float64(n))
}

func MemberJoined() {
	membersJoined.Inc()
}

func MemberLeft() {
	membersJoined.Dec()
}

// Middleware records request counts and latency labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := []string{r.Method, path, strconv.Itoa(status)}
		httpRequests.WithLabelValues(labels...).Inc()
		httpLatency.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
