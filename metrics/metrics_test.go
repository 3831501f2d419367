package metrics

import (
	"codecollab-server/core"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordEvent(t *testing.T) {
	before := testutil.ToFloat64(eventsTotal.WithLabelValues("codeChange", "not_a_member"))
	RecordEvent("codeChange", fmt.Errorf("edit: %w", core.ErrNotAMember))
	after := testutil.ToFloat64(eventsTotal.WithLabelValues("codeChange", "not_a_member"))
	if after-before != 1 {
		t.Errorf("not_a_member counter delta = %v, want 1", after-before)
	}

	before = testutil.ToFloat64(eventsTotal.WithLabelValues("codeChange", "ok"))
	RecordEvent("codeChange", nil)
	after = testutil.ToFloat64(eventsTotal.WithLabelValues("codeChange", "ok"))
	if after-before != 1 {
		t.Errorf("ok counter delta = %v, want 1", after-before)
	}
}

func TestMembersGauge(t *testing.T) {
	before := testutil.ToFloat64(membersJoined)
	MemberJoined()
	MemberJoined()
	MemberLeft()
	if got := testutil.ToFloat64(membersJoined) - before; got != 1 {
		t.Errorf("members gauge delta = %v, want 1", got)
	}
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/rooms/{roomId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	counter := httpRequests.WithLabelValues(http.MethodGet, "/api/rooms/{roomId}", "404")
	before := testutil.ToFloat64(counter)

	req := httptest.NewRequest(http.MethodGet, "/api/rooms/abc", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusNotFound)
	}
	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("request counter delta = %v, want 1", got)
	}
}
