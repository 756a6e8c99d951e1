package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func scrape(t *testing.T) []byte {
	t.Helper()
	w := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("/metrics status=%d", w.Code)
	}
	return w.Body.Bytes()
}

// TestMetricsMiddleware_EmitsRequestCounters verifies that wrapping a handler
// with MetricsMiddleware exposes request metrics via the Prometheus handler.
func TestMetricsMiddleware_EmitsRequestCounters(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	rr := httptest.NewRecorder()
	MetricsMiddleware(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if body := scrape(t); !bytes.Contains(body, []byte("pocketlm_http_requests_total")) {
		t.Fatalf("expected pocketlm_http_requests_total in metrics")
	}
}

// TestMetricsMiddleware_UsesRoutePattern ensures requests routed by the mux
// are labeled with the chi pattern instead of the raw URL path.
func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	h := newHarness(t)
	h.expect(h.do(http.MethodGet, "/models/"+tinyPath+"/progress", ""), http.StatusNotFound)

	body := scrape(t)
	if !bytes.Contains(body, []byte(`path="/models/{name}/progress"`)) {
		t.Fatalf("expected route pattern label in metrics")
	}
	if bytes.Contains(body, []byte("org%2Ftiny")) || bytes.Contains(body, []byte(`path="/models/org/tiny/progress"`)) {
		t.Fatalf("raw model path leaked into labels")
	}
}

func TestIncrementBackpressure_IncrementsCounter(t *testing.T) {
	baseline := testutil.ToFloat64(backpressureTotal.WithLabelValues("busy"))
	IncrementBackpressure("busy")
	IncrementBackpressure("busy")
	if got := testutil.ToFloat64(backpressureTotal.WithLabelValues("busy")); got < baseline+2 {
		t.Fatalf("expected backpressure counter >= %v, got %v", baseline+2, got)
	}

	before := testutil.ToFloat64(backpressureTotal.WithLabelValues("unspecified"))
	IncrementBackpressure("")
	if after := testutil.ToFloat64(backpressureTotal.WithLabelValues("unspecified")); after < before+1 {
		t.Fatalf("empty reason should count as unspecified: before=%v after=%v", before, after)
	}
}
