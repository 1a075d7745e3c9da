package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/event-admin-services/common/gate"
)

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "error", statusClass(0))
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "4xx", statusClass(401))
	assert.Equal(t, "5xx", statusClass(503))
}

func TestGateObserverCounts(t *testing.T) {
	obs := GateObserver()
	before := testutil.ToFloat64(gateEvents.WithLabelValues("otp", "blocked"))

	obs.OnEvent(gate.Event{Kind: gate.KindOTP, Name: "blocked"})
	obs.OnEvent(gate.Event{Kind: gate.KindOTP, Name: "blocked"})

	assert.Equal(t, before+2, testutil.ToFloat64(gateEvents.WithLabelValues("otp", "blocked")))
}

func TestHandlerServesMetrics(t *testing.T) {
	TrackRequest(http.MethodGet, "/api/events", 200, 15*time.Millisecond)
	TrackBackendCall(http.MethodGet, 0, time.Second)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "admin_gateway_http_requests_total")
	assert.Contains(t, rec.Body.String(), `status_class="error"`)
}
