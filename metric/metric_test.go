package metric

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIncIncrementsStatefulRejections(t *testing.T) {
	r := NewRegistry()

	r.Inc()
	r.Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ledgerd_stateful_rejections_total 2")
}

func TestHandlerExposesEveryCollector(t *testing.T) {
	r := NewRegistry()
	r.ProposalsEmitted.Inc()
	r.SyncRetries.Inc()
	r.CommitLatency.Observe(0.5)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	require.Contains(t, body, "ledgerd_proposals_emitted_total 1")
	require.Contains(t, body, "ledgerd_sync_retries_total 1")
	require.Contains(t, body, "ledgerd_commit_latency_seconds")
	require.Contains(t, body, "go_goroutines")
}
