package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/stretchr/testify/require"
)

func TestServerExposesRegistry(t *testing.T) {
	registry := NewRegistry()
	promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Name: "ballotbox_test_total",
		Help: "test counter",
	}).Inc()

	server := NewServer("", registry, nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "ballotbox_test_total 1")
	require.Contains(t, rr.Body.String(), "go_goroutines")
}
