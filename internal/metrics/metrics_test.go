package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.DocumentsTotal.WithLabelValues("ingested").Inc()
	m.RetrievalsTotal.WithLabelValues("ok").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocumentsTotal.WithLabelValues("ingested")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RetrievalsTotal.WithLabelValues("ok")))

	assert.Panics(t, func() { New(reg) }, "double registration")
}

func TestRegisterCacheStats(t *testing.T) {
	reg := prometheus.NewRegistry()
	RegisterCacheStats(reg, func() (int64, int64) { return 7, 3 })

	n, err := testutil.GatherAndCount(reg, "courserag_embedding_cache_hits_total", "courserag_embedding_cache_misses_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ChunksStoredTotal.Add(5)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "courserag_chunks_stored_total 5")
}
