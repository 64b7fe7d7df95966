package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_Healthz(t *testing.T) {
	srv := httptest.NewServer(Handler(prometheus.NewRegistry()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestHandler_CustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "cyclearb_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Add(3)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.Contains(string(body), "cyclearb_test_total 3"), string(body))
}

func TestVars_Registered(t *testing.T) {
	LiquidityDrops.WithLabelValues("missing").Inc()
	assert.GreaterOrEqual(t, testutil.ToFloat64(LiquidityDrops.WithLabelValues("missing")), 1.0)

	n, err := testutil.GatherAndCount(prometheus.DefaultGatherer, "cyclearb_liquidity_drops_total")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
}
