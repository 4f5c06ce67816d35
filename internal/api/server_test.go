package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/HaPhanBaoMinh/kwatch/internal/domain"
	"github.com/HaPhanBaoMinh/kwatch/internal/infrastructure/mock"
	"github.com/HaPhanBaoMinh/kwatch/internal/metrics"
	"github.com/HaPhanBaoMinh/kwatch/internal/registry"
	"github.com/HaPhanBaoMinh/kwatch/internal/sink"
)

type fixture struct {
	cluster  *mock.Cluster
	registry *registry.Registry
	handler  http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	c := mock.NewCluster("https://test")
	r := registry.New(registry.Options{
		Provider: mock.NewProvider(c),
		Sink:     sink.NewRecorder(0),
		Logger:   zaptest.NewLogger(t),
		Metrics:  m,
	})
	t.Cleanup(r.Close)
	return &fixture{
		cluster:  c,
		registry: r,
		handler:  NewServer(r, reg, []string{"*"}, zaptest.NewLogger(t)).Handler(),
	}
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateListDelete(t *testing.T) {
	f := newFixture(t)
	body := CreateWatchRequest{CloudProviderID: "aws:123", ResourceKind: "pod", CredentialsRef: "in-cluster"}

	rec := f.do("POST", "/v1/watches", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created CreateWatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, domain.WatchKey{Target: "aws:123", Kind: domain.ResourceKindPod}.ID(), created.WatchID)

	rec = f.do("POST", "/v1/watches", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, f.cluster.Subscribes())

	rec = f.do("GET", "/v1/watches", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []domain.WatchInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, created.WatchID, list[0].ID)
	assert.Equal(t, "aws:123", list[0].Cluster.ClusterID, "cluster id defaults to the provider id")

	rec = f.do("DELETE", "/v1/watches/"+created.WatchID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do("DELETE", "/v1/watches/"+created.WatchID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, f.registry.IDs())
	assert.EqualValues(t, 1, f.cluster.Stops())
}

func TestCreateRejectsBadRequests(t *testing.T) {
	f := newFixture(t)

	rec := f.do("POST", "/v1/watches", CreateWatchRequest{CloudProviderID: "aws:123", ResourceKind: "Deployment"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported resource kind")

	rec = f.do("POST", "/v1/watches", CreateWatchRequest{ResourceKind: "Pod"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest("POST", "/v1/watches", strings.NewReader("{"))
	resp := httptest.NewRecorder()
	f.handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	assert.Zero(t, f.cluster.Subscribes())
}

func TestCreateClusterUnreachable(t *testing.T) {
	f := newFixture(t)
	f.cluster.FailWatch(errors.New("no route to host"))

	rec := f.do("POST", "/v1/watches", CreateWatchRequest{CloudProviderID: "aws:123", ResourceKind: "Node"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	f.do("POST", "/v1/watches", CreateWatchRequest{CloudProviderID: "aws:123", ResourceKind: "Node"})

	rec := f.do("GET", "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do("GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `kwatch_active_watches{kind="Node"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest("OPTIONS", "/v1/watches", nil)
	req.Header.Set("Origin", "https://dashboard.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
