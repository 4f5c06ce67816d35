package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"

	"github.com/HaPhanBaoMinh/kwatch/internal/domain"
	"github.com/HaPhanBaoMinh/kwatch/internal/infrastructure/mock"
	"github.com/HaPhanBaoMinh/kwatch/internal/metrics"
	"github.com/HaPhanBaoMinh/kwatch/internal/registry"
	"github.com/HaPhanBaoMinh/kwatch/internal/sink"
)

var params = Params{
	Cluster:        domain.ClusterIdentity{CloudProviderID: "aws:123", ClusterID: "c-1"},
	CredentialsRef: "/etc/kwatch/kubeconfig#prod",
}

type fixture struct {
	cluster  *mock.Cluster
	provider *mock.Provider
	registry *registry.Registry
	rec      *sink.Recorder
	metrics  *metrics.Metrics
	task     *MetricsTask
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	f := &fixture{
		cluster: mock.NewCluster("https://test"),
		rec:     sink.NewRecorder(0),
		metrics: metrics.NewUnregistered(),
	}
	f.provider = mock.NewProvider(f.cluster)
	f.registry = registry.New(registry.Options{Provider: f.provider, Sink: f.rec, Logger: logger, Metrics: f.metrics})
	t.Cleanup(f.registry.Close)
	f.task = NewMetricsTask(f.registry, f.provider, f.rec, f.metrics, logger)
	return f
}

func usage(cpu, mem string) corev1.ResourceList {
	return corev1.ResourceList{
		corev1.ResourceCPU:    resource.MustParse(cpu),
		corev1.ResourceMemory: resource.MustParse(mem),
	}
}

func seedMetrics(c *mock.Cluster) {
	ts := metav1.NewTime(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	window := metav1.Duration{Duration: 30 * time.Second}
	c.SetMetrics(
		[]metricsv1beta1.NodeMetrics{{
			ObjectMeta: metav1.ObjectMeta{Name: "ip-10-0-1-5"},
			Timestamp:  ts, Window: window,
			Usage: usage("1250m", "3Gi"),
		}},
		[]metricsv1beta1.PodMetrics{{
			ObjectMeta: metav1.ObjectMeta{Name: "api-7cfb9d9c9c-9tghd", Namespace: "default"},
			Timestamp:  ts, Window: window,
			Containers: []metricsv1beta1.ContainerMetrics{
				{Name: "app", Usage: usage("120m", "200Mi")},
				{Name: "sidecar", Usage: usage("5m", "16Mi")},
			},
		}},
	)
	c.Add(string(domain.ResourceKindPod), &metav1.ObjectMeta{Name: "api-7cfb9d9c9c-9tghd", Namespace: "default", UID: types.UID("pod-1")})
	c.Add(string(domain.ResourceKindNode), &metav1.ObjectMeta{Name: "ip-10-0-1-5", UID: types.UID("node-1")})
}

func TestRunOncePublishesSnapshot(t *testing.T) {
	f := newFixture(t)
	seedMetrics(f.cluster)
	heartbeat := time.Date(2024, 5, 1, 10, 0, 15, 0, time.UTC)

	require.NoError(t, f.task.RunOnce(context.Background(), "t1", params, heartbeat))

	recs := f.rec.Records()
	require.Len(t, recs, 3)
	for _, r := range recs {
		assert.Equal(t, heartbeat, r.Timestamp)
		assert.Equal(t, "t1", r.Attributes["task_id"])
	}

	nm := recs[0].Event.(domain.NodeMetric)
	assert.Equal(t, "ip-10-0-1-5", nm.NodeName)
	assert.Equal(t, 30*time.Second, nm.Window)
	assert.Equal(t, domain.CPU(1_250_000_000), nm.Usage.CPU)
	assert.Equal(t, domain.Memory(3*1024*1024*1024), nm.Usage.Memory)

	pm := recs[1].Event.(domain.PodMetric)
	assert.Equal(t, "default/api-7cfb9d9c9c-9tghd", pm.ResourceUID())
	assert.Equal(t, domain.CPU(125_000_000), pm.Usage.CPU)
	assert.Equal(t, domain.Memory(216*1024*1024), pm.Usage.Memory)

	sync := recs[2].Event.(domain.ClusterSync)
	assert.Equal(t, []string{"pod-1"}, sync.ActivePodUIDs)
	assert.Equal(t, []string{"node-1"}, sync.ActiveNodeUIDs)
	assert.Equal(t, heartbeat, sync.Heartbeat)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PollRuns.WithLabelValues("success")))
}

func TestRunOnceEnsuresWatchesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.task.RunOnce(ctx, "t1", params, time.Now()))
	require.NoError(t, f.task.RunOnce(ctx, "t1", params, time.Now()))

	assert.EqualValues(t, 3, f.cluster.Subscribes())
	assert.Len(t, f.registry.IDs(), 3)
}

func TestRunOnceOnlyConfiguredKinds(t *testing.T) {
	f := newFixture(t)
	p := params
	p.Kinds = []domain.ResourceKind{domain.ResourceKindNode}

	require.NoError(t, f.task.RunOnce(context.Background(), "t1", p, time.Now()))
	list := f.registry.List()
	require.Len(t, list, 1)
	assert.Equal(t, domain.ResourceKindNode, list[0].Kind)
}

func TestRunOnceMetricsFailureKeepsWatches(t *testing.T) {
	f := newFixture(t)
	f.cluster.FailMetrics(errors.New("the server is currently unable to handle the request"))

	err := f.task.RunOnce(context.Background(), "t1", params, time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrClusterUnreachable)
	assert.Equal(t, 3, f.cluster.OpenWatches())
	assert.Empty(t, f.rec.Records())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PollRuns.WithLabelValues("failure")))

	f.cluster.FailMetrics(nil)
	require.NoError(t, f.task.RunOnce(context.Background(), "t1", params, time.Now()))
	assert.EqualValues(t, 3, f.cluster.Subscribes())
}

func TestRunOnceWatchFailure(t *testing.T) {
	f := newFixture(t)
	f.cluster.FailWatch(errors.New("connection refused"))

	err := f.task.RunOnce(context.Background(), "t1", params, time.Now())
	assert.ErrorIs(t, err, domain.ErrClusterUnreachable)
}

func TestCleanup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.task.RunOnce(ctx, "t1", params, time.Now()))

	require.NoError(t, f.task.Cleanup(ctx, "t1", params))
	assert.Empty(t, f.registry.IDs())
	assert.Zero(t, f.cluster.OpenWatches())
	assert.Equal(t, 1, f.provider.Released(params.CredentialsRef))
}

type countingExecutor struct {
	runs     atomic.Int32
	cleanups atomic.Int32
	mu       sync.Mutex
	ids      []string
}

func (c *countingExecutor) RunOnce(_ context.Context, taskID string, _ Params, _ time.Time) error {
	c.runs.Add(1)
	c.mu.Lock()
	c.ids = append(c.ids, taskID)
	c.mu.Unlock()
	return errors.New("boom")
}

func (c *countingExecutor) Cleanup(context.Context, string, Params) error {
	c.cleanups.Add(1)
	return nil
}

func TestRunnerRepeatsUntilCancelled(t *testing.T) {
	exec := &countingExecutor{}
	r := NewRunner(exec, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.Run(ctx, Job{ID: "poll", Params: params, Interval: 10 * time.Millisecond})
		close(done)
	}()

	require.Eventually(t, func() bool { return exec.runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.EqualValues(t, 1, exec.cleanups.Load())
	exec.mu.Lock()
	defer exec.mu.Unlock()
	for _, id := range exec.ids {
		assert.Equal(t, "poll", id)
	}
}
