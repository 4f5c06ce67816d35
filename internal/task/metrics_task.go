package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"

	"github.com/HaPhanBaoMinh/kwatch/internal/domain"
	"github.com/HaPhanBaoMinh/kwatch/internal/metrics"
	"github.com/HaPhanBaoMinh/kwatch/internal/resources"
)

// Watches is the part of the registry the poll needs.
type Watches interface {
	Create(ctx context.Context, req domain.WatchRequest) (string, error)
	DeleteTarget(target string) []string
}

// MetricsTask keeps the watches for a cluster alive and publishes a metrics
// snapshot on every run.
type MetricsTask struct {
	watches  Watches
	provider domain.ClientProvider
	sink     domain.EventSink
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewMetricsTask(w Watches, p domain.ClientProvider, s domain.EventSink, m *metrics.Metrics, logger *zap.Logger) *MetricsTask {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &MetricsTask{watches: w, provider: p, sink: s, metrics: m, logger: logger.Named("metrics-task")}
}

func (t *MetricsTask) RunOnce(ctx context.Context, taskID string, params Params, heartbeat time.Time) (err error) {
	start := time.Now()
	defer func() {
		t.metrics.PollDuration.Observe(time.Since(start).Seconds())
		result := "success"
		if err != nil {
			result = "failure"
		}
		t.metrics.PollRuns.WithLabelValues(result).Inc()
	}()

	for _, kind := range params.kinds() {
		_, err := t.watches.Create(ctx, domain.WatchRequest{
			Cluster:        params.Cluster,
			Kind:           kind,
			CredentialsRef: params.CredentialsRef,
		})
		if err != nil {
			return fmt.Errorf("ensure %s watch: %w", kind, err)
		}
	}

	client, err := t.provider.Client(ctx, params.CredentialsRef)
	if err != nil {
		return unreachable("connect", err)
	}
	nodes, err := client.ListNodeMetrics(ctx)
	if err != nil {
		return unreachable("list node metrics", err)
	}
	pods, err := client.ListPodMetrics(ctx)
	if err != nil {
		return unreachable("list pod metrics", err)
	}

	attrs := map[string]string{"task_id": taskID}
	for i := range nodes {
		t.sink.Publish(nodeMetric(params.Cluster, &nodes[i]), heartbeat, attrs)
	}
	for i := range pods {
		t.sink.Publish(podMetric(params.Cluster, &pods[i]), heartbeat, attrs)
	}
	t.publishSync(ctx, client, params.Cluster, heartbeat, attrs)

	t.logger.Debug("Poll done",
		zap.String("task", taskID),
		zap.String("cluster", params.Cluster.ClusterID),
		zap.Int("nodes", len(nodes)),
		zap.Int("pods", len(pods)))
	return nil
}

// publishSync is best effort; a missing sync only delays record cleanup downstream.
func (t *MetricsTask) publishSync(ctx context.Context, client domain.ClusterClient, cluster domain.ClusterIdentity, heartbeat time.Time, attrs map[string]string) {
	podUIDs, err := client.ListUIDs(ctx, domain.ResourceKindPod)
	if err != nil {
		t.logger.Warn("Skipping cluster sync", zap.Error(err))
		return
	}
	nodeUIDs, err := client.ListUIDs(ctx, domain.ResourceKindNode)
	if err != nil {
		t.logger.Warn("Skipping cluster sync", zap.Error(err))
		return
	}
	t.sink.Publish(domain.ClusterSync{
		ClusterIdentity: cluster,
		ActivePodUIDs:   podUIDs,
		ActiveNodeUIDs:  nodeUIDs,
		Heartbeat:       heartbeat,
	}, heartbeat, attrs)
}

// Cleanup deletes the watches on the target and drops the pooled client.
func (t *MetricsTask) Cleanup(ctx context.Context, taskID string, params Params) error {
	ids := t.watches.DeleteTarget(params.Cluster.CloudProviderID)
	t.provider.Release(params.CredentialsRef)
	t.logger.Info("Task cleaned up", zap.String("task", taskID), zap.Strings("watches", ids))
	return nil
}

func unreachable(op string, err error) error {
	if errors.Is(err, domain.ErrClusterUnreachable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, domain.ErrClusterUnreachable, err)
}

func nodeMetric(cluster domain.ClusterIdentity, nm *metricsv1beta1.NodeMetrics) domain.NodeMetric {
	return domain.NodeMetric{
		ClusterIdentity: cluster,
		NodeName:        nm.Name,
		Timestamp:       nm.Timestamp.Time,
		Window:          nm.Window.Duration,
		Usage: domain.Resource{
			CPU:    domain.CPU(resources.FromQuantity(*nm.Usage.Cpu(), true)),
			Memory: domain.Memory(resources.FromQuantity(*nm.Usage.Memory(), false)),
		},
	}
}

func podMetric(cluster domain.ClusterIdentity, pm *metricsv1beta1.PodMetrics) domain.PodMetric {
	var cpu, mem int64
	for _, c := range pm.Containers {
		cpu += resources.FromQuantity(*c.Usage.Cpu(), true)
		mem += resources.FromQuantity(*c.Usage.Memory(), false)
	}
	return domain.PodMetric{
		ClusterIdentity: cluster,
		Namespace:       pm.Namespace,
		PodName:         pm.Name,
		Timestamp:       pm.Timestamp.Time,
		Window:          pm.Window.Duration,
		Usage:           domain.Resource{CPU: domain.CPU(cpu), Memory: domain.Memory(mem)},
	}
}
