package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/HaPhanBaoMinh/kwatch/internal/config"
	"github.com/HaPhanBaoMinh/kwatch/internal/domain"
	"github.com/HaPhanBaoMinh/kwatch/internal/infrastructure/k8s"
	"github.com/HaPhanBaoMinh/kwatch/internal/infrastructure/mock"
	"github.com/HaPhanBaoMinh/kwatch/internal/metrics"
	"github.com/HaPhanBaoMinh/kwatch/internal/owner"
	"github.com/HaPhanBaoMinh/kwatch/internal/registry"
	"github.com/HaPhanBaoMinh/kwatch/internal/sink"
	"github.com/HaPhanBaoMinh/kwatch/internal/task"
)

const simulateInterval = 2 * time.Second

// agent is the watch registry plus the recurring metrics task for the
// configured cluster, publishing to the configured sinks.
type agent struct {
	cfg    *config.Config
	logger *zap.Logger

	gatherer prometheus.Gatherer
	metrics  *metrics.Metrics
	provider domain.ClientProvider
	sim      *mock.Simulator
	sink     domain.EventSink
	registry *registry.Registry
	closers  []func() error
}

// newAgent wires the agent. extra sinks receive every event next to the
// configured ones.
func newAgent(cfg *config.Config, logger *zap.Logger, extra ...domain.EventSink) (*agent, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a := &agent{cfg: cfg, logger: logger, gatherer: reg, metrics: metrics.New(reg)}

	sinks, err := a.openSinks()
	if err != nil {
		a.close()
		return nil, err
	}
	a.sink = sink.NewMulti(a.metrics, append(sinks, extra...)...)

	if cfg.Mock {
		cluster := mock.NewCluster("mock://" + cfg.Cluster.ClusterID)
		a.sim = mock.NewSimulator(cluster, time.Now().UnixNano())
		a.provider = mock.NewProvider(cluster)
		logger.Info("Using simulated cluster")
	} else {
		a.provider = k8s.NewPool(cfg.Kubeconfig, logger)
	}

	a.registry = registry.New(registry.Options{
		Provider: a.provider,
		Sink:     a.sink,
		Resolver: owner.NewResolver(owner.NewCache(cfg.OwnerCacheTTL), logger,
			owner.WithCacheCounters(a.metrics.OwnerCacheHits, a.metrics.OwnerCacheMiss)),
		Policy:  cfg.Policy(),
		Logger:  logger,
		Metrics: a.metrics,
	})
	return a, nil
}

func (a *agent) openSinks() ([]domain.EventSink, error) {
	var out []domain.EventSink
	for _, t := range a.cfg.Sink.Types {
		switch t {
		case "log":
			out = append(out, sink.NewLog(a.logger))
		case "kafka":
			k, err := sink.NewKafka(sink.KafkaConfig{
				Brokers:  a.cfg.Sink.Kafka.Brokers,
				Topic:    a.cfg.Sink.Kafka.Topic,
				ClientID: a.cfg.Sink.Kafka.ClientID,
			}, a.metrics, a.logger)
			if err != nil {
				return nil, fmt.Errorf("kafka sink: %w", err)
			}
			a.closers = append(a.closers, k.Close)
			out = append(out, k)
		case "nats":
			n, err := sink.NewNATS(sink.NATSConfig{
				URL:           a.cfg.Sink.NATS.URL,
				Name:          "kwatch-" + a.cfg.Cluster.ClusterID,
				SubjectPrefix: a.cfg.Sink.NATS.SubjectPrefix,
			}, a.logger)
			if err != nil {
				return nil, fmt.Errorf("nats sink: %w", err)
			}
			a.closers = append(a.closers, n.Close)
			out = append(out, n)
		}
	}
	return out, nil
}

// run drives the metrics task until ctx is done. The task's cleanup deletes
// the cluster's watches on the way out.
func (a *agent) run(ctx context.Context) {
	if a.sim != nil {
		a.sim.Step()
		go a.sim.Run(ctx, simulateInterval)
	}
	kinds, _ := a.cfg.Kinds()
	exec := task.NewMetricsTask(a.registry, a.provider, a.sink, a.metrics, a.logger)
	task.NewRunner(exec, a.logger).Run(ctx, task.Job{
		ID: "metrics-" + a.cfg.Cluster.ClusterID,
		Params: task.Params{
			Cluster:        a.cfg.Identity(),
			CredentialsRef: a.cfg.Ref(),
			Kinds:          kinds,
		},
		Interval: a.cfg.PollInterval,
	})
}

func (a *agent) close() {
	if a.registry != nil {
		a.registry.Close()
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("Closing sink failed", zap.Error(err))
		}
	}
}
