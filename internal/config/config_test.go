package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HaPhanBaoMinh/kwatch/internal/domain"
	"github.com/HaPhanBaoMinh/kwatch/internal/resources"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", "/home/me")
	cfg, err := Load("", nil)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "/home/me/.kube/config", cfg.Kubeconfig)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, time.Minute, cfg.OwnerCacheTTL)
	assert.Equal(t, resources.PolicyLenient, cfg.Policy())
	assert.Equal(t, []string{"log"}, cfg.Sink.Types)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)

	kinds, err := cfg.Kinds()
	require.NoError(t, err)
	assert.Equal(t, domain.WatchableKinds, kinds)
	assert.Equal(t, "/home/me/.kube/config", cfg.Ref())
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
cluster:
  cloud_provider_id: aws:123
  cluster_id: c-1
poll_interval: 1m
quantity_policy: strict
watch_kinds: [pod, node]
sink:
  types: [log, kafka]
  kafka:
    brokers: [kafka-0:9092]
`), 0o600))
	t.Setenv("KWATCH_CLUSTER_CLUSTER_NAME", "prod")
	t.Setenv("KWATCH_LOG_LEVEL", "warn")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("context", "", "")
	flags.String("http-addr", "", "")
	require.NoError(t, flags.Parse([]string{"--context=prod-admin"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "warn", cfg.Log.Level, "env beats file")
	assert.Equal(t, "prod", cfg.Cluster.ClusterName)
	assert.Equal(t, "aws:123", cfg.Identity().CloudProviderID)
	assert.Equal(t, time.Minute, cfg.PollInterval)
	assert.Equal(t, resources.PolicyStrict, cfg.Policy())
	assert.Equal(t, []string{"kafka-0:9092"}, cfg.Sink.Kafka.Brokers)
	assert.Equal(t, "kwatch.events", cfg.Sink.Kafka.Topic)
	assert.Equal(t, ":8080", cfg.HTTP.Addr, "unset flag keeps default")
	assert.Equal(t, "prod-admin", cfg.Context)
	assert.Equal(t, cfg.Kubeconfig+"#prod-admin", cfg.Ref())

	kinds, err := cfg.Kinds()
	require.NoError(t, err)
	assert.Equal(t, []domain.ResourceKind{domain.ResourceKindPod, domain.ResourceKindNode}, kinds)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }, "poll_interval must be positive"},
		{"zero cache ttl", func(c *Config) { c.OwnerCacheTTL = 0 }, "owner_cache_ttl must be positive"},
		{"bad policy", func(c *Config) { c.QuantityPolicy = "sloppy" }, "unknown quantity policy"},
		{"bad kind", func(c *Config) { c.WatchKinds = []string{"Deployment"} }, "unsupported resource kind"},
		{"no kinds", func(c *Config) { c.WatchKinds = nil }, "watch_kinds cannot be empty"},
		{"no cluster id", func(c *Config) { c.Cluster.ClusterID = "" }, "cluster.cluster_id cannot be empty"},
		{"kafka without brokers", func(c *Config) { c.Sink.Types = []string{"kafka"} }, "sink.kafka.brokers"},
		{"nats without url", func(c *Config) { c.Sink.Types = []string{"nats"}; c.Sink.NATS.URL = "" }, "sink.nats.url"},
		{"unknown sink", func(c *Config) { c.Sink.Types = []string{"s3"} }, `unknown sink type "s3"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("", nil)
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestRefPrefersExplicitReference(t *testing.T) {
	cfg := &Config{Kubeconfig: "/k", Context: "dev", CredentialsRef: "in-cluster"}
	assert.Equal(t, "in-cluster", cfg.Ref())
}
