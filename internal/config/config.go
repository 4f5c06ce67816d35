// Package config loads agent settings from file, environment and flags.
package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/HaPhanBaoMinh/kwatch/internal/domain"
	"github.com/HaPhanBaoMinh/kwatch/internal/resources"
)

// EnvPrefix is prepended to every environment override, e.g. KWATCH_LOG_LEVEL.
const EnvPrefix = "KWATCH"

type Config struct {
	Log LogConfig `mapstructure:"log"`

	// Kubernetes access
	Kubeconfig     string `mapstructure:"kubeconfig"`
	Context        string `mapstructure:"context"`
	CredentialsRef string `mapstructure:"credentials_ref"`
	Mock           bool   `mapstructure:"mock"`

	Cluster ClusterConfig `mapstructure:"cluster"`

	PollInterval   time.Duration `mapstructure:"poll_interval"`
	OwnerCacheTTL  time.Duration `mapstructure:"owner_cache_ttl"`
	QuantityPolicy string        `mapstructure:"quantity_policy"`
	WatchKinds     []string      `mapstructure:"watch_kinds"`

	Sink SinkConfig `mapstructure:"sink"`
	HTTP HTTPConfig `mapstructure:"http"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ClusterConfig struct {
	CloudProviderID string `mapstructure:"cloud_provider_id"`
	ClusterID       string `mapstructure:"cluster_id"`
	ClusterName     string `mapstructure:"cluster_name"`
}

type SinkConfig struct {
	// Types lists the enabled sinks: log, kafka, nats.
	Types []string    `mapstructure:"types"`
	Kafka KafkaConfig `mapstructure:"kafka"`
	NATS  NATSConfig  `mapstructure:"nats"`
}

type KafkaConfig struct {
	Brokers  []string `mapstructure:"brokers"`
	Topic    string   `mapstructure:"topic"`
	ClientID string   `mapstructure:"client_id"`
}

type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type HTTPConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"kubeconfig":      "kubeconfig",
	"context":         "context",
	"credentials-ref": "credentials_ref",
	"mock":            "mock",
	"log-level":       "log.level",
	"log-format":      "log.format",
	"http-addr":       "http.addr",
	"poll-interval":   "poll_interval",
	"quantity-policy": "quantity_policy",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("kubeconfig", filepath.Join(HomeDir(), ".kube", "config"))
	v.SetDefault("context", "")
	v.SetDefault("credentials_ref", "")
	v.SetDefault("mock", false)
	v.SetDefault("cluster.cloud_provider_id", "local")
	v.SetDefault("cluster.cluster_id", "local")
	v.SetDefault("cluster.cluster_name", "")
	v.SetDefault("poll_interval", 30*time.Second)
	v.SetDefault("owner_cache_ttl", time.Minute)
	v.SetDefault("quantity_policy", string(resources.PolicyLenient))
	v.SetDefault("watch_kinds", []string{"Pod", "Node", "Event"})
	v.SetDefault("sink.types", []string{"log"})
	v.SetDefault("sink.kafka.brokers", []string{})
	v.SetDefault("sink.kafka.topic", "kwatch.events")
	v.SetDefault("sink.kafka.client_id", "kwatch")
	v.SetDefault("sink.nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("sink.nats.subject_prefix", "kwatch")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.cors_origins", []string{"*"})
}

// Load reads the optional YAML file at path, then KWATCH_* environment
// variables, then any flags in flags that were set. Later sources win.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got: %s", c.PollInterval)
	}
	if c.OwnerCacheTTL <= 0 {
		return fmt.Errorf("owner_cache_ttl must be positive, got: %s", c.OwnerCacheTTL)
	}
	if _, err := resources.ParsePolicy(c.QuantityPolicy); err != nil {
		return err
	}
	if _, err := c.Kinds(); err != nil {
		return err
	}
	if c.Cluster.CloudProviderID == "" {
		return fmt.Errorf("cluster.cloud_provider_id cannot be empty")
	}
	if c.Cluster.ClusterID == "" {
		return fmt.Errorf("cluster.cluster_id cannot be empty")
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr cannot be empty")
	}
	for _, t := range c.Sink.Types {
		switch t {
		case "log":
		case "kafka":
			if len(c.Sink.Kafka.Brokers) == 0 {
				return fmt.Errorf("sink.kafka.brokers cannot be empty when the kafka sink is enabled")
			}
			if c.Sink.Kafka.Topic == "" {
				return fmt.Errorf("sink.kafka.topic cannot be empty when the kafka sink is enabled")
			}
		case "nats":
			if c.Sink.NATS.URL == "" {
				return fmt.Errorf("sink.nats.url cannot be empty when the nats sink is enabled")
			}
		default:
			return fmt.Errorf("unknown sink type %q, want log, kafka or nats", t)
		}
	}
	return nil
}

// Kinds parses WatchKinds.
func (c *Config) Kinds() ([]domain.ResourceKind, error) {
	if len(c.WatchKinds) == 0 {
		return nil, fmt.Errorf("watch_kinds cannot be empty")
	}
	out := make([]domain.ResourceKind, 0, len(c.WatchKinds))
	for _, s := range c.WatchKinds {
		k, err := domain.ParseResourceKind(s)
		if err != nil {
			return nil, fmt.Errorf("watch_kinds: %w", err)
		}
		out = append(out, k)
	}
	return out, nil
}

func (c *Config) Policy() resources.Policy {
	p, _ := resources.ParsePolicy(c.QuantityPolicy)
	return p
}

func (c *Config) Identity() domain.ClusterIdentity {
	return domain.ClusterIdentity{
		CloudProviderID: c.Cluster.CloudProviderID,
		ClusterID:       c.Cluster.ClusterID,
		ClusterName:     c.Cluster.ClusterName,
	}
}

// Ref is the credentials reference for the configured cluster: the explicit
// credentials_ref if set, else "<kubeconfig>#<context>".
func (c *Config) Ref() string {
	if c.CredentialsRef != "" {
		return c.CredentialsRef
	}
	if c.Context == "" {
		return c.Kubeconfig
	}
	return c.Kubeconfig + "#" + c.Context
}

// HomeDir returns the user's home directory, or "." when none can be found.
func HomeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	if u, err := user.Current(); err == nil {
		return u.HomeDir
	}
	// Windows fallback
	if h := os.Getenv("USERPROFILE"); h != "" {
		return h
	}
	return "."
}
