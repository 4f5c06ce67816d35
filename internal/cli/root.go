// Package cli holds the kwatch commands.
package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HaPhanBaoMinh/kwatch/internal/config"
	"github.com/HaPhanBaoMinh/kwatch/internal/logging"
)

// version is set at build time with -ldflags "-X .../internal/cli.version=...".
var version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "kwatch",
	Short: "Watch Kubernetes clusters and publish what changes",
	Long: `kwatch keeps watches on the pods, nodes and events of one or more clusters,
resolves each pod to the workload that owns it, polls resource usage and
publishes everything as events to the configured sinks.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "config file (YAML)")
	f.String("kubeconfig", filepath.Join(config.HomeDir(), ".kube", "config"), "path to kubeconfig")
	f.String("context", "", "kube context")
	f.String("credentials-ref", "", "credentials reference, <kubeconfig>[#<context>]")
	f.Bool("mock", false, "run against a simulated cluster")
	f.String("log-level", "info", "log level: debug, info, warn, error")
	f.String("log-format", "json", "log format: json or console")
	f.Duration("poll-interval", 0, "metrics poll interval (default 30s)")
	f.String("quantity-policy", "", "invalid quantity handling: lenient or strict (default lenient)")

	rootCmd.AddCommand(serveCmd, topCmd, versionCmd)
}

// loadConfig merges the config file, KWATCH_* variables and cmd's flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, paths ...string) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, paths...)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return logger.With(zap.String("cluster_id", cfg.Cluster.ClusterID)), nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "kwatch", version)
	},
}
