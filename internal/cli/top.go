package cli

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HaPhanBaoMinh/kwatch/internal/app"
	"github.com/HaPhanBaoMinh/kwatch/internal/registry"
	"github.com/HaPhanBaoMinh/kwatch/internal/sink"
)

const topRecords = 5000

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Run the agent with a live terminal dashboard",
	Long: `Run the agent in the foreground and show what it publishes: pods and
nodes with their usage, the live watches and the event feed.

Logs are discarded unless --log-file is set.`,
	RunE: runTop,
}

func init() {
	topCmd.Flags().String("log-file", "", "write logs to this file")
}

// topSource shows the registry's watches and the recorded events.
type topSource struct {
	*registry.Registry
	*sink.Recorder
}

func runTop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := zap.NewNop()
	if path, _ := cmd.Flags().GetString("log-file"); path != "" {
		if logger, err = newLogger(cfg, path); err != nil {
			return err
		}
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec := sink.NewRecorder(topRecords)
	a, err := newAgent(cfg, logger, rec)
	if err != nil {
		return err
	}
	defer a.close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.run(ctx)
	}()

	m := app.New(topSource{Registry: a.registry, Recorder: rec}, cfg.Cluster.ClusterID)
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	interrupted := ctx.Err() != nil
	stop()
	wg.Wait()
	if err != nil && !interrupted {
		return err
	}
	return nil
}
