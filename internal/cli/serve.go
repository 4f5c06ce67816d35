package cli

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HaPhanBaoMinh/kwatch/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agent and its HTTP API",
	Long: `Run the agent: watch the configured cluster, poll its metrics, publish
events to the configured sinks and serve the watch API, /metrics and /healthz.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("http-addr", ":8080", "HTTP listen address")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newAgent(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	logger.Info("Starting kwatch",
		zap.String("version", version),
		zap.String("http_addr", cfg.HTTP.Addr),
		zap.Strings("sinks", cfg.Sink.Types),
		zap.Duration("poll_interval", cfg.PollInterval))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.run(ctx)
	}()

	srv := api.NewServer(a.registry, a.gatherer, cfg.HTTP.CORSOrigins, logger)
	err = srv.Run(ctx, cfg.HTTP.Addr)
	stop()
	wg.Wait()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("kwatch stopped")
	return nil
}
