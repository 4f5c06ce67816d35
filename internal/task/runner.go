package task

import (
	"context"
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"
)

// Job is one recurring task.
type Job struct {
	ID       string
	Params   Params
	Interval time.Duration
}

// Runner calls an Executor on a jittered interval until its context ends,
// then runs Cleanup.
type Runner struct {
	exec           Executor
	logger         *zap.Logger
	jitter         float64
	cleanupTimeout time.Duration
	now            func() time.Time
}

func NewRunner(exec Executor, logger *zap.Logger) *Runner {
	return &Runner{
		exec:           exec,
		logger:         logger.Named("runner"),
		jitter:         0.1,
		cleanupTimeout: 10 * time.Second,
		now:            time.Now,
	}
}

// Run blocks until ctx is done.
func (r *Runner) Run(ctx context.Context, job Job) {
	logger := r.logger.With(zap.String("task", job.ID))
	logger.Info("Task scheduled", zap.Duration("interval", job.Interval))

	wait.JitterUntilWithContext(ctx, func(ctx context.Context) {
		runCtx, cancel := context.WithTimeout(ctx, job.Interval)
		defer cancel()
		if err := r.exec.RunOnce(runCtx, job.ID, job.Params, r.now()); err != nil {
			logger.Warn("Task run failed", zap.Error(err))
		}
	}, job.Interval, r.jitter, true)

	cleanupCtx, cancel := context.WithTimeout(context.Background(), r.cleanupTimeout)
	defer cancel()
	if err := r.exec.Cleanup(cleanupCtx, job.ID, job.Params); err != nil {
		logger.Warn("Task cleanup failed", zap.Error(err))
	}
	logger.Info("Task stopped")
}
