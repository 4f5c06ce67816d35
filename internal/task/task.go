// Package task implements the recurring metrics poll and a small in-process
// scheduler that drives it.
package task

import (
	"context"
	"time"

	"github.com/HaPhanBaoMinh/kwatch/internal/domain"
)

// Params identify the cluster a task works on.
type Params struct {
	Cluster        domain.ClusterIdentity
	CredentialsRef string
	// Kinds to keep watched; empty means every watchable kind.
	Kinds []domain.ResourceKind
}

func (p Params) kinds() []domain.ResourceKind {
	if len(p.Kinds) == 0 {
		return domain.WatchableKinds
	}
	return p.Kinds
}

// Executor is the contract of a recurring task. A non-nil error from RunOnce
// marks the run failed; the scheduler decides on retry.
type Executor interface {
	RunOnce(ctx context.Context, taskID string, params Params, heartbeat time.Time) error
	Cleanup(ctx context.Context, taskID string, params Params) error
}
