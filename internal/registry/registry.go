// Package registry owns the set of live watches, at most one per target and kind.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HaPhanBaoMinh/kwatch/internal/domain"
	"github.com/HaPhanBaoMinh/kwatch/internal/metrics"
	"github.com/HaPhanBaoMinh/kwatch/internal/owner"
	"github.com/HaPhanBaoMinh/kwatch/internal/resources"
	"github.com/HaPhanBaoMinh/kwatch/internal/watcher"
)

var ErrClosed = errors.New("registry closed")

type Options struct {
	Provider domain.ClientProvider
	Sink     domain.EventSink
	Resolver *owner.Resolver
	Factory  watcher.Factory
	Policy   resources.Policy
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// entry is inserted pending (w == nil) and finalized once its watcher is
// built. ready is closed when the creator is done with it either way.
type entry struct {
	id        string
	key       domain.WatchKey
	req       domain.WatchRequest
	ready     chan struct{}
	w         watcher.Watcher
	err       error
	startedAt time.Time
}

type Registry struct {
	opts   Options
	logger *zap.Logger

	mu      sync.Mutex
	entries map[domain.WatchKey]*entry
	byID    map[string]*entry
	closed  bool
}

func New(opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewUnregistered()
	}
	if opts.Factory == nil {
		opts.Factory = watcher.DefaultFactory()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Resolver == nil {
		opts.Resolver = owner.NewResolver(nil, opts.Logger,
			owner.WithCacheCounters(opts.Metrics.OwnerCacheHits, opts.Metrics.OwnerCacheMiss))
	}
	return &Registry{
		opts:    opts,
		logger:  opts.Logger.Named("registry"),
		entries: make(map[domain.WatchKey]*entry),
		byID:    make(map[string]*entry),
	}
}

// Create starts a watch for req unless one already exists for its key, and
// returns the watch id. It is idempotent: the id only depends on the key.
func (r *Registry) Create(ctx context.Context, req domain.WatchRequest) (string, error) {
	ctor, ok := r.opts.Factory[req.Kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedResourceKind, req.Kind)
	}
	key := req.Key()

	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return "", ErrClosed
		}
		e, exists := r.entries[key]
		if !exists {
			e = &entry{id: key.ID(), key: key, req: req, ready: make(chan struct{})}
			r.entries[key] = e
			r.byID[e.id] = e
			r.mu.Unlock()
			return e.id, r.build(ctx, e, ctor)
		}
		r.mu.Unlock()

		select {
		case <-e.ready:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		if e.err == nil {
			return e.id, nil
		}
		// the creator failed and dropped its entry; try again
	}
}

func (r *Registry) build(ctx context.Context, e *entry, ctor watcher.Constructor) error {
	w, err := r.start(ctx, e, ctor)

	r.mu.Lock()
	current := r.entries[e.key] == e
	if err != nil {
		if current {
			r.drop(e)
		}
		e.err = err
		r.mu.Unlock()
		close(e.ready)
		r.logger.Warn("Watch not started", zap.Stringer("key", e.key), zap.Error(err))
		return err
	}
	if !current {
		// deleted, or closed by the cluster, while pending
		r.mu.Unlock()
		close(e.ready)
		w.Stop()
		r.opts.Metrics.WatchesClosed.WithLabelValues(string(e.key.Kind), "deleted").Inc()
		return nil
	}
	e.w = w
	e.startedAt = r.opts.Now()
	r.mu.Unlock()
	close(e.ready)

	r.opts.Metrics.ActiveWatches.WithLabelValues(string(e.key.Kind)).Inc()
	r.opts.Metrics.WatchesCreated.WithLabelValues(string(e.key.Kind)).Inc()
	r.logger.Info("Watch started", zap.String("id", e.id), zap.Stringer("key", e.key))
	return nil
}

func (r *Registry) start(ctx context.Context, e *entry, ctor watcher.Constructor) (watcher.Watcher, error) {
	client, err := r.opts.Provider.Client(ctx, e.req.CredentialsRef)
	if err != nil {
		return nil, err
	}
	return ctor(ctx, watcher.Config{
		Cluster:  e.req.Cluster,
		Client:   client,
		Sink:     r.opts.Sink,
		Resolver: r.opts.Resolver,
		Policy:   r.opts.Policy,
		Attributes: map[string]string{
			"watch_id":      e.id,
			"resource_kind": string(e.key.Kind),
		},
		Logger:  r.opts.Logger,
		Metrics: r.opts.Metrics,
		Now:     r.opts.Now,
		OnClose: func() { r.closedByCluster(e) },
	})
}

// closedByCluster runs on the watcher goroutine. It removes e only if it is
// still the registered entry for its key.
func (r *Registry) closedByCluster(e *entry) {
	r.mu.Lock()
	current := r.entries[e.key] == e
	live := current && e.w != nil
	if current {
		r.drop(e)
	}
	r.mu.Unlock()

	if live {
		r.opts.Metrics.ActiveWatches.WithLabelValues(string(e.key.Kind)).Dec()
		r.opts.Metrics.WatchesClosed.WithLabelValues(string(e.key.Kind), "closed").Inc()
	}
	r.logger.Warn("Watch dropped", zap.String("id", e.id), zap.Stringer("key", e.key), zap.Error(domain.ErrWatchClosedUnexpectedly))
}

// drop must be called with mu held.
func (r *Registry) drop(e *entry) {
	delete(r.entries, e.key)
	delete(r.byID, e.id)
}

// Delete stops the watch with id and waits for its loop to exit. Unknown ids
// are ignored. A watch still being built is stopped by its creator.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	e, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	r.drop(e)
	w := e.w
	r.mu.Unlock()

	if w == nil {
		return
	}
	w.Stop()
	r.opts.Metrics.ActiveWatches.WithLabelValues(string(e.key.Kind)).Dec()
	r.opts.Metrics.WatchesClosed.WithLabelValues(string(e.key.Kind), "deleted").Inc()
	r.logger.Info("Watch deleted", zap.String("id", id), zap.Stringer("key", e.key))
}

// DeleteTarget deletes every watch on target and returns their ids.
func (r *Registry) DeleteTarget(target string) []string {
	var ids []string
	for _, info := range r.List() {
		if info.Target == target {
			ids = append(ids, info.ID)
		}
	}
	for _, id := range ids {
		r.Delete(id)
	}
	return ids
}

// List describes the running watches, ordered by target then kind.
func (r *Registry) List() []domain.WatchInfo {
	r.mu.Lock()
	out := make([]domain.WatchInfo, 0, len(r.entries))
	for _, e := range r.entries {
		if e.w == nil {
			continue
		}
		out = append(out, domain.WatchInfo{
			ID:        e.id,
			Target:    e.key.Target,
			Kind:      e.key.Kind,
			Cluster:   e.req.Cluster,
			StartedAt: e.startedAt,
			Events:    e.w.Events(),
		})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Target != out[j].Target {
			return out[i].Target < out[j].Target
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

func (r *Registry) IDs() []string {
	infos := r.List()
	ids := make([]string, len(infos))
	for i, info := range infos {
		ids[i] = info.ID
	}
	return ids
}

// Close stops every watch. Later creates fail with ErrClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	var live []*entry
	for _, e := range r.entries {
		if e.w != nil {
			live = append(live, e)
		}
		r.drop(e)
	}
	r.mu.Unlock()

	for _, e := range live {
		e.w.Stop()
		r.opts.Metrics.ActiveWatches.WithLabelValues(string(e.key.Kind)).Dec()
		r.opts.Metrics.WatchesClosed.WithLabelValues(string(e.key.Kind), "deleted").Inc()
	}
	r.logger.Info("Registry closed", zap.Int("stopped", len(live)))
}
