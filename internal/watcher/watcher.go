// Package watcher turns cluster watch streams into domain events.
//
// Each watcher owns one subscription and one goroutine; deliveries are
// handled strictly in order, so the dedup sets need no locking.
package watcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/HaPhanBaoMinh/kwatch/internal/domain"
	"github.com/HaPhanBaoMinh/kwatch/internal/metrics"
	"github.com/HaPhanBaoMinh/kwatch/internal/owner"
	"github.com/HaPhanBaoMinh/kwatch/internal/resources"
)

// Config carries everything a watcher needs besides its stream.
type Config struct {
	Cluster    domain.ClusterIdentity
	Client     domain.ClusterClient
	Sink       domain.EventSink
	Resolver   *owner.Resolver
	Policy     resources.Policy
	Attributes map[string]string
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Now        func() time.Time
	// OnClose runs on the watcher goroutine when the cluster ends the stream.
	// It is not called for streams ended by Stop.
	OnClose func()
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NewUnregistered()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Policy == "" {
		c.Policy = resources.PolicyLenient
	}
	if c.Resolver == nil {
		c.Resolver = owner.NewResolver(nil, c.Logger)
	}
}

type Watcher interface {
	Kind() domain.ResourceKind
	// Stop releases the subscription and returns once the loop has exited.
	// It is safe to call more than once.
	Stop()
	// Done is closed when the loop exits, whatever the reason.
	Done() <-chan struct{}
	// Events is the number of domain events published so far.
	Events() int64
}

// Constructor subscribes and starts a watcher.
type Constructor func(ctx context.Context, cfg Config) (Watcher, error)

// Factory maps a resource kind to its watcher constructor.
type Factory map[domain.ResourceKind]Constructor

func DefaultFactory() Factory {
	return Factory{
		domain.ResourceKindPod:   NewPodWatcher,
		domain.ResourceKindNode:  NewNodeWatcher,
		domain.ResourceKindEvent: NewClusterEventWatcher,
	}
}

type handler func(ctx context.Context, ev watch.Event)

type loop struct {
	kind   domain.ResourceKind
	stream watch.Interface
	handle handler
	cfg    Config
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	stopCh chan struct{}
	done   chan struct{}

	stopOnce    sync.Once
	releaseOnce sync.Once
	events      atomic.Int64
}

// subscribe opens the stream for kind and wraps it in a loop. The stream and
// the owner lookups run on a context detached from ctx's cancellation: the
// watch lives until Stop or until the cluster ends it, not until the call
// that created it returns.
func subscribe(ctx context.Context, cfg *Config, kind domain.ResourceKind) (*loop, error) {
	cfg.defaults()
	if cfg.Client == nil || cfg.Sink == nil {
		return nil, fmt.Errorf("%s watcher: client and sink are required", kind)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := cfg.Client.ListAndWatch(watchCtx, kind, "")
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch %s on %s: %w", kind, cfg.Client.Endpoint(), err)
	}
	return &loop{
		kind:   kind,
		stream: stream,
		cfg:    *cfg,
		logger: cfg.Logger.Named("watcher").With(zap.String("kind", string(kind)), zap.String("cluster", cfg.Cluster.ClusterID)),
		ctx:    watchCtx,
		cancel: cancel,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

func (l *loop) start(h handler) {
	l.handle = h
	go l.run()
}

func (l *loop) run() {
	defer close(l.done)
	defer l.release()

	ch := l.stream.ResultChan()
	for {
		select {
		case <-l.stopCh:
			return
		case ev, ok := <-ch:
			if !ok {
				l.closed()
				return
			}
			l.dispatch(ev)
		}
	}
}

func (l *loop) closed() {
	select {
	case <-l.stopCh:
		return
	default:
	}
	l.cancel()
	l.logger.Warn("Watch stream ended", zap.Error(domain.ErrWatchClosedUnexpectedly))
	if l.cfg.OnClose != nil {
		l.cfg.OnClose()
	}
}

func (l *loop) dispatch(ev watch.Event) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Handler panicked", zap.Any("panic", r), zap.String("type", string(ev.Type)))
			l.skip("panic")
		}
	}()
	switch ev.Type {
	case watch.Bookmark:
		return
	case watch.Error:
		l.logger.Warn("Watch error", zap.Error(apierrors.FromObject(ev.Object)))
		l.skip("error")
		return
	}
	l.handle(l.ctx, ev)
}

func (l *loop) release() {
	l.releaseOnce.Do(l.stream.Stop)
}

func (l *loop) publish(ev domain.Event, ts time.Time) {
	l.cfg.Sink.Publish(ev, ts, l.cfg.Attributes)
	l.events.Add(1)
}

func (l *loop) skip(reason string) {
	l.cfg.Metrics.EventsSkipped.WithLabelValues(string(l.kind), reason).Inc()
}

func (l *loop) Kind() domain.ResourceKind { return l.kind }
func (l *loop) Done() <-chan struct{}     { return l.done }
func (l *loop) Events() int64             { return l.events.Load() }

func (l *loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
		l.cancel()
	})
	<-l.done
}
