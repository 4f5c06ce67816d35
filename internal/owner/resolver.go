// Package owner walks controller owner references up to the top-level workload.
package owner

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/HaPhanBaoMinh/kwatch/internal/domain"
)

// MaxDepth guards against malformed (cyclic) ownership graphs.
const MaxDepth = 50

// Lookup fetches an owner object by namespace and name.
type Lookup func(ctx context.Context, client domain.ClusterClient, namespace, name string) (metav1.Object, error)

// DefaultKinds are the controller kinds looked up out of the box. CronJob is
// deliberately absent: a Job owned by a CronJob resolves to the CronJob reference.
var DefaultKinds = []string{"Deployment", "DaemonSet", "StatefulSet", "ReplicaSet", "Job"}

type Resolver struct {
	cache    Cache
	lookups  map[string]Lookup
	maxDepth int
	logger   *zap.Logger

	hits, misses prometheus.Counter
}

type Option func(*Resolver)

func WithMaxDepth(n int) Option { return func(r *Resolver) { r.maxDepth = n } }

// WithCacheCounters counts owner cache hits and misses.
func WithCacheCounters(hits, misses prometheus.Counter) Option {
	return func(r *Resolver) { r.hits, r.misses = hits, misses }
}

func NewResolver(cache Cache, logger *zap.Logger, opts ...Option) *Resolver {
	if cache == nil {
		cache = NewCache(DefaultTTL)
	}
	r := &Resolver{
		cache:    cache,
		lookups:  make(map[string]Lookup),
		maxDepth: MaxDepth,
		logger:   logger.Named("owner"),
	}
	for _, kind := range DefaultKinds {
		r.Register(kind, viaClient(kind))
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register sets the lookup for kind. Registration happens at startup, before Resolve is called.
func (r *Resolver) Register(kind string, l Lookup) {
	r.lookups[kind] = l
}

func viaClient(kind string) Lookup {
	return func(ctx context.Context, client domain.ClusterClient, namespace, name string) (metav1.Object, error) {
		return client.Get(ctx, namespace, kind, name)
	}
}

// Resolve returns the top-level owner of obj. It never fails: when an owner
// cannot be fetched the walk stops and the last known reference is the answer.
func (r *Resolver) Resolve(ctx context.Context, client domain.ClusterClient, kind string, obj metav1.Object) domain.Owner {
	cur := NodeOf(kind, obj)
	ns := obj.GetNamespace()
	for depth := 0; depth < r.maxDepth && cur.Controller != nil; depth++ {
		ref := cur.Controller
		next, err := r.lookup(ctx, client, ns, ref)
		if err != nil {
			r.logger.Debug("Owner walk stopped",
				zap.String("namespace", ns),
				zap.String("kind", ref.Kind),
				zap.String("name", ref.Name),
				zap.Error(err))
			return domain.Owner{Kind: ref.Kind, Name: ref.Name, UID: string(ref.UID)}
		}
		cur = next
	}
	return cur.Owner
}

func (r *Resolver) lookup(ctx context.Context, client domain.ClusterClient, ns string, ref *metav1.OwnerReference) (Node, error) {
	key := Key{Endpoint: client.Endpoint(), Namespace: ns, Kind: ref.Kind, Name: ref.Name}
	if n, ok := r.cache.Get(key); ok {
		inc(r.hits)
		return n, nil
	}
	inc(r.misses)

	fn, ok := r.lookups[ref.Kind]
	if !ok {
		return Node{}, fmt.Errorf("%w: kind %s not supported", domain.ErrOwnerLookupFailed, ref.Kind)
	}
	obj, err := fn(ctx, client, ns, ref.Name)
	if err != nil {
		return Node{}, fmt.Errorf("%w: %v", domain.ErrOwnerLookupFailed, err)
	}
	n := NodeOf(ref.Kind, obj)
	r.cache.Set(key, n)
	return n, nil
}

// NodeOf describes obj as a chain node.
func NodeOf(kind string, obj metav1.Object) Node {
	return Node{
		Owner: domain.Owner{
			Kind:   kind,
			Name:   obj.GetName(),
			UID:    string(obj.GetUID()),
			Labels: obj.GetLabels(),
		},
		Controller: metav1.GetControllerOf(obj),
	}
}

func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}
