package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"

	"github.com/HaPhanBaoMinh/kwatch/internal/domain"
)

// Cluster is an in-memory domain.ClusterClient. Tests drive it with Emit and
// inspect it through the call counters; the demo mode drives it with a Simulator.
type Cluster struct {
	endpoint string

	mu          sync.Mutex
	objects     map[string]metav1.Object
	watches     map[domain.ResourceKind][]*trackedWatch
	nodeMetrics []metricsv1beta1.NodeMetrics
	podMetrics  []metricsv1beta1.PodMetrics
	metricsErr  error
	watchErr    error

	subscribes atomic.Int64
	stops      atomic.Int64
	gets       atomic.Int64
}

func NewCluster(endpoint string) *Cluster {
	return &Cluster{
		endpoint: endpoint,
		objects:  make(map[string]metav1.Object),
		watches:  make(map[domain.ResourceKind][]*trackedWatch),
	}
}

type trackedWatch struct {
	*watch.RaceFreeFakeWatcher
	once    sync.Once
	onStop  func()
	stopped chan struct{}
}

func (t *trackedWatch) Stop() {
	t.once.Do(func() {
		t.onStop()
		close(t.stopped)
	})
	t.RaceFreeFakeWatcher.Stop()
}

func objectKey(kind, namespace, name string) string {
	return kind + "/" + namespace + "/" + name
}

// Add stores obj so Get and ListUIDs can see it.
func (c *Cluster) Add(kind string, obj metav1.Object) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[objectKey(kind, obj.GetNamespace(), obj.GetName())] = obj
}

func (c *Cluster) Remove(kind, namespace, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, objectKey(kind, namespace, name))
}

// Emit delivers an event to every open watch of kind.
func (c *Cluster) Emit(kind domain.ResourceKind, action watch.EventType, obj runtime.Object) {
	c.mu.Lock()
	ws := append([]*trackedWatch(nil), c.watches[kind]...)
	c.mu.Unlock()
	for _, w := range ws {
		if !w.IsStopped() {
			w.Action(action, obj)
		}
	}
}

// Disconnect closes every open watch of kind from the server side.
func (c *Cluster) Disconnect(kind domain.ResourceKind) {
	c.mu.Lock()
	ws := c.watches[kind]
	c.watches[kind] = nil
	c.mu.Unlock()
	for _, w := range ws {
		w.RaceFreeFakeWatcher.Stop()
	}
}

func (c *Cluster) SetMetrics(nodes []metricsv1beta1.NodeMetrics, pods []metricsv1beta1.PodMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodeMetrics, c.podMetrics = nodes, pods
}

func (c *Cluster) FailMetrics(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metricsErr = err
}

func (c *Cluster) FailWatch(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchErr = err
}

// Subscribes counts ListAndWatch calls that returned a watch.
func (c *Cluster) Subscribes() int64 { return c.subscribes.Load() }

// Stops counts watches released by their consumer.
func (c *Cluster) Stops() int64 { return c.stops.Load() }

// Gets counts Get calls.
func (c *Cluster) Gets() int64 { return c.gets.Load() }

// OpenWatches counts watches neither stopped nor disconnected.
func (c *Cluster) OpenWatches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ws := range c.watches {
		for _, w := range ws {
			if !w.IsStopped() {
				n++
			}
		}
	}
	return n
}

// -------- domain.ClusterClient --------

func (c *Cluster) ListAndWatch(ctx context.Context, kind domain.ResourceKind, namespace string) (watch.Interface, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watchErr != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrClusterUnreachable, c.watchErr)
	}
	w := &trackedWatch{RaceFreeFakeWatcher: watch.NewRaceFreeFake(), stopped: make(chan struct{})}
	w.onStop = func() { c.stops.Add(1) }
	c.watches[kind] = append(c.watches[kind], w)
	c.subscribes.Add(1)
	// like a client-go stream, the result channel closes when ctx is done
	go func() {
		select {
		case <-ctx.Done():
			w.RaceFreeFakeWatcher.Stop()
		case <-w.stopped:
		}
	}()
	return w, nil
}

func (c *Cluster) Get(ctx context.Context, namespace, kind, name string) (metav1.Object, error) {
	c.gets.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if obj, ok := c.objects[objectKey(kind, namespace, name)]; ok {
		return obj, nil
	}
	return nil, apierrors.NewNotFound(schema.GroupResource{Resource: strings.ToLower(kind) + "s"}, name)
}

func (c *Cluster) ListNodeMetrics(ctx context.Context) ([]metricsv1beta1.NodeMetrics, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.metricsErr != nil {
		return nil, c.metricsErr
	}
	return append([]metricsv1beta1.NodeMetrics(nil), c.nodeMetrics...), nil
}

func (c *Cluster) ListPodMetrics(ctx context.Context) ([]metricsv1beta1.PodMetrics, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.metricsErr != nil {
		return nil, c.metricsErr
	}
	return append([]metricsv1beta1.PodMetrics(nil), c.podMetrics...), nil
}

func (c *Cluster) ListUIDs(ctx context.Context, kind domain.ResourceKind) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := string(kind) + "/"
	var out []string
	for k, obj := range c.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, string(obj.GetUID()))
		}
	}
	return out, nil
}

func (c *Cluster) Endpoint() string { return c.endpoint }

// Provider hands out the same Cluster for every credentials reference.
type Provider struct {
	Cluster *Cluster

	mu       sync.Mutex
	released map[string]int
}

func NewProvider(c *Cluster) *Provider {
	return &Provider{Cluster: c, released: make(map[string]int)}
}

func (p *Provider) Client(ctx context.Context, credentialsRef string) (domain.ClusterClient, error) {
	return p.Cluster, nil
}

func (p *Provider) Release(credentialsRef string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released[credentialsRef]++
}

func (p *Provider) Released(credentialsRef string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released[credentialsRef]
}
