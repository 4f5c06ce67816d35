package domain

import (
	"context"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
)

// ClusterClient is the read-only view of a cluster the agent consumes.
type ClusterClient interface {
	// ListAndWatch subscribes to changes of kind. An empty namespace means all namespaces.
	ListAndWatch(ctx context.Context, kind ResourceKind, namespace string) (watch.Interface, error)
	// Get returns the named object or an error satisfying apierrors.IsNotFound.
	Get(ctx context.Context, namespace, kind, name string) (metav1.Object, error)
	ListNodeMetrics(ctx context.Context) ([]metricsv1beta1.NodeMetrics, error)
	ListPodMetrics(ctx context.Context) ([]metricsv1beta1.PodMetrics, error)
	// ListUIDs returns the UIDs of all live objects of kind.
	ListUIDs(ctx context.Context, kind ResourceKind) ([]string, error)
	// Endpoint identifies the API server; it scopes owner cache keys.
	Endpoint() string
}

// ClientProvider hands out pooled cluster clients keyed by credentials reference.
type ClientProvider interface {
	Client(ctx context.Context, credentialsRef string) (ClusterClient, error)
	Release(credentialsRef string)
}

// EventSink is fire-and-forget: Publish never blocks on delivery.
type EventSink interface {
	Publish(ev Event, ts time.Time, attrs map[string]string)
}
