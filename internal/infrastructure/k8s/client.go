package k8s

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/HaPhanBaoMinh/kwatch/internal/domain"
)

type getFunc func(ctx context.Context, namespace, name string) (metav1.Object, error)
type watchFunc func(ctx context.Context, namespace string) (watch.Interface, error)

// Client implements domain.ClusterClient on client-go.
type Client struct {
	core     kubernetes.Interface
	metrics  metricsclient.Interface
	endpoint string

	getters  map[string]getFunc
	watchers map[domain.ResourceKind]watchFunc
}

func New(kubeconfigPath, contextName string) (*Client, error) {
	cfg, err := loadRESTConfig(kubeconfigPath, contextName)
	if err != nil {
		return nil, err
	}
	cfg.QPS = 30
	cfg.Burst = 60
	core, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, err
	}
	m, err := metricsclient.NewForConfig(cfg)
	if err != nil {
		return nil, err
	}
	return NewForClientsets(core, m, cfg.Host), nil
}

// NewForClientsets wraps existing clientsets; tests pass fakes here.
func NewForClientsets(core kubernetes.Interface, m metricsclient.Interface, endpoint string) *Client {
	c := &Client{core: core, metrics: m, endpoint: endpoint}
	c.getters = map[string]getFunc{
		"Deployment": func(ctx context.Context, ns, name string) (metav1.Object, error) {
			return c.core.AppsV1().Deployments(ns).Get(ctx, name, metav1.GetOptions{})
		},
		"DaemonSet": func(ctx context.Context, ns, name string) (metav1.Object, error) {
			return c.core.AppsV1().DaemonSets(ns).Get(ctx, name, metav1.GetOptions{})
		},
		"StatefulSet": func(ctx context.Context, ns, name string) (metav1.Object, error) {
			return c.core.AppsV1().StatefulSets(ns).Get(ctx, name, metav1.GetOptions{})
		},
		"ReplicaSet": func(ctx context.Context, ns, name string) (metav1.Object, error) {
			return c.core.AppsV1().ReplicaSets(ns).Get(ctx, name, metav1.GetOptions{})
		},
		"Job": func(ctx context.Context, ns, name string) (metav1.Object, error) {
			return c.core.BatchV1().Jobs(ns).Get(ctx, name, metav1.GetOptions{})
		},
		"CronJob": func(ctx context.Context, ns, name string) (metav1.Object, error) {
			return c.core.BatchV1().CronJobs(ns).Get(ctx, name, metav1.GetOptions{})
		},
		"Pod": func(ctx context.Context, ns, name string) (metav1.Object, error) {
			return c.core.CoreV1().Pods(ns).Get(ctx, name, metav1.GetOptions{})
		},
		"Node": func(ctx context.Context, _, name string) (metav1.Object, error) {
			return c.core.CoreV1().Nodes().Get(ctx, name, metav1.GetOptions{})
		},
	}
	c.watchers = map[domain.ResourceKind]watchFunc{
		domain.ResourceKindPod: func(ctx context.Context, ns string) (watch.Interface, error) {
			return c.core.CoreV1().Pods(ns).Watch(ctx, metav1.ListOptions{})
		},
		domain.ResourceKindNode: func(ctx context.Context, _ string) (watch.Interface, error) {
			return c.core.CoreV1().Nodes().Watch(ctx, metav1.ListOptions{})
		},
		domain.ResourceKindEvent: func(ctx context.Context, ns string) (watch.Interface, error) {
			return c.core.CoreV1().Events(ns).Watch(ctx, metav1.ListOptions{})
		},
	}
	return c
}

func loadRESTConfig(kubeconfigPath, contextName string) (*rest.Config, error) {
	if kubeconfigPath == "" && contextName == "" {
		if cfg, err := rest.InClusterConfig(); err == nil {
			return cfg, nil
		}
	}
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfigPath != "" {
		loadingRules.ExplicitPath = kubeconfigPath
	}
	overrides := &clientcmd.ConfigOverrides{}
	if contextName != "" {
		overrides.CurrentContext = contextName
	}
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides).ClientConfig()
}

// -------- domain.ClusterClient --------

// ListAndWatch opens a watch without a resource version: the server first
// replays every existing object as an ADDED event, then streams changes.
func (c *Client) ListAndWatch(ctx context.Context, kind domain.ResourceKind, namespace string) (watch.Interface, error) {
	fn, ok := c.watchers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedResourceKind, kind)
	}
	w, err := fn(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("%w: watch %s: %v", domain.ErrClusterUnreachable, kind, err)
	}
	return w, nil
}

func (c *Client) Get(ctx context.Context, namespace, kind, name string) (metav1.Object, error) {
	fn, ok := c.getters[kind]
	if !ok {
		return nil, fmt.Errorf("no getter for kind %s", kind)
	}
	return fn(ctx, namespace, name)
}

func (c *Client) ListNodeMetrics(ctx context.Context) ([]metricsv1beta1.NodeMetrics, error) {
	nms, err := c.metrics.MetricsV1beta1().NodeMetricses().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: node metrics: %v", domain.ErrClusterUnreachable, err)
	}
	return nms.Items, nil
}

func (c *Client) ListPodMetrics(ctx context.Context) ([]metricsv1beta1.PodMetrics, error) {
	pms, err := c.metrics.MetricsV1beta1().PodMetricses("").List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: pod metrics: %v", domain.ErrClusterUnreachable, err)
	}
	return pms.Items, nil
}

func (c *Client) ListUIDs(ctx context.Context, kind domain.ResourceKind) ([]string, error) {
	var out []string
	switch kind {
	case domain.ResourceKindPod:
		pods, err := c.core.CoreV1().Pods("").List(ctx, metav1.ListOptions{})
		if err != nil {
			return nil, fmt.Errorf("%w: list pods: %v", domain.ErrClusterUnreachable, err)
		}
		for _, p := range pods.Items {
			out = append(out, string(p.UID))
		}
	case domain.ResourceKindNode:
		nodes, err := c.core.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
		if err != nil {
			return nil, fmt.Errorf("%w: list nodes: %v", domain.ErrClusterUnreachable, err)
		}
		for _, n := range nodes.Items {
			out = append(out, string(n.UID))
		}
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedResourceKind, kind)
	}
	return out, nil
}

func (c *Client) Endpoint() string { return c.endpoint }
