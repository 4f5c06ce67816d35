package k8s

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/HaPhanBaoMinh/kwatch/internal/domain"
)

// InCluster is the credentials reference for the service account the agent runs as.
const InCluster = "in-cluster"

// Pool builds one Client per credentials reference and shares it between
// watches and polls of the same cluster.
//
// A reference has the form "[kubeconfig-path][#context]". An empty path falls
// back to the pool's default kubeconfig.
type Pool struct {
	defaultKubeconfig string
	logger            *zap.Logger
	build             func(path, context string) (domain.ClusterClient, error)

	mu      sync.Mutex
	clients map[string]domain.ClusterClient
}

func NewPool(defaultKubeconfig string, logger *zap.Logger) *Pool {
	return &Pool{
		defaultKubeconfig: defaultKubeconfig,
		logger:            logger.Named("k8s-pool"),
		build: func(path, ctx string) (domain.ClusterClient, error) {
			return New(path, ctx)
		},
		clients: make(map[string]domain.ClusterClient),
	}
}

// ParseRef splits a credentials reference into kubeconfig path and context.
func ParseRef(ref string) (path, context string) {
	if ref == "" || ref == InCluster {
		return "", ""
	}
	path, context, _ = strings.Cut(ref, "#")
	return path, context
}

func (p *Pool) Client(ctx context.Context, credentialsRef string) (domain.ClusterClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[credentialsRef]; ok {
		return c, nil
	}
	path, kctx := ParseRef(credentialsRef)
	if path == "" && credentialsRef != "" && credentialsRef != InCluster {
		path = p.defaultKubeconfig
	}
	c, err := p.build(path, kctx)
	if err != nil {
		return nil, err
	}
	p.clients[credentialsRef] = c
	p.logger.Info("Cluster client created",
		zap.String("credentials_ref", credentialsRef),
		zap.String("endpoint", c.Endpoint()))
	return c, nil
}

func (p *Pool) Release(credentialsRef string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.clients[credentialsRef]; ok {
		delete(p.clients, credentialsRef)
		p.logger.Info("Cluster client released", zap.String("credentials_ref", credentialsRef))
	}
}

func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}
