package watcher

import (
	"context"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/HaPhanBaoMinh/kwatch/internal/domain"
	"github.com/HaPhanBaoMinh/kwatch/internal/resources"
)

// NodeWatcher publishes NodeInfo once per UID, NodeEvent{Started} on add and
// NodeEvent{Stopped} on delete.
type NodeWatcher struct {
	*loop
	seen map[string]struct{}
}

func NewNodeWatcher(ctx context.Context, cfg Config) (Watcher, error) {
	l, err := subscribe(ctx, &cfg, domain.ResourceKindNode)
	if err != nil {
		return nil, err
	}
	n := &NodeWatcher{
		loop: l,
		seen: make(map[string]struct{}),
	}
	n.start(n.handleNode)
	return n, nil
}

func (n *NodeWatcher) handleNode(_ context.Context, ev watch.Event) {
	node, ok := ev.Object.(*corev1.Node)
	if !ok {
		n.skip("type")
		return
	}
	uid := string(node.UID)
	now := n.cfg.Now()

	if ev.Type == watch.Deleted {
		n.publish(n.lifecycle(node, domain.NodeStopped, now), now)
		delete(n.seen, uid)
		return
	}
	if _, dup := n.seen[uid]; !dup {
		n.publish(domain.NodeInfo{
			ClusterIdentity:   n.cfg.Cluster,
			NodeUID:           uid,
			NodeName:          node.Name,
			ProviderID:        node.Spec.ProviderID,
			KubeletVersion:    node.Status.NodeInfo.KubeletVersion,
			CreationTimestamp: node.CreationTimestamp.Time,
			Labels:            node.Labels,
			Allocatable: domain.Resource{
				CPU:    domain.CPU(resources.FromQuantity(*node.Status.Allocatable.Cpu(), true)),
				Memory: domain.Memory(resources.FromQuantity(*node.Status.Allocatable.Memory(), false)),
			},
		}, now)
		n.seen[uid] = struct{}{}
	}
	if ev.Type == watch.Added {
		n.publish(n.lifecycle(node, domain.NodeStarted, now), now)
	}
}

func (n *NodeWatcher) lifecycle(node *corev1.Node, t domain.NodeEventType, now time.Time) domain.NodeEvent {
	return domain.NodeEvent{
		ClusterIdentity: n.cfg.Cluster,
		NodeUID:         string(node.UID),
		NodeName:        node.Name,
		Type:            t,
		Timestamp:       now,
	}
}
