package watcher

import (
	"context"
	"time"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/HaPhanBaoMinh/kwatch/internal/domain"
	"github.com/HaPhanBaoMinh/kwatch/internal/resources"
)

// PodWatcher publishes PodInfo and PodEvent{Scheduled} once per scheduled pod
// UID, and PodEvent{Deleted} when the pod is removed with a zero grace period.
type PodWatcher struct {
	*loop
	// seen holds UIDs whose info and scheduled events went out.
	seen map[string]struct{}
	// gone holds UIDs reported deleted whose final Deleted delivery has not arrived.
	gone map[string]struct{}
}

func NewPodWatcher(ctx context.Context, cfg Config) (Watcher, error) {
	l, err := subscribe(ctx, &cfg, domain.ResourceKindPod)
	if err != nil {
		return nil, err
	}
	p := &PodWatcher{
		loop: l,
		seen: make(map[string]struct{}),
		gone: make(map[string]struct{}),
	}
	p.start(p.handlePod)
	return p, nil
}

func (p *PodWatcher) handlePod(ctx context.Context, ev watch.Event) {
	pod, ok := ev.Object.(*corev1.Pod)
	if !ok {
		p.skip("type")
		return
	}
	uid := string(pod.UID)
	_, gone := p.gone[uid]
	if gone && pod.DeletionTimestamp == nil {
		// the final Deleted delivery was missed; this is a new pod
		delete(p.gone, uid)
		gone = false
	}

	if !gone && isScheduled(pod) {
		if _, dup := p.seen[uid]; !dup {
			if p.announce(ctx, pod) {
				p.seen[uid] = struct{}{}
			}
		}
	}

	if !gone && isRemoved(pod) {
		p.publish(domain.PodEvent{
			ClusterIdentity: p.cfg.Cluster,
			PodUID:          uid,
			Type:            domain.PodDeleted,
			Timestamp:       pod.DeletionTimestamp.Time,
		}, p.cfg.Now())
		delete(p.seen, uid)
		p.gone[uid] = struct{}{}
	}

	// last delivery for this UID; a later pod with the same UID is new
	if ev.Type == watch.Deleted {
		delete(p.gone, uid)
	}
}

// announce publishes info then scheduled. It reports false when the pod was
// dropped and should be retried on a later delivery.
func (p *PodWatcher) announce(ctx context.Context, pod *corev1.Pod) bool {
	res, err := resources.EffectiveResources(pod.Spec.Containers, pod.Spec.InitContainers)
	if err != nil {
		if p.cfg.Policy == resources.PolicyStrict {
			p.logger.Warn("Dropping pod with invalid quantity",
				zap.String("pod", pod.Namespace+"/"+pod.Name), zap.Error(err))
			p.skip("invalid_quantity")
			return false
		}
		p.warnQuantities(pod, err)
	}

	now := p.cfg.Now()
	info := domain.PodInfo{
		ClusterIdentity:   p.cfg.Cluster,
		PodUID:            string(pod.UID),
		PodName:           pod.Name,
		Namespace:         pod.Namespace,
		NodeName:          pod.Spec.NodeName,
		QOSClass:          string(pod.Status.QOSClass),
		CreationTimestamp: pod.CreationTimestamp.Time,
		Labels:            pod.Labels,
		Resources:         res,
		TopLevelOwner:     p.cfg.Resolver.Resolve(ctx, p.cfg.Client, "Pod", pod),
		Containers:        containerInfos(pod.Spec.Containers),
		VolumeClaims:      volumeClaims(pod.Spec.Volumes),
	}
	p.publish(info, now)
	p.publish(domain.PodEvent{
		ClusterIdentity: p.cfg.Cluster,
		PodUID:          info.PodUID,
		Type:            domain.PodScheduled,
		Timestamp:       scheduledAt(pod, now),
	}, now)
	return true
}

func (p *PodWatcher) warnQuantities(pod *corev1.Pod, err error) {
	ref := pod.Namespace + "/" + pod.Name
	for _, qe := range resources.InvalidQuantities(err) {
		p.logger.Warn("Invalid quantity counted as zero", zap.String("pod", ref), zap.String("raw", qe.Raw))
		p.publish(domain.QuantityWarning{
			ClusterIdentity: p.cfg.Cluster,
			ObjectUID:       string(pod.UID),
			Object:          "Pod/" + ref,
			Raw:             qe.Raw,
			Message:         qe.Error(),
		}, p.cfg.Now())
	}
}

func isScheduled(pod *corev1.Pod) bool {
	for _, c := range pod.Status.Conditions {
		if c.Type == corev1.PodScheduled && c.Status == corev1.ConditionTrue {
			return true
		}
	}
	return false
}

func isRemoved(pod *corev1.Pod) bool {
	return pod.DeletionTimestamp != nil &&
		pod.DeletionGracePeriodSeconds != nil && *pod.DeletionGracePeriodSeconds == 0
}

func scheduledAt(pod *corev1.Pod, fallback time.Time) time.Time {
	for _, c := range pod.Status.Conditions {
		if c.Type == corev1.PodScheduled && !c.LastTransitionTime.IsZero() {
			return c.LastTransitionTime.Time
		}
	}
	return fallback
}

func containerInfos(cs []corev1.Container) []domain.ContainerInfo {
	out := make([]domain.ContainerInfo, 0, len(cs))
	for _, c := range cs {
		out = append(out, domain.ContainerInfo{Name: c.Name, Image: c.Image})
	}
	return out
}

func volumeClaims(vs []corev1.Volume) []string {
	var out []string
	for _, v := range vs {
		if v.PersistentVolumeClaim != nil {
			out = append(out, v.PersistentVolumeClaim.ClaimName)
		}
	}
	return out
}
