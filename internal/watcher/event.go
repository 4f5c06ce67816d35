package watcher

import (
	"context"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/HaPhanBaoMinh/kwatch/internal/domain"
)

type eventSource struct {
	component string
	reason    string
}

// allowed lists the scaling and scheduling events worth forwarding.
var allowed = map[eventSource]struct{}{
	{"deployment-controller", "ScalingReplicaSet"}:     {},
	{"horizontal-pod-autoscaler", "SuccessfulRescale"}: {},
	{"cluster-autoscaler", "TriggeredScaleUp"}:         {},
	{"cluster-autoscaler", "ScaleDown"}:                {},
	{"cluster-autoscaler", "ScaledUpGroup"}:            {},
	{"cluster-autoscaler", "ScaleDownEmpty"}:           {},
	{"job-controller", "Completed"}:                    {},
	{"job-controller", "SuccessfulCreate"}:             {},
	{"cronjob-controller", "SuccessfulCreate"}:         {},
	{"replicaset-controller", "SuccessfulCreate"}:      {},
	{"replicaset-controller", "SuccessfulDelete"}:      {},
	{"statefulset-controller", "SuccessfulCreate"}:     {},
	{"daemonset-controller", "SuccessfulCreate"}:       {},
	{"default-scheduler", "Scheduled"}:                 {},
}

// Allowed reports whether events from component with reason are forwarded.
func Allowed(component, reason string) bool {
	_, ok := allowed[eventSource{component, reason}]
	return ok
}

// ClusterEventWatcher forwards allow-listed cluster events. Deletions are
// event garbage collection and are ignored.
type ClusterEventWatcher struct {
	*loop
}

func NewClusterEventWatcher(ctx context.Context, cfg Config) (Watcher, error) {
	l, err := subscribe(ctx, &cfg, domain.ResourceKindEvent)
	if err != nil {
		return nil, err
	}
	w := &ClusterEventWatcher{loop: l}
	w.start(w.handleEvent)
	return w, nil
}

func (w *ClusterEventWatcher) handleEvent(_ context.Context, ev watch.Event) {
	if ev.Type == watch.Deleted {
		return
	}
	e, ok := ev.Object.(*corev1.Event)
	if !ok {
		w.skip("type")
		return
	}
	component := sourceComponent(e)
	if !Allowed(component, e.Reason) {
		return
	}
	w.publish(domain.ClusterEvent{
		ClusterIdentity: w.cfg.Cluster,
		EventUID:        string(e.UID),
		SourceComponent: component,
		Reason:          e.Reason,
		Message:         e.Message,
		Type:            e.Type,
		Count:           e.Count,
		Timestamp:       eventTime(e),
		Object: domain.InvolvedObject{
			Kind:            e.InvolvedObject.Kind,
			Name:            e.InvolvedObject.Name,
			Namespace:       e.InvolvedObject.Namespace,
			UID:             string(e.InvolvedObject.UID),
			ResourceVersion: e.InvolvedObject.ResourceVersion,
		},
	}, w.cfg.Now())
}

func sourceComponent(e *corev1.Event) string {
	if e.Source.Component != "" {
		return e.Source.Component
	}
	return e.ReportingController
}

func eventTime(e *corev1.Event) time.Time {
	switch {
	case !e.LastTimestamp.IsZero():
		return e.LastTimestamp.Time
	case !e.EventTime.IsZero():
		return e.EventTime.Time
	case !e.FirstTimestamp.IsZero():
		return e.FirstTimestamp.Time
	}
	return e.CreationTimestamp.Time
}
