package mock

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/watch"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"

	"github.com/HaPhanBaoMinh/kwatch/internal/domain"
)

var (
	simNodes = []string{"ip-10-0-1-5", "ip-10-0-1-12", "ip-10-0-2-3", "ip-10-0-2-7", "ip-10-0-3-2"}
	simApps  = []struct {
		app, hash, node string
		cpuReq          string
	}{
		{"api", "7cfb9d9c9c", "ip-10-0-1-5", "100m"},
		{"api", "7cfb9d9c9c", "ip-10-0-1-12", "100m"},
		{"worker", "5f7dcbffd6", "ip-10-0-2-3", "250m"},
		{"cart", "6d79f8b5f7", "ip-10-0-2-7", ""},
	}
)

const suffixChars = "bcdfghjklmnpqrstvwxz2456789"

// Simulator drives a Cluster like a small live cluster: a fixed node pool, a
// few Deployments whose pods churn, scaling events and wobbling usage.
type Simulator struct {
	c     *Cluster
	rnd   *rand.Rand
	nodes []*corev1.Node
	pods  []*corev1.Pod
	load  map[string]float64
	seq   int
}

func NewSimulator(c *Cluster, seed int64) *Simulator {
	s := &Simulator{c: c, rnd: rand.New(rand.NewSource(seed)), load: map[string]float64{}}
	for i, name := range simNodes {
		n := &corev1.Node{
			ObjectMeta: metav1.ObjectMeta{
				Name: name, UID: types.UID(fmt.Sprintf("node-%d", i)),
				Labels: map[string]string{"topology.kubernetes.io/zone": fmt.Sprintf("us-east-1%c", 'a'+i%3)},
			},
			Spec: corev1.NodeSpec{ProviderID: "aws:///us-east-1a/i-0" + name[3:]},
			Status: corev1.NodeStatus{
				NodeInfo: corev1.NodeSystemInfo{KubeletVersion: "v1.29.4"},
				Allocatable: corev1.ResourceList{
					corev1.ResourceCPU:    resource.MustParse("3920m"),
					corev1.ResourceMemory: resource.MustParse("15Gi"),
				},
			},
		}
		s.nodes = append(s.nodes, n)
		c.Add(string(domain.ResourceKindNode), n)
	}
	yes := true
	for _, a := range simApps {
		c.Add("Deployment", &metav1.ObjectMeta{Name: a.app, Namespace: "default", UID: types.UID("deploy-" + a.app), Labels: map[string]string{"app": a.app}})
		c.Add("ReplicaSet", &metav1.ObjectMeta{
			Name: a.app + "-" + a.hash, Namespace: "default", UID: types.UID("rs-" + a.app),
			OwnerReferences: []metav1.OwnerReference{{Kind: "Deployment", Name: a.app, UID: types.UID("deploy-" + a.app), Controller: &yes}},
		})
	}
	for i := range simApps {
		s.pods = append(s.pods, s.newPod(i))
	}
	return s
}

func (s *Simulator) newPod(i int) *corev1.Pod {
	a := simApps[i]
	s.seq++
	suffix := make([]byte, 5)
	for j := range suffix {
		suffix[j] = suffixChars[s.rnd.Intn(len(suffixChars))]
	}
	yes := true
	ctr := corev1.Container{Name: a.app, Image: "ghcr.io/acme/" + a.app + ":mock"}
	if a.cpuReq != "" {
		ctr.Resources.Requests = corev1.ResourceList{
			corev1.ResourceCPU:    resource.MustParse(a.cpuReq),
			corev1.ResourceMemory: resource.MustParse("256Mi"),
		}
	}
	p := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:              fmt.Sprintf("%s-%s-%s", a.app, a.hash, suffix),
			Namespace:         "default",
			UID:               types.UID(fmt.Sprintf("pod-%d", s.seq)),
			Labels:            map[string]string{"app": a.app},
			CreationTimestamp: metav1.Now(),
			OwnerReferences: []metav1.OwnerReference{{
				Kind: "ReplicaSet", Name: a.app + "-" + a.hash, UID: types.UID("rs-" + a.app), Controller: &yes,
			}},
		},
		Spec: corev1.PodSpec{NodeName: a.node, Containers: []corev1.Container{ctr}},
		Status: corev1.PodStatus{
			Phase:      corev1.PodRunning,
			Conditions: []corev1.PodCondition{{Type: corev1.PodScheduled, Status: corev1.ConditionTrue, LastTransitionTime: metav1.Now()}},
		},
	}
	s.c.Add(string(domain.ResourceKindPod), p)
	return p
}

// Run steps the simulation every interval until ctx is done. It does not
// step before the first tick.
func (s *Simulator) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Step()
		}
	}
}

// Step replays the current objects to open watches, occasionally replaces a
// worker pod, and refreshes the metrics snapshot.
func (s *Simulator) Step() {
	for _, n := range s.nodes {
		s.c.Emit(domain.ResourceKindNode, watch.Modified, n)
	}
	for _, p := range s.pods {
		s.c.Emit(domain.ResourceKindPod, watch.Modified, p)
	}
	if s.rnd.Intn(4) == 0 {
		s.churn(2)
	}
	s.c.SetMetrics(s.metrics())
}

// churn deletes pod i and schedules its replacement, as a rollout would.
func (s *Simulator) churn(i int) {
	old := s.pods[i].DeepCopy()
	now := metav1.Now()
	var zero int64
	old.DeletionTimestamp = &now
	old.DeletionGracePeriodSeconds = &zero
	s.c.Emit(domain.ResourceKindPod, watch.Modified, old)
	s.c.Emit(domain.ResourceKindPod, watch.Deleted, old)
	s.c.Remove(string(domain.ResourceKindPod), old.Namespace, old.Name)

	p := s.newPod(i)
	s.pods[i] = p
	s.c.Emit(domain.ResourceKindPod, watch.Added, p)
	s.c.Emit(domain.ResourceKindEvent, watch.Added, s.event(p, "replicaset-controller", "SuccessfulCreate",
		"Created pod: "+p.Name, "ReplicaSet", p.OwnerReferences[0].Name, string(p.OwnerReferences[0].UID)))
	s.c.Emit(domain.ResourceKindEvent, watch.Added, s.event(p, "default-scheduler", "Scheduled",
		fmt.Sprintf("Successfully assigned default/%s to %s", p.Name, p.Spec.NodeName), "Pod", p.Name, string(p.UID)))
}

func (s *Simulator) event(p *corev1.Pod, component, reason, msg, kind, name, uid string) *corev1.Event {
	s.seq++
	return &corev1.Event{
		ObjectMeta:     metav1.ObjectMeta{Name: fmt.Sprintf("%s.%d", name, s.seq), Namespace: p.Namespace, UID: types.UID(fmt.Sprintf("event-%d", s.seq))},
		InvolvedObject: corev1.ObjectReference{Kind: kind, Name: name, Namespace: p.Namespace, UID: types.UID(uid)},
		Reason:         reason,
		Message:        msg,
		Type:           corev1.EventTypeNormal,
		Count:          1,
		Source:         corev1.EventSource{Component: component},
		LastTimestamp:  metav1.Now(),
	}
}

func (s *Simulator) metrics() ([]metricsv1beta1.NodeMetrics, []metricsv1beta1.PodMetrics) {
	now := metav1.Now()
	window := metav1.Duration{Duration: 30 * time.Second}
	var nodes []metricsv1beta1.NodeMetrics
	for i, n := range s.nodes {
		c := s.walk("cpu/"+n.Name, 0.45+0.05*float64(i%3))
		m := s.walk("mem/"+n.Name, 0.42)
		nodes = append(nodes, metricsv1beta1.NodeMetrics{
			ObjectMeta: metav1.ObjectMeta{Name: n.Name},
			Timestamp:  now, Window: window,
			Usage: corev1.ResourceList{
				corev1.ResourceCPU:    *resource.NewMilliQuantity(int64(c*3920), resource.DecimalSI),
				corev1.ResourceMemory: *resource.NewQuantity(int64(m*15*(1<<30)), resource.BinarySI),
			},
		})
	}
	var pods []metricsv1beta1.PodMetrics
	for _, p := range s.pods {
		c := s.walk("cpu/"+p.Name, 0.25)
		m := s.walk("mem/"+p.Name, 0.5)
		pods = append(pods, metricsv1beta1.PodMetrics{
			ObjectMeta: metav1.ObjectMeta{Name: p.Name, Namespace: p.Namespace},
			Timestamp:  now, Window: window,
			Containers: []metricsv1beta1.ContainerMetrics{{
				Name: p.Spec.Containers[0].Name,
				Usage: corev1.ResourceList{
					corev1.ResourceCPU:    *resource.NewMilliQuantity(int64(80+c*240), resource.DecimalSI),
					corev1.ResourceMemory: *resource.NewQuantity(int64(500+m*300)*(1<<20), resource.BinarySI),
				},
			}},
		})
	}
	return nodes, pods
}

// walk moves the named load a small random step, starting from base.
func (s *Simulator) walk(name string, base float64) float64 {
	v, ok := s.load[name]
	if !ok {
		v = base
	}
	v = clamp01(v + (s.rnd.Float64()-0.5)*0.05)
	s.load[name] = v
	return v
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
