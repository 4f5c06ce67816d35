package app

import (
	"sort"

	"github.com/HaPhanBaoMinh/kwatch/internal/domain"
	"github.com/HaPhanBaoMinh/kwatch/internal/sink"
)

// trendLen caps the samples kept per row.
const trendLen = 60

type podRow struct {
	UID       string
	Namespace string
	PodName   string
	NodeName  string
	QOSClass  string
	Owner     domain.Owner
	Images    []string

	CPU, Mem       int64 // usage: nanocores, bytes
	CPUReq, MemReq int64
	CPULim, MemLim int64
	CPUTrend       []float64
	MemTrend       []float64
}

type nodeRow struct {
	UID                string
	NodeName           string
	Kubelet            string
	CPU, Mem           int64
	CPUAlloc, MemAlloc int64
	Pods               int
	CPUTrend           []float64
	MemTrend           []float64
}

// snapshot is the dashboard's view of everything published so far.
type snapshot struct {
	pods       []podRow
	nodes      []nodeRow
	feed       []sink.Record
	namespaces []string
	warnings   int
}

// fold replays records in publish order.
func fold(recs []sink.Record, ns string) snapshot {
	pods := map[string]*podRow{}
	podByUID := map[string]string{}
	nodes := map[string]*nodeRow{}
	nodeByUID := map[string]string{}
	var s snapshot

	pod := func(key, namespace, name string) *podRow {
		p, ok := pods[key]
		if !ok {
			p = &podRow{Namespace: namespace, PodName: name}
			pods[key] = p
		}
		return p
	}
	node := func(name string) *nodeRow {
		n, ok := nodes[name]
		if !ok {
			n = &nodeRow{NodeName: name}
			nodes[name] = n
		}
		return n
	}

	for _, rec := range recs {
		switch ev := rec.Event.(type) {
		case domain.PodInfo:
			key := ev.Namespace + "/" + ev.PodName
			p := pod(key, ev.Namespace, ev.PodName)
			p.UID, p.NodeName, p.QOSClass, p.Owner = ev.PodUID, ev.NodeName, ev.QOSClass, ev.TopLevelOwner
			p.CPUReq, p.MemReq = ev.Resources.Requests.CPU.Amount, ev.Resources.Requests.Memory.Amount
			p.CPULim, p.MemLim = ev.Resources.Limits.CPU.Amount, ev.Resources.Limits.Memory.Amount
			p.Images = p.Images[:0]
			for _, c := range ev.Containers {
				p.Images = append(p.Images, c.Image)
			}
			podByUID[ev.PodUID] = key
		case domain.PodEvent:
			if ev.Type == domain.PodDeleted {
				delete(pods, podByUID[ev.PodUID])
				delete(podByUID, ev.PodUID)
			}
		case domain.PodMetric:
			p := pod(ev.Namespace+"/"+ev.PodName, ev.Namespace, ev.PodName)
			p.CPU, p.Mem = ev.Usage.CPU.Amount, ev.Usage.Memory.Amount
			p.CPUTrend = push(p.CPUTrend, float64(p.CPU))
			p.MemTrend = push(p.MemTrend, float64(p.Mem))
		case domain.NodeInfo:
			n := node(ev.NodeName)
			n.UID, n.Kubelet = ev.NodeUID, ev.KubeletVersion
			n.CPUAlloc, n.MemAlloc = ev.Allocatable.CPU.Amount, ev.Allocatable.Memory.Amount
			nodeByUID[ev.NodeUID] = ev.NodeName
		case domain.NodeEvent:
			if ev.Type == domain.NodeStopped {
				delete(nodes, nodeByUID[ev.NodeUID])
				delete(nodeByUID, ev.NodeUID)
			}
		case domain.NodeMetric:
			n := node(ev.NodeName)
			n.CPU, n.Mem = ev.Usage.CPU.Amount, ev.Usage.Memory.Amount
			n.CPUTrend = push(n.CPUTrend, float64(n.CPU))
			n.MemTrend = push(n.MemTrend, float64(n.Mem))
		case domain.QuantityWarning:
			s.warnings++
		}
		switch rec.Event.EventKind() {
		case domain.KindNodeMetric, domain.KindPodMetric, domain.KindClusterSync:
		default:
			s.feed = append(s.feed, rec)
		}
	}

	seenNS := map[string]bool{}
	for _, p := range pods {
		if n, ok := nodes[p.NodeName]; ok {
			n.Pods++
		}
		if !seenNS[p.Namespace] {
			seenNS[p.Namespace] = true
			s.namespaces = append(s.namespaces, p.Namespace)
		}
		if ns == "" || p.Namespace == ns {
			s.pods = append(s.pods, *p)
		}
	}
	for _, n := range nodes {
		s.nodes = append(s.nodes, *n)
	}
	sort.Strings(s.namespaces)
	return s
}

func push(samples []float64, v float64) []float64 {
	samples = append(samples, v)
	if len(samples) > trendLen {
		samples = samples[len(samples)-trendLen:]
	}
	return samples
}

// normalize scales samples into [0,1] against base, or against their own
// maximum when base is unknown.
func normalize(samples []float64, base int64) []float64 {
	b := float64(base)
	if b <= 0 {
		for _, v := range samples {
			b = max(b, v)
		}
	}
	if b <= 0 {
		b = 1
	}
	out := make([]float64, len(samples))
	for i, v := range samples {
		out[i] = v / b
	}
	return out
}

func sortPods(p []podRow, by string) {
	sort.SliceStable(p, func(i, j int) bool {
		if by == "mem" {
			return p[i].Mem > p[j].Mem
		}
		return p[i].CPU > p[j].CPU
	})
}

func sortNodes(n []nodeRow, by string) {
	sort.SliceStable(n, func(i, j int) bool {
		if by == "mem" {
			return ratio(n[i].Mem, n[i].MemAlloc) > ratio(n[j].Mem, n[j].MemAlloc)
		}
		return ratio(n[i].CPU, n[i].CPUAlloc) > ratio(n[j].CPU, n[j].CPUAlloc)
	})
}

func ratio(v, of int64) float64 {
	if of <= 0 {
		return 0
	}
	return float64(v) / float64(of)
}
