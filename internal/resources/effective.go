package resources

import (
	"errors"
	"math"

	corev1 "k8s.io/api/core/v1"

	"github.com/HaPhanBaoMinh/kwatch/internal/domain"
)

type totals struct {
	reqCPU, reqMem, limCPU, limMem int64
}

// EffectiveResources returns the pod-level requests and limits.
//
// Regular containers run together, so their demand is summed. Init containers
// run one at a time before them, so each only has to fit on its own: the result
// is max(sum(regular), init) per resource.
//
// Invalid quantities count as zero; the totals are still returned alongside an
// error joining one QuantityError per offending value.
func EffectiveResources(containers, initContainers []corev1.Container) (domain.Resources, error) {
	var sum totals
	var errs []error
	for _, c := range containers {
		t, err := containerTotals(c)
		errs = append(errs, err)
		sum.reqCPU = addSat(sum.reqCPU, t.reqCPU)
		sum.reqMem = addSat(sum.reqMem, t.reqMem)
		sum.limCPU = addSat(sum.limCPU, t.limCPU)
		sum.limMem = addSat(sum.limMem, t.limMem)
	}
	for _, c := range initContainers {
		t, err := containerTotals(c)
		errs = append(errs, err)
		sum.reqCPU = max(sum.reqCPU, t.reqCPU)
		sum.reqMem = max(sum.reqMem, t.reqMem)
		sum.limCPU = max(sum.limCPU, t.limCPU)
		sum.limMem = max(sum.limMem, t.limMem)
	}
	return domain.Resources{
		Requests: domain.Resource{CPU: domain.CPU(sum.reqCPU), Memory: domain.Memory(sum.reqMem)},
		Limits:   domain.Resource{CPU: domain.CPU(sum.limCPU), Memory: domain.Memory(sum.limMem)},
	}, errors.Join(errs...)
}

// addSat adds two non-negative amounts, stopping at math.MaxInt64.
func addSat(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

func containerTotals(c corev1.Container) (totals, error) {
	var t totals
	var errs [4]error
	t.reqCPU, errs[0] = CPUNano(quantityString(c.Resources.Requests, corev1.ResourceCPU))
	t.reqMem, errs[1] = MemoryByte(quantityString(c.Resources.Requests, corev1.ResourceMemory))
	t.limCPU, errs[2] = CPUNano(quantityString(c.Resources.Limits, corev1.ResourceCPU))
	t.limMem, errs[3] = MemoryByte(quantityString(c.Resources.Limits, corev1.ResourceMemory))
	return t, errors.Join(errs[:]...)
}

func quantityString(list corev1.ResourceList, name corev1.ResourceName) string {
	q, ok := list[name]
	if !ok {
		return ""
	}
	return q.String()
}
