package app

// clamp clamps v into [min, max].
func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// compute dynamic widths for Pods table based on available total width
func (m *Model) podColWidths(total int) (wPod, wCPU, wCPUBar, wMem, wMemBar, wOwner, wNode, wTrend int) {
	// fixed minimums (numbers and labels)
	minPod, minCPU, minMem, minOwner, minNode, minTrend := 24, 7, 9, 18, 12, 8

	base := minPod + minCPU + minMem + minOwner + minNode + minTrend
	remain := total - base
	if remain < 10 {
		remain = 10
	}

	// allocate flexible space to bars, favor pod name with any remainder
	wCPUBar = remain / 3
	wMemBar = remain / 3
	extra := remain - (wCPUBar + wMemBar)

	wPod = clamp(minPod+extra, 16, 60)
	wCPU = minCPU
	wMem = minMem
	wOwner = minOwner
	wNode = clamp(minNode, 10, 30)
	wTrend = minTrend
	wCPUBar = clamp(wCPUBar, 6, 40)
	wMemBar = clamp(wMemBar, 6, 40)
	return
}

// compute dynamic widths for Nodes table based on available total width
func (m *Model) nodeColWidths(total int) (wNode, wCPUP, wCPUBar, wMEMP, wMEMBar, wPods, wK8s, wTrend int) {
	minNode, minPct, minPods, minK8s, minTrend := 16, 6, 5, 9, 8
	base := minNode + minPct + minPct + minPods + minK8s + minTrend
	remain := total - base
	if remain < 8 {
		remain = 8
	}

	wCPUBar = clamp(remain/2, 6, 40)
	wMEMBar = clamp(remain-remain/2, 6, 40)
	wNode = clamp(minNode, 12, 40)
	wCPUP = minPct
	wMEMP = minPct
	wPods = minPods
	wK8s = minK8s
	wTrend = minTrend
	return
}

// compute widths for the Watches table; the id column takes the slack
func (m *Model) watchColWidths(total int) (wID, wTarget, wKind, wEvents, wAge int) {
	wTarget, wKind, wEvents, wAge = 24, 8, 8, 10
	wID = clamp(total-(wTarget+wKind+wEvents+wAge), 12, 36)
	return
}
