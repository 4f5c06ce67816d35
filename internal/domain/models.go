package domain

import "time"

// ClusterIdentity is stamped on every published event.
type ClusterIdentity struct {
	CloudProviderID string `json:"cloudProviderId"`
	ClusterID       string `json:"clusterId"`
	ClusterName     string `json:"clusterName,omitempty"`
}

// ResourceQuantity is a normalized amount: CPU in nanocores (unit "n"), memory in bytes (unit "").
type ResourceQuantity struct {
	Amount int64  `json:"amount"`
	Unit   string `json:"unit"`
}

const (
	UnitNanocores = "n"
	UnitBytes     = ""
)

func CPU(nano int64) ResourceQuantity     { return ResourceQuantity{Amount: nano, Unit: UnitNanocores} }
func Memory(bytes int64) ResourceQuantity { return ResourceQuantity{Amount: bytes, Unit: UnitBytes} }

type Resource struct {
	CPU    ResourceQuantity `json:"cpu"`
	Memory ResourceQuantity `json:"memory"`
}

type Resources struct {
	Requests Resource `json:"requests"`
	Limits   Resource `json:"limits"`
}

// Owner is the terminal node of an owner-chain walk.
type Owner struct {
	Kind   string            `json:"kind"`
	Name   string            `json:"name"`
	UID    string            `json:"uid"`
	Labels map[string]string `json:"labels,omitempty"`
}

type ContainerInfo struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

// ---- watcher events ----

type PodInfo struct {
	ClusterIdentity
	PodUID            string            `json:"podUid"`
	PodName           string            `json:"podName"`
	Namespace         string            `json:"namespace"`
	NodeName          string            `json:"nodeName"`
	QOSClass          string            `json:"qosClass,omitempty"`
	CreationTimestamp time.Time         `json:"creationTimestamp"`
	Labels            map[string]string `json:"labels,omitempty"`
	Resources         Resources         `json:"resources"`
	TopLevelOwner     Owner             `json:"topLevelOwner"`
	Containers        []ContainerInfo   `json:"containers,omitempty"`
	VolumeClaims      []string          `json:"volumeClaims,omitempty"`
}

type PodEventType string

const (
	PodScheduled PodEventType = "Scheduled"
	PodDeleted   PodEventType = "Deleted"
)

type PodEvent struct {
	ClusterIdentity
	PodUID    string       `json:"podUid"`
	Type      PodEventType `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
}

type NodeInfo struct {
	ClusterIdentity
	NodeUID           string            `json:"nodeUid"`
	NodeName          string            `json:"nodeName"`
	ProviderID        string            `json:"providerId,omitempty"`
	KubeletVersion    string            `json:"kubeletVersion,omitempty"`
	CreationTimestamp time.Time         `json:"creationTimestamp"`
	Labels            map[string]string `json:"labels,omitempty"`
	Allocatable       Resource          `json:"allocatable"`
}

type NodeEventType string

const (
	NodeStarted NodeEventType = "Started"
	NodeStopped NodeEventType = "Stopped"
)

type NodeEvent struct {
	ClusterIdentity
	NodeUID   string        `json:"nodeUid"`
	NodeName  string        `json:"nodeName"`
	Type      NodeEventType `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
}

// InvolvedObject identifies the object a cluster event is about.
type InvolvedObject struct {
	Kind            string `json:"kind"`
	Name            string `json:"name"`
	Namespace       string `json:"namespace,omitempty"`
	UID             string `json:"uid"`
	ResourceVersion string `json:"resourceVersion,omitempty"`
}

type ClusterEvent struct {
	ClusterIdentity
	EventUID        string         `json:"eventUid"`
	SourceComponent string         `json:"sourceComponent"`
	Reason          string         `json:"reason"`
	Message         string         `json:"message"`
	Type            string         `json:"type"`
	Count           int32          `json:"count,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
	Object          InvolvedObject `json:"involvedObject"`
}

// QuantityWarning reports a quantity string that could not be normalized and was counted as zero.
type QuantityWarning struct {
	ClusterIdentity
	ObjectUID string `json:"objectUid"`
	Object    string `json:"object"`
	Raw       string `json:"raw"`
	Message   string `json:"message"`
}

// ---- polled metrics ----

type NodeMetric struct {
	ClusterIdentity
	NodeName  string        `json:"nodeName"`
	Timestamp time.Time     `json:"timestamp"`
	Window    time.Duration `json:"window"`
	Usage     Resource      `json:"usage"`
}

type PodMetric struct {
	ClusterIdentity
	Namespace string        `json:"namespace"`
	PodName   string        `json:"podName"`
	Timestamp time.Time     `json:"timestamp"`
	Window    time.Duration `json:"window"`
	Usage     Resource      `json:"usage"`
}

// ClusterSync lists the resources alive at a heartbeat so consumers can close
// records whose terminal event was never seen.
type ClusterSync struct {
	ClusterIdentity
	ActivePodUIDs  []string  `json:"activePodUids"`
	ActiveNodeUIDs []string  `json:"activeNodeUids"`
	Heartbeat      time.Time `json:"heartbeat"`
}
