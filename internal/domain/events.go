package domain

// EventKind names a published payload type. It is used as the sink routing key.
type EventKind string

const (
	KindPodInfo         EventKind = "pod_info"
	KindPodEvent        EventKind = "pod_event"
	KindNodeInfo        EventKind = "node_info"
	KindNodeEvent       EventKind = "node_event"
	KindClusterEvent    EventKind = "cluster_event"
	KindNodeMetric      EventKind = "node_metric"
	KindPodMetric       EventKind = "pod_metric"
	KindClusterSync     EventKind = "cluster_sync"
	KindQuantityWarning EventKind = "quantity_warning"
)

// Event is any value the agent publishes.
type Event interface {
	EventKind() EventKind
	ResourceUID() string
	Cluster() ClusterIdentity
}

func (c ClusterIdentity) Cluster() ClusterIdentity { return c }

func (PodInfo) EventKind() EventKind          { return KindPodInfo }
func (e PodInfo) ResourceUID() string         { return e.PodUID }
func (PodEvent) EventKind() EventKind         { return KindPodEvent }
func (e PodEvent) ResourceUID() string        { return e.PodUID }
func (NodeInfo) EventKind() EventKind         { return KindNodeInfo }
func (e NodeInfo) ResourceUID() string        { return e.NodeUID }
func (NodeEvent) EventKind() EventKind        { return KindNodeEvent }
func (e NodeEvent) ResourceUID() string       { return e.NodeUID }
func (ClusterEvent) EventKind() EventKind     { return KindClusterEvent }
func (e ClusterEvent) ResourceUID() string    { return e.Object.UID }
func (NodeMetric) EventKind() EventKind       { return KindNodeMetric }
func (e NodeMetric) ResourceUID() string      { return e.NodeName }
func (PodMetric) EventKind() EventKind        { return KindPodMetric }
func (e PodMetric) ResourceUID() string       { return e.Namespace + "/" + e.PodName }
func (ClusterSync) EventKind() EventKind      { return KindClusterSync }
func (e ClusterSync) ResourceUID() string     { return e.ClusterID }
func (QuantityWarning) EventKind() EventKind  { return KindQuantityWarning }
func (e QuantityWarning) ResourceUID() string { return e.ObjectUID }
