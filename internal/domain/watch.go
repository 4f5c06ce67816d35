package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ResourceKind string

const (
	ResourceKindPod   ResourceKind = "Pod"
	ResourceKindNode  ResourceKind = "Node"
	ResourceKindEvent ResourceKind = "Event"
)

// WatchableKinds are the kinds a watch can be created for.
var WatchableKinds = []ResourceKind{ResourceKindPod, ResourceKindNode, ResourceKindEvent}

// ParseResourceKind is case-insensitive.
func ParseResourceKind(s string) (ResourceKind, error) {
	for _, k := range WatchableKinds {
		if strings.EqualFold(string(k), s) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedResourceKind, s)
}

// watchNamespace scopes watch ids; changing it changes every id.
var watchNamespace = uuid.MustParse("5b0c4c3e-7f0e-4d38-9a1e-3f6c2f4e8b21")

// WatchKey identifies a live watch: one per target and kind.
type WatchKey struct {
	Target string
	Kind   ResourceKind
}

func (k WatchKey) String() string { return k.Target + "/" + string(k.Kind) }

// ID is stable for a key, so repeated creates hand back the same id.
func (k WatchKey) ID() string {
	return uuid.NewSHA1(watchNamespace, []byte(k.String())).String()
}

// WatchRequest is what an orchestrator submits to start watching a cluster.
type WatchRequest struct {
	Cluster        ClusterIdentity
	Kind           ResourceKind
	CredentialsRef string
}

func (r WatchRequest) Key() WatchKey {
	return WatchKey{Target: r.Cluster.CloudProviderID, Kind: r.Kind}
}

// WatchInfo describes an active watch.
type WatchInfo struct {
	ID        string          `json:"watchId"`
	Target    string          `json:"target"`
	Kind      ResourceKind    `json:"resourceKind"`
	Cluster   ClusterIdentity `json:"cluster"`
	StartedAt time.Time       `json:"startedAt"`
	Events    int64           `json:"events"`
}
