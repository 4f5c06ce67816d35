// Package sink delivers published events to downstream transports.
package sink

import (
	"encoding/json"
	"time"

	"github.com/HaPhanBaoMinh/kwatch/internal/domain"
)

// Envelope is the wire form of a published event.
type Envelope struct {
	Kind        domain.EventKind  `json:"kind"`
	ClusterID   string            `json:"clusterId"`
	ResourceUID string            `json:"resourceUid"`
	Timestamp   time.Time         `json:"timestamp"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Payload     domain.Event      `json:"payload"`
}

func NewEnvelope(ev domain.Event, ts time.Time, attrs map[string]string) Envelope {
	return Envelope{
		Kind:        ev.EventKind(),
		ClusterID:   ev.Cluster().ClusterID,
		ResourceUID: ev.ResourceUID(),
		Timestamp:   ts.UTC(),
		Attributes:  attrs,
		Payload:     ev,
	}
}

func (e Envelope) Marshal() ([]byte, error) { return json.Marshal(e) }

// Key partitions messages so every event of one resource lands in order.
func (e Envelope) Key() string {
	if e.ClusterID == "" {
		return e.ResourceUID
	}
	return e.ClusterID + "|" + e.ResourceUID
}
