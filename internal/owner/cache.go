package owner

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/HaPhanBaoMinh/kwatch/internal/domain"
)

// DefaultTTL bounds how stale a cached owner can be.
const DefaultTTL = time.Minute

// Key addresses one object in one cluster.
type Key struct {
	Endpoint  string
	Namespace string
	Kind      string
	Name      string
}

func (k Key) String() string {
	return k.Endpoint + "|" + k.Namespace + "|" + k.Kind + "|" + k.Name
}

// Node is a looked-up object: what it is and who controls it.
type Node struct {
	Owner      domain.Owner
	Controller *metav1.OwnerReference
}

// Cache stores looked-up nodes. Implementations must be safe for concurrent use
// and must report expired entries as absent.
type Cache interface {
	Get(Key) (Node, bool)
	Set(Key, Node)
}

type ttlCache struct {
	c   *gocache.Cache
	ttl time.Duration
}

// NewCache returns a Cache whose entries expire ttl after being written.
func NewCache(ttl time.Duration) Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ttlCache{c: gocache.New(ttl, 2*ttl), ttl: ttl}
}

func (t *ttlCache) Get(k Key) (Node, bool) {
	v, ok := t.c.Get(k.String())
	if !ok {
		return Node{}, false
	}
	return v.(Node), true
}

func (t *ttlCache) Set(k Key, n Node) {
	t.c.Set(k.String(), n, t.ttl)
}
