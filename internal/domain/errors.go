package domain

import "errors"

var (
	// ErrUnsupportedResourceKind is returned at watch creation for kinds that cannot be watched.
	ErrUnsupportedResourceKind = errors.New("unsupported resource kind")
	// ErrClusterUnreachable marks transport failures; callers decide on retry.
	ErrClusterUnreachable = errors.New("cluster unreachable")
	// ErrOwnerLookupFailed is recovered inside owner resolution and never surfaced by it.
	ErrOwnerLookupFailed = errors.New("owner lookup failed")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	// ErrWatchClosedUnexpectedly is logged when the cluster closes a watch stream.
	ErrWatchClosedUnexpectedly = errors.New("watch closed unexpectedly")
)
