// Package resources normalizes Kubernetes CPU and memory quantities into
// nanocores and bytes, and aggregates container requests and limits.
package resources

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gopkg.in/inf.v0"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/HaPhanBaoMinh/kwatch/internal/domain"
)

const nanoPerCore = 1_000_000_000

// QuantityError carries the raw string that failed to normalize.
type QuantityError struct {
	Raw   string
	Cause error
}

func (e *QuantityError) Error() string {
	return fmt.Sprintf("invalid quantity %q: %v", e.Raw, e.Cause)
}

func (e *QuantityError) Unwrap() []error { return []error{domain.ErrInvalidQuantity, e.Cause} }

// CPUNano converts a CPU quantity ("500m", "2") to nanocores, truncating.
func CPUNano(raw string) (int64, error) {
	return scaled(raw, nanoPerCore)
}

// MemoryByte converts a memory quantity ("128Mi", "1G") to bytes, truncating.
func MemoryByte(raw string) (int64, error) {
	return scaled(raw, 1)
}

// FromQuantity normalizes an already parsed quantity.
func FromQuantity(q resource.Quantity, cpu bool) int64 {
	mult := int64(1)
	if cpu {
		mult = nanoPerCore
	}
	v, _ := truncate(q, mult)
	return v
}

func scaled(raw string, mult int64) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	q, err := resource.ParseQuantity(raw)
	if err != nil {
		return 0, &QuantityError{Raw: raw, Cause: err}
	}
	v, err := truncate(q, mult)
	if err != nil {
		return 0, &QuantityError{Raw: raw, Cause: err}
	}
	return v, nil
}

// truncate multiplies q by mult on decimal arithmetic and drops the fraction.
func truncate(q resource.Quantity, mult int64) (int64, error) {
	if q.Sign() < 0 {
		return 0, errors.New("negative amount")
	}
	d := new(inf.Dec).Mul(q.AsDec(), inf.NewDec(mult, 0))
	d.Round(d, 0, inf.RoundDown)
	v := d.UnscaledBig()
	if !v.IsInt64() {
		return math.MaxInt64, nil
	}
	return v.Int64(), nil
}

// Policy decides what an unparsable quantity does to the caller.
type Policy string

const (
	// PolicyLenient counts invalid quantities as zero and reports them as warnings.
	PolicyLenient Policy = "lenient"
	// PolicyStrict rejects the object carrying an invalid quantity.
	PolicyStrict Policy = "strict"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(s)) {
	case PolicyLenient, "":
		return PolicyLenient, nil
	case PolicyStrict:
		return PolicyStrict, nil
	}
	return "", fmt.Errorf("unknown quantity policy %q", s)
}

// InvalidQuantities extracts every QuantityError from a (possibly joined) error.
func InvalidQuantities(err error) []*QuantityError {
	if err == nil {
		return nil
	}
	var out []*QuantityError
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		if qe, ok := err.(*QuantityError); ok {
			return []*QuantityError{qe}
		}
		for _, e := range joined.Unwrap() {
			out = append(out, InvalidQuantities(e)...)
		}
		return out
	}
	var qe *QuantityError
	if errors.As(err, &qe) {
		out = append(out, qe)
	}
	return out
}
