package resources

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/HaPhanBaoMinh/kwatch/internal/domain"
)

func TestCPUNano(t *testing.T) {
	tests := []struct {
		raw  string
		want int64
	}{
		{"", 0},
		{"0", 0},
		{"500m", 500_000_000},
		{"2", 2_000_000_000},
		{"100m", 100_000_000},
		{"0.3", 300_000_000},
		{"1n", 1},
		{"250u", 250_000},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := CPUNano(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMemoryByte(t *testing.T) {
	tests := []struct {
		raw  string
		want int64
	}{
		{"", 0},
		{"0", 0},
		{"128Mi", 134217728},
		{"1Gi", 1 << 30},
		{"1G", 1_000_000_000},
		{"1500m", 1},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := MemoryByte(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInvalidQuantity(t *testing.T) {
	for _, raw := range []string{"abc", "12XB", "-1"} {
		t.Run(raw, func(t *testing.T) {
			v, err := CPUNano(raw)
			require.Error(t, err)
			assert.Zero(t, v)
			assert.True(t, errors.Is(err, domain.ErrInvalidQuantity))

			var qe *QuantityError
			require.True(t, errors.As(err, &qe))
			assert.Equal(t, raw, qe.Raw)
		})
	}
}

func TestFromQuantity(t *testing.T) {
	assert.Equal(t, int64(250_000_000), FromQuantity(resource.MustParse("250m"), true))
	assert.Equal(t, int64(64<<20), FromQuantity(resource.MustParse("64Mi"), false))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyLenient, p)

	p, err = ParsePolicy("STRICT")
	require.NoError(t, err)
	assert.Equal(t, PolicyStrict, p)

	_, err = ParsePolicy("sometimes")
	assert.Error(t, err)
}

func container(cpu, mem string) corev1.Container {
	return corev1.Container{
		Resources: corev1.ResourceRequirements{
			Requests: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse(cpu),
				corev1.ResourceMemory: resource.MustParse(mem),
			},
			Limits: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse(cpu),
				corev1.ResourceMemory: resource.MustParse(mem),
			},
		},
	}
}

func TestEffectiveResources(t *testing.T) {
	t.Run("init_container_dominates", func(t *testing.T) {
		res, err := EffectiveResources(
			[]corev1.Container{container("100m", "64Mi"), container("200m", "32Mi")},
			[]corev1.Container{container("400m", "256Mi")},
		)
		require.NoError(t, err)
		assert.Equal(t, domain.CPU(400_000_000), res.Requests.CPU)
		assert.Equal(t, domain.Memory(256<<20), res.Requests.Memory)
		assert.Equal(t, domain.CPU(400_000_000), res.Limits.CPU)
	})

	t.Run("regular_sum_dominates", func(t *testing.T) {
		res, err := EffectiveResources(
			[]corev1.Container{container("300m", "200Mi"), container("300m", "200Mi")},
			[]corev1.Container{container("500m", "100Mi")},
		)
		require.NoError(t, err)
		assert.Equal(t, int64(600_000_000), res.Requests.CPU.Amount)
		assert.Equal(t, int64(400<<20), res.Requests.Memory.Amount)
		assert.Equal(t, "n", res.Requests.CPU.Unit)
		assert.Equal(t, "", res.Requests.Memory.Unit)
	})

	t.Run("huge_sum_saturates", func(t *testing.T) {
		res, err := EffectiveResources(
			[]corev1.Container{container("5G", "64Mi"), container("5G", "64Mi")},
			nil,
		)
		require.NoError(t, err)
		assert.Equal(t, int64(math.MaxInt64), res.Requests.CPU.Amount)
		assert.Equal(t, int64(math.MaxInt64), res.Limits.CPU.Amount)
		assert.Equal(t, int64(128<<20), res.Requests.Memory.Amount)
	})

	t.Run("missing_resources_are_zero", func(t *testing.T) {
		res, err := EffectiveResources([]corev1.Container{{Name: "bare"}}, nil)
		require.NoError(t, err)
		assert.Equal(t, domain.Resources{
			Requests: domain.Resource{CPU: domain.CPU(0), Memory: domain.Memory(0)},
			Limits:   domain.Resource{CPU: domain.CPU(0), Memory: domain.Memory(0)},
		}, res)
	})
}

func TestInvalidQuantities(t *testing.T) {
	_, e1 := CPUNano("bogus")
	_, e2 := MemoryByte("nope")
	joined := errors.Join(nil, errors.Join(e1), e2)

	found := InvalidQuantities(joined)
	require.Len(t, found, 2)
	assert.Equal(t, "bogus", found[0].Raw)
	assert.Equal(t, "nope", found[1].Raw)
	assert.Nil(t, InvalidQuantities(nil))
}
