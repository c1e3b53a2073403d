package ai

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func unitVector(dim int) []float32 {
	v := make([]float32, dim)
	val := float32(1.0 / math.Sqrt(float64(dim)))
	for i := range v {
		v[i] = val
	}
	return v
}

func TestValidateVector(t *testing.T) {
	tests := []struct {
		name    string
		vector  []float32
		dim     int
		wantErr error
	}{
		{
			name:    "valid unit vector",
			vector:  unitVector(8),
			dim:     8,
			wantErr: nil,
		},
		{
			name:    "wrong dimension",
			vector:  unitVector(8),
			dim:     16,
			wantErr: ErrDimensionMismatch,
		},
		{
			name:    "empty vector",
			vector:  nil,
			dim:     8,
			wantErr: ErrDimensionMismatch,
		},
		{
			name:    "NaN component",
			vector:  []float32{1, float32(math.NaN()), 0, 0},
			dim:     4,
			wantErr: ErrNonFiniteVector,
		},
		{
			name:    "Inf component",
			vector:  []float32{1, float32(math.Inf(1)), 0, 0},
			dim:     4,
			wantErr: ErrNonFiniteVector,
		},
		{
			name:    "quasi-null vector",
			vector:  []float32{0.001, 0.001, 0.001, 0.001},
			dim:     4,
			wantErr: ErrDegenerateVector,
		},
		{
			name:    "all zeros",
			vector:  make([]float32, 4),
			dim:     4,
			wantErr: ErrDegenerateVector,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateVector(tt.vector, tt.dim)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestVectorNorm(t *testing.T) {
	assert.InDelta(t, 5.0, VectorNorm([]float32{3, 4}), 1e-6)
	assert.InDelta(t, 0.0, VectorNorm(nil), 1e-6)
}

func TestSuspiciousNorm(t *testing.T) {
	assert.False(t, SuspiciousNorm(unitVector(8)))

	big := []float32{200, 0, 0}
	assert.True(t, SuspiciousNorm(big))
}
