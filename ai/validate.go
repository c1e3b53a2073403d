package ai

import (
	"fmt"
	"math"
)

// MinVectorNorm is the smallest acceptable L2 norm for an embedding.
// Vectors below it are quasi-null and carry no usable signal.
const MinVectorNorm = 0.5

// maxVectorNormWarn is the norm above which a vector is suspicious but
// still accepted.
const maxVectorNormWarn = 100.0

// ValidateVector checks a provider's output against the contract: exact
// dimensionality, finite components, and a norm of at least MinVectorNorm.
func ValidateVector(vector []float32, dimension int) error {
	if len(vector) != dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), dimension)
	}

	var sumSquares float64
	for i, v := range vector {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: component %d", ErrNonFiniteVector, i)
		}
		sumSquares += f * f
	}

	norm := math.Sqrt(sumSquares)
	if norm < MinVectorNorm {
		return fmt.Errorf("%w: norm %.4f < %.2f", ErrDegenerateVector, norm, MinVectorNorm)
	}

	return nil
}

// VectorNorm returns the L2 norm of a vector.
func VectorNorm(vector []float32) float64 {
	var sumSquares float64
	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}
	return math.Sqrt(sumSquares)
}

// SuspiciousNorm reports whether a vector's norm is unusually large.
// Such vectors are accepted but logged.
func SuspiciousNorm(vector []float32) bool {
	return VectorNorm(vector) > maxVectorNormWarn
}
