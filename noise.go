package gossf

import "fmt"

// ConstantNoise is a time invariant measurement error variance.
type ConstantNoise float64

// H implements the MeasurementError interface.
func (n ConstantNoise) H(int) float64 { return float64(n) }

// String implements the Stringer interface.
func (n ConstantNoise) String() string {
	return fmt.Sprintf("ConstantNoise{H=%g}", float64(n))
}

// VaryingNoise is a time varying measurement error variance.
type VaryingNoise func(t int) float64

// H implements the MeasurementError interface.
func (n VaryingNoise) H(t int) float64 { return n(t) }

// ScaledNoise multiplies an existing measurement error by a weight per time step,
// e.g. for heteroskedastic series where weights[t] is known up to scale.
func ScaledNoise(base MeasurementError, weights []float64) MeasurementError {
	return VaryingNoise(func(t int) float64 {
		h := 0.0
		if base != nil {
			h = base.H(t)
		}
		if t < len(weights) {
			return h * weights[t]
		}
		return h
	})
}
