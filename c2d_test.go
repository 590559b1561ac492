package gossf

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestVanLoan(t *testing.T) {
	// Integrated random walk: T = [1 Δt; 0 1], V = [Δt³/3 Δt²/2; Δt²/2 Δt].
	A := mat.NewDense(2, 2, []float64{0, 1, 0, 0})
	Γ := mat.NewDense(2, 1, []float64{0, 1})
	W := mat.NewDense(1, 1, []float64{1})
	T, V, err := VanLoan(A, Γ, W, 0.1)
	require.NoError(t, err)
	Texp := mat.NewDense(2, 2, []float64{1, 0.1, 0, 1})
	Vexp := mat.NewSymDense(2, []float64{0.001 / 3, 0.005, 0.005, 0.1})
	assert.True(t, mat.EqualApprox(T, Texp, 1e-9), "T=%v", mat.Formatted(T))
	assert.True(t, mat.EqualApprox(V, Vexp, 1e-9), "V=%v", mat.Formatted(V))
}

func TestVanLoanNyquist(t *testing.T) {
	// Harmonic oscillator with ω=1 sampled every 4s.
	A := mat.NewDense(2, 2, []float64{0, 1, -1, 0})
	Γ := mat.NewDense(2, 1, []float64{0, 1})
	W := mat.NewDense(1, 1, []float64{1})
	T, V, err := VanLoan(A, Γ, W, 4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNyquist))
	assert.NotNil(t, T)
	assert.NotNil(t, V)
}

func TestNewDiscretized(t *testing.T) {
	A := mat.NewDense(2, 2, []float64{0, 1, 0, 0})
	Γ := mat.NewDense(2, 1, []float64{0, 1})
	W := mat.NewDense(1, 1, []float64{0.5})
	m, err := NewDiscretized(A, Γ, W, 1, mat.NewVecDense(2, []float64{1, 0}), 0.3)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Initialization().DiffuseDim())

	data := Series{1, 2.2, 2.9, 4.1, 5.3, 5.8, 7.2}
	res, err := NewDiffuseFilter(Options{}).Run(m, data)
	require.NoError(t, err)
	assert.Equal(t, 1, res.CollapsedAt())
}
