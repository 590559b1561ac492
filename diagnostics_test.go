package gossf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alternating(n int) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = 1
		if i%2 == 1 {
			x[i] = -1
		}
	}
	return x
}

func TestAutocorrelations(t *testing.T) {
	acf := Autocorrelations(alternating(40), 3)
	require.Len(t, acf, 4)
	assert.InDelta(t, 1, acf[0], 1e-14)
	assert.InDelta(t, -39.0/40, acf[1], 1e-14)
	assert.InDelta(t, 38.0/40, acf[2], 1e-14)
	assert.InDelta(t, -37.0/40, acf[3], 1e-14)
}

func TestLjungBox(t *testing.T) {
	x := alternating(40)
	q, p, dof, err := LjungBox(x, 4, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, dof)
	assert.True(t, q > 100)
	assert.True(t, p < 1e-6)

	_, _, dof, err = LjungBox(x, 2, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, dof)

	_, _, _, err = LjungBox(x, 0, 0)
	assert.Error(t, err)
	_, _, _, err = LjungBox(x, 40, 0)
	assert.Error(t, err)
}

func TestJarqueBera(t *testing.T) {
	jb, p := JarqueBera([]float64{-1.5, -0.5, 0, 0.5, 1.5, -0.2, 0.2, 0.1, -0.1})
	assert.True(t, jb >= 0)
	assert.True(t, p > 0 && p <= 1)
	// Strongly skewed sample.
	skewed := make([]float64, 50)
	skewed[0] = 100
	jb, p = JarqueBera(skewed)
	assert.True(t, jb > 100)
	assert.True(t, p < 1e-6)
}

func TestNewDiagnostics(t *testing.T) {
	_, err := NewDiagnostics([]float64{1, 2}, 1, 0)
	assert.Error(t, err)

	lk, err := NewLikelihood(scenarioResults(t), Concentrated)
	require.NoError(t, err)
	_, err = NewDiagnostics(lk.Residuals(), 1, 2)
	assert.Error(t, err, "two residuals are not enough")

	d, err := NewDiagnostics(alternating(30), 5, 2)
	require.NoError(t, err)
	assert.Equal(t, 30, d.N)
	assert.InDelta(t, 0, d.Mean, 1e-14)
	assert.InDelta(t, 30.0/29, d.Variance, 1e-12)
	assert.Equal(t, 3, d.LjungBoxDOF)
	assert.True(t, d.LjungBoxPValue < 1e-6)
	assert.False(t, math.IsNaN(d.JarqueBera))
	assert.Contains(t, d.String(), "n=30")
}
