package gossf

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSimulate(t *testing.T) {
	m := NewLocalLinearTrend(0.2, 0.01, 0.5)
	y1, err := Simulate(m, 50, rand.NewPCG(1, 2))
	require.NoError(t, err)
	require.Len(t, y1, 50)
	y2, err := Simulate(m, 50, rand.NewPCG(1, 2))
	require.NoError(t, err)
	assert.Equal(t, y1, y2, "same seed must give the same series")
	y3, err := Simulate(m, 50, rand.NewPCG(1, 3))
	require.NoError(t, err)
	assert.NotEqual(t, y1, y3)
	for _, v := range y1 {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}
}

func TestSimulateSingularCovariance(t *testing.T) {
	// Only the first state has an innovation.
	m, err := NewModel(
		mat.NewDense(2, 2, []float64{0.5, 0, 1, 0}),
		mat.NewSymDense(2, []float64{1, 0, 0, 0}),
		mat.NewVecDense(2, []float64{0, 1}),
		0,
		mat.NewVecDense(2, nil),
		mat.NewSymDense(2, []float64{1, 0, 0, 0}),
		nil,
	)
	require.NoError(t, err)
	y, err := Simulate(m, 10, rand.NewPCG(7, 7))
	require.NoError(t, err)
	assert.InDelta(t, 0, y[0], 1e-12, "the second state starts at zero without noise")
	for _, v := range y[1:] {
		assert.NotEqual(t, 0.0, v)
	}
}

func TestMCRuns(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Monte Carlo runs in short mode")
	}
	m, err := NewAR1(0.6, 1, 0.5)
	require.NoError(t, err)
	runs, err := NewMonteCarloRuns(context.Background(), m, 20, 60, 42, Concentrated, Options{Parallelism: 4})
	require.NoError(t, err)
	require.Len(t, runs.Runs, 20)
	for r, run := range runs.Runs {
		assert.Len(t, run.Data, 60, "sample #%d", r)
		assert.NoError(t, run.Err)
	}
	assert.Equal(t, 0, runs.Failures())
	assert.Len(t, runs.LogLikelihoods(), 20)
	assert.False(t, math.IsNaN(runs.Mean()))
	assert.True(t, runs.StdDev() > 0)
	// The data are drawn from the model itself: the scale estimate is close to one.
	mean, stddev := runs.Sigma2()
	assert.InDelta(t, 1, mean, 0.3)
	assert.True(t, stddev > 0)

	again, err := NewMonteCarloRuns(context.Background(), m, 20, 60, 42, Concentrated, Options{Parallelism: 2})
	require.NoError(t, err)
	assert.Equal(t, runs.LogLikelihoods(), again.LogLikelihoods())
}

func TestMCRunsCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m, err := NewAR1(0.6, 1, 0.5)
	require.NoError(t, err)
	_, err = NewMonteCarloRuns(ctx, m, 4, 10, 1, Concentrated, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}
