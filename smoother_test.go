package gossf

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func smoothingOptions() Options {
	opts := DefaultOptions()
	opts.SmoothVariances = true
	return opts
}

func TestSmoothTwoObservations(t *testing.T) {
	const q, h = 0.3, 0.5
	y0, y1 := 1.0, 2.5
	m := NewLocalLevel(q, h)
	res, err := NewDiffuseFilter(DefaultOptions()).Run(m, Series{y0, y1})
	require.NoError(t, err)
	ss, err := NewSmoother(smoothingOptions()).Smooth(m, res)
	require.NoError(t, err)
	require.Equal(t, 2, ss.Len())

	f := q + 2*h
	assert.InDelta(t, y0+h*(y1-y0)/f, ss.State(0).AtVec(0), 1e-12)
	assert.InDelta(t, h*(q+h)/f, ss.Covariance(0).At(0, 0), 1e-12)
	assert.InDelta(t, y0+(h+q)*(y1-y0)/f, ss.State(1).AtVec(0), 1e-12)
	assert.InDelta(t, h*(q+h)/f, ss.Covariance(1).At(0, 0), 1e-12)
}

func TestSmoothLastStepIsFiltered(t *testing.T) {
	m := NewLocalLinearTrend(0.3, 0.02, 0.5)
	data := Series{1.2, nan, 2.9, 4.4, 5.1, 6.8, nan, 8.7, 9.9, 11.2}
	res, err := NewDiffuseFilter(DefaultOptions()).Run(m, data)
	require.NoError(t, err)
	ss, err := NewSmoother(smoothingOptions()).Smooth(m, res)
	require.NoError(t, err)

	last := res.Step(data.Len() - 1)
	filtered := cloneVec(last.A)
	filtered.AddScaledVec(filtered, last.E/last.F, last.C)
	assert.True(t, mat.EqualApprox(filtered, ss.State(data.Len()-1), 1e-12))
	var pf mat.SymDense
	pf.SymRankOne(last.P, -1/last.F, last.C)
	assert.True(t, mat.EqualApprox(&pf, ss.Covariance(data.Len()-1), 1e-12))

	assert.Len(t, ss.Component(0), data.Len())
	sd := ss.ComponentStdev(1)
	require.Len(t, sd, data.Len())
	for _, v := range sd {
		assert.True(t, v > 0)
	}
	signal, stdev := ss.Signal(m), ss.SignalStdev(m)
	assert.Equal(t, ss.Component(0), signal)
	assert.Len(t, stdev, data.Len())
}

// The state of the backward recursion at the end of the ordinary phase does
// not depend on how the ordinary phase was reached.
func TestSmoothBoundaryContinuity(t *testing.T) {
	m := NewLocalLinearTrend(0.3, 0.02, 0.5)
	data := Series{nan, 1.2, 2.9, nan, 5.1, 6.8, nan, 8.7, 9.9, 11.2}
	res, err := NewDiffuseFilter(DefaultOptions()).Run(m, data)
	require.NoError(t, err)
	ks := NewSmoother(smoothingOptions())
	ss, err := ks.Smooth(m, res)
	require.NoError(t, err)

	t0 := res.EndDiffusePosition()
	require.Equal(t, 3, t0)
	s := res.Step(t0)
	ord, err := NewOrdinaryFilter(DefaultOptions()).RunFrom(context.Background(), m, data, t0, s.A, s.P)
	require.NoError(t, err)
	oss, err := ks.Smooth(m, ord)
	require.NoError(t, err)
	assert.Equal(t, data.Len()-t0, oss.Len())

	b, first := ss.Boundary(), oss.Start()
	assert.True(t, mat.EqualApprox(b.R, first.R, 1e-9))
	assert.True(t, mat.EqualApprox(b.N, first.N, 1e-9))
	for i := t0; i < data.Len(); i++ {
		assert.True(t, mat.EqualApprox(ss.State(i), oss.State(i), 1e-9), "t=%d", i)
		assert.True(t, mat.EqualApprox(ss.Covariance(i), oss.Covariance(i), 1e-9), "t=%d", i)
	}
}

// A proper initialization with a very large variance approximates the diffuse one.
func TestSmoothLargeKappa(t *testing.T) {
	const kappa = 1e6
	diffuse := NewLocalLinearTrend(0.3, 0.02, 0.5)
	proper, err := NewModel(
		mat.NewDense(2, 2, []float64{1, 1, 0, 1}),
		mat.NewSymDense(2, []float64{0.3, 0, 0, 0.02}),
		mat.NewVecDense(2, []float64{1, 0}),
		0.5,
		mat.NewVecDense(2, nil),
		ScaledIdentity(2, kappa),
		nil,
	)
	require.NoError(t, err)
	data := Series{1.2, nan, 2.9, 4.4, 5.1, 6.8, nan, 8.7, 9.9, 11.2}

	ks := NewSmoother(smoothingOptions())
	res, err := NewDiffuseFilter(DefaultOptions()).Run(diffuse, data)
	require.NoError(t, err)
	ss, err := ks.Smooth(diffuse, res)
	require.NoError(t, err)
	pres, err := NewOrdinaryFilter(DefaultOptions()).Run(proper, data)
	require.NoError(t, err)
	pss, err := ks.Smooth(proper, pres)
	require.NoError(t, err)
	for i := 0; i < data.Len(); i++ {
		assert.True(t, mat.EqualApprox(ss.State(i), pss.State(i), 1e-4), "state t=%d", i)
		assert.True(t, mat.EqualApprox(ss.Covariance(i), pss.Covariance(i), 1e-3), "covariance t=%d", i)
	}
}

func TestSmoothWithoutVariances(t *testing.T) {
	m := NewLocalLevel(0.1, 0.2)
	res, err := NewDiffuseFilter(DefaultOptions()).Run(m, scenario)
	require.NoError(t, err)
	ss, err := NewSmoother(DefaultOptions()).Smooth(m, res)
	require.NoError(t, err)
	assert.NotNil(t, ss.State(0))
	assert.Nil(t, ss.Covariance(0))
	assert.Nil(t, ss.ComponentStdev(0))
	assert.Nil(t, ss.SignalStdev(m))
}

func TestSmoothErrors(t *testing.T) {
	m := NewLocalLevel(0.1, 0.2)
	res, err := NewDiffuseFilter(Options{}).Run(m, scenario)
	require.NoError(t, err)
	_, err = NewSmoother(Options{}).Smooth(m, res)
	assert.ErrorIs(t, err, ErrStatesNotStored)

	opts := DefaultOptions()
	opts.Method = AugmentedType
	res, err = NewDiffuseFilter(opts).Run(m, scenario)
	require.NoError(t, err)
	_, err = NewSmoother(opts).Smooth(m, res)
	assert.ErrorIs(t, err, ErrSmoothingUnsupported)

	res, err = NewDiffuseFilter(DefaultOptions()).Run(m, scenario)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewSmoother(Options{}).SmoothContext(ctx, m, res)
	assert.ErrorIs(t, err, context.Canceled)
}

// Loading rows that only set their nonzero entries smooth like dense rows.
func TestSmoothSparseVaryingLoading(t *testing.T) {
	build := func(row func(int, *mat.VecDense)) *Form {
		init, err := NewFixedInitialization(mat.NewVecDense(2, nil), mat.NewSymDense(2, nil), Identity(2))
		require.NoError(t, err)
		dyn, err := NewFixedDynamics(Identity(2), mat.NewSymDense(2, []float64{0.1, 0, 0, 0.1}))
		require.NoError(t, err)
		return &Form{Init: init, Dyn: dyn, Load: NewVaryingLoading(2, row), Noise: ConstantNoise(0.3)}
	}
	sparse := build(func(t int, z *mat.VecDense) { z.SetVec(t%2, 1) })
	dense := build(func(t int, z *mat.VecDense) {
		z.SetVec(t%2, 1)
		z.SetVec(1-t%2, 0)
	})
	data := Series{1, 2, 1.5, 2.5, 1.2, 2.2}

	ks := NewSmoother(smoothingOptions())
	smooth := func(m SSF) *SmoothedSeries {
		res, err := NewDiffuseFilter(DefaultOptions()).Run(m, data)
		require.NoError(t, err)
		require.Equal(t, 1, res.CollapsedAt())
		ss, err := ks.Smooth(m, res)
		require.NoError(t, err)
		return ss
	}
	exp, got := smooth(dense), smooth(sparse)
	require.Equal(t, exp.Len(), got.Len())
	for i := 0; i < data.Len(); i++ {
		assert.True(t, mat.EqualApprox(exp.State(i), got.State(i), 1e-12), "state at %d", i)
		assert.True(t, mat.EqualApprox(exp.Covariance(i), got.Covariance(i), 1e-12), "covariance at %d", i)
	}
}
