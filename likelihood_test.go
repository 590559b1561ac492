package gossf

import (
	"context"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioResults(t *testing.T) *FilteringResults {
	res, err := NewDiffuseFilter(DefaultOptions()).Run(NewLocalLevel(0.1, 0.2), scenario)
	require.NoError(t, err)
	return res
}

func TestLikelihoodModes(t *testing.T) {
	res := scenarioResults(t)
	ssq := 2 + 1.9*1.9/0.52
	ldet := math.Log(0.5) + math.Log(0.52)
	ll := func(m float64) float64 {
		return -0.5 * (m*math.Log(2*math.Pi) + m*(1+math.Log(ssq/m)) + ldet)
	}

	conc, err := NewLikelihood(res, Concentrated)
	require.NoError(t, err)
	assert.InDelta(t, ll(2), conc.LogLikelihood(), 1e-12)
	assert.InDelta(t, ssq/2, conc.Sigma2(), 1e-12)
	assert.Equal(t, 2, conc.DegreesOfFreedom())

	// Local level: the free propagation of the effect is 1 at every observed step.
	marg, err := NewLikelihood(res, Marginal)
	require.NoError(t, err)
	assert.InDelta(t, math.Log(3), marg.MarginalCorrection(), 1e-12)
	assert.InDelta(t, ll(2)+0.5*math.Log(3), marg.LogLikelihood(), 1e-12)

	legacy, err := NewLikelihood(res, Legacy)
	require.NoError(t, err)
	assert.InDelta(t, ll(3), legacy.LogLikelihood(), 1e-12)
	assert.InDelta(t, ssq/3, legacy.Sigma2(), 1e-12)

	_, err = NewLikelihood(res, LikelihoodMode(42))
	assert.Error(t, err)
}

func TestLikelihoodRescaling(t *testing.T) {
	m := NewLocalLinearTrend(0.3, 0.02, 0.5)
	data := Series{1.2, nan, 2.9, 4.4, 5.1, 6.8, nan, 8.7, 9.9, 11.2}
	const c = 3.7
	for _, ft := range []FilterType{ExactDiffuseType, AugmentedType} {
		opts := DefaultOptions()
		opts.Method = ft
		kf := NewDiffuseFilter(opts)
		res, err := kf.Run(m, data)
		require.NoError(t, err)
		scaled, err := kf.Run(m, Scale(data, c))
		require.NoError(t, err)
		for _, mode := range []LikelihoodMode{Concentrated, Marginal, Legacy} {
			lk, err := NewLikelihood(res, mode)
			require.NoError(t, err)
			lks, err := NewLikelihood(scaled, mode)
			require.NoError(t, err)
			fm := float64(lk.m)
			assert.InDelta(t, lk.LogLikelihood()-fm*math.Log(c), lks.LogLikelihood(), 1e-9, "%s %s", ft, mode)
			assert.InDelta(t, c*c*lk.Sigma2(), lks.Sigma2(), 1e-9)
		}
	}
}

func TestLikelihoodRescalingProper(t *testing.T) {
	m, err := NewAR1(0.4, 2, 0.5)
	require.NoError(t, err)
	data := Series{0.3, -1.2, nan, 0.8, 2.1, -0.4}
	const c = 0.25
	res, err := Run(context.Background(), m, data, Options{})
	require.NoError(t, err)
	scaled, err := Run(context.Background(), m, Scale(data, c), Options{})
	require.NoError(t, err)
	lk, err := NewLikelihood(res, Concentrated)
	require.NoError(t, err)
	lks, err := NewLikelihood(scaled, Concentrated)
	require.NoError(t, err)
	assert.Equal(t, 5, lk.N())
	assert.InDelta(t, lk.LogLikelihood()-5*math.Log(c), lks.LogLikelihood(), 1e-10)
}

func TestLikelihoodDegenerate(t *testing.T) {
	// One observation resolves the level: no degree of freedom is left.
	res, err := NewDiffuseFilter(Options{}).Run(NewLocalLevel(0.1, 0.2), Series{1})
	require.NoError(t, err)
	_, err = NewLikelihood(res, Concentrated)
	assert.True(t, errors.Is(err, ErrInsufficientInformation))
	_, err = NewLikelihood(res, Legacy)
	assert.True(t, errors.Is(err, ErrNonPositiveVariance), "a null sum of squares is degenerate")

	res, err = NewDiffuseFilter(Options{}).Run(NewLocalLevel(0.1, 0.2), Series{1, 1})
	require.NoError(t, err)
	_, err = NewLikelihood(res, Concentrated)
	assert.True(t, IsNumericalFailure(err))
}

func TestLikelihoodCriteria(t *testing.T) {
	lk, err := NewLikelihood(scenarioResults(t), Concentrated)
	require.NoError(t, err)
	assert.InDelta(t, -2*lk.LogLikelihood()+4, lk.AIC(2), 1e-12)
	assert.InDelta(t, -2*lk.LogLikelihood()+2*math.Log(2), lk.BIC(2), 1e-12)
	assert.Equal(t, Concentrated, lk.Mode())
	assert.Equal(t, 3, lk.N())
	assert.Equal(t, 1, lk.Nd())
	assert.Equal(t, 0, lk.Nx())
	assert.Nil(t, lk.Coefficients())
	assert.Nil(t, lk.CoefficientsCovariance())
	assert.Contains(t, lk.String(), "concentrated")

	residuals := lk.Residuals()
	require.Len(t, residuals, 2)
	assert.InDelta(t, 1/math.Sqrt(0.5), residuals[0], 1e-12)
	assert.InDelta(t, 1.9/math.Sqrt(0.52), residuals[1], 1e-12)
	residuals[0] = 0
	assert.NotEqual(t, 0.0, lk.Residuals()[0])
}

func TestLikelihoodModeText(t *testing.T) {
	for _, mode := range []LikelihoodMode{Concentrated, Marginal, Legacy} {
		txt, err := mode.MarshalText()
		require.NoError(t, err)
		var back LikelihoodMode
		require.NoError(t, back.UnmarshalText(txt))
		assert.Equal(t, mode, back)
	}
	var lm LikelihoodMode
	assert.NoError(t, lm.UnmarshalText([]byte(" Marginal ")))
	assert.Equal(t, Marginal, lm)
	assert.Error(t, lm.UnmarshalText([]byte("profile")))
	_, err := LikelihoodMode(0).MarshalText()
	assert.Error(t, err)
	assert.Equal(t, "unknown", LikelihoodMode(9).String())
}
