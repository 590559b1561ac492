package gossf

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// LikelihoodMode selects the treatment of the diffuse and regression effects.
type LikelihoodMode uint8

const (
	// Concentrated is the diffuse likelihood with the scale concentrated out (m = n - nd).
	Concentrated LikelihoodMode = iota + 1
	// Marginal also accounts for the degrees of freedom of the regression effects
	// and for the marginal correction (m = n - nd - nx).
	Marginal
	// Legacy uses m = n, ignoring the diffuse dimension.
	Legacy
)

func (lm LikelihoodMode) String() string {
	switch lm {
	case Concentrated:
		return "concentrated"
	case Marginal:
		return "marginal"
	case Legacy:
		return "legacy"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (lm LikelihoodMode) MarshalText() ([]byte, error) {
	if lm < Concentrated || lm > Legacy {
		return nil, errors.Errorf("gossf: unknown likelihood mode %d", lm)
	}
	return []byte(lm.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (lm *LikelihoodMode) UnmarshalText(text []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(text)))
	for _, mode := range []LikelihoodMode{Concentrated, Marginal, Legacy} {
		if mode.String() == name {
			*lm = mode
			return nil
		}
	}
	return errors.Errorf("gossf: unknown likelihood mode %q", name)
}

// Likelihood is the concentrated Gaussian likelihood of a filter pass.
type Likelihood struct {
	mode      LikelihoodMode
	acc       accumulator
	m         int
	ll        float64
	residuals []float64
	coefs     *mat.VecDense
	coefsCov  *mat.SymDense
}

// NewLikelihood reduces the filtering results to a likelihood. It fails with
// InsufficientInformation when no degree of freedom is left, or when the
// marginal mode is asked for a diffuse part that was not fully resolved.
func NewLikelihood(res *FilteringResults, mode LikelihoodMode) (*Likelihood, error) {
	acc := res.acc
	var m int
	var det float64
	switch mode {
	case Concentrated:
		m = acc.n - acc.nd
		det = acc.ldet + acc.dcorr
	case Marginal:
		// log|X'X| only matches the diffuse terms when every direction was resolved.
		if acc.nd < res.diffuseDim {
			return nil, failure(InsufficientInformation, -1, float64(acc.nd))
		}
		m = acc.n - acc.nd - acc.nx
		det = acc.ldet + acc.dcorr + acc.rcorr - acc.mcorr
	case Legacy:
		m = acc.n
		det = acc.ldet + acc.dcorr
	default:
		return nil, errors.Errorf("gossf: unknown likelihood mode %d", mode)
	}
	if m <= 0 {
		return nil, failure(InsufficientInformation, -1, float64(m))
	}
	// A null sum of squares is a degenerate point (perfect fit).
	if !(acc.ssq > 0) {
		return nil, failure(NonPositiveVariance, -1, acc.ssq)
	}
	fm := float64(m)
	ll := -0.5 * (fm*math.Log(2*math.Pi) + fm*(1+math.Log(acc.ssq/fm)) + det)
	if math.IsNaN(ll) || math.IsInf(ll, 0) {
		return nil, failure(NonPositiveVariance, -1, ll)
	}
	lk := &Likelihood{mode: mode, acc: acc, m: m, ll: ll, coefs: res.coefs, coefsCov: res.coefsCov}
	for _, r := range res.residuals {
		if !math.IsNaN(r) {
			lk.residuals = append(lk.residuals, r)
		}
	}
	return lk, nil
}

// Mode returns the likelihood mode.
func (lk *Likelihood) Mode() LikelihoodMode { return lk.mode }

// LogLikelihood returns the concentrated log-likelihood.
func (lk *Likelihood) LogLikelihood() float64 { return lk.ll }

// SsqErr returns the sum of the squared standardized prediction errors.
func (lk *Likelihood) SsqErr() float64 { return lk.acc.ssq }

// LogDeterminant returns Σ log f over the steps contributing to the sum of squares.
func (lk *Likelihood) LogDeterminant() float64 { return lk.acc.ldet }

// DiffuseCorrection returns the log-determinant of the diffuse part.
func (lk *Likelihood) DiffuseCorrection() float64 { return lk.acc.dcorr }

// MarginalCorrection returns log|X'X| of the unstandardized diffuse and regression effects.
func (lk *Likelihood) MarginalCorrection() float64 { return lk.acc.mcorr }

// N returns the number of observations.
func (lk *Likelihood) N() int { return lk.acc.n }

// Nd returns the resolved diffuse dimension.
func (lk *Likelihood) Nd() int { return lk.acc.nd }

// Nx returns the number of regression effects.
func (lk *Likelihood) Nx() int { return lk.acc.nx }

// DegreesOfFreedom returns n - nd - nx.
func (lk *Likelihood) DegreesOfFreedom() int { return lk.acc.n - lk.acc.nd - lk.acc.nx }

// Sigma2 returns the maximum likelihood estimate of the scale, ssq/m.
func (lk *Likelihood) Sigma2() float64 { return lk.acc.ssq / float64(lk.m) }

// Residuals returns the standardized residuals of the steps contributing to the sum of squares.
func (lk *Likelihood) Residuals() []float64 {
	out := make([]float64, len(lk.residuals))
	copy(out, lk.residuals)
	return out
}

// Coefficients returns the estimated diffuse and regression effects, or nil.
func (lk *Likelihood) Coefficients() *mat.VecDense {
	if lk.coefs == nil {
		return nil
	}
	return cloneVec(lk.coefs)
}

// CoefficientsCovariance returns the covariance of the coefficients, scaled by
// ssq/DegreesOfFreedom(), or nil.
func (lk *Likelihood) CoefficientsCovariance() *mat.SymDense {
	if lk.coefsCov == nil {
		return nil
	}
	cov := cloneSym(lk.coefsCov)
	if df := lk.DegreesOfFreedom(); df > 0 {
		cov.ScaleSym(lk.acc.ssq/float64(df), cov)
	}
	return cov
}

// AIC returns the Akaike information criterion with np hyper-parameters.
func (lk *Likelihood) AIC(np int) float64 {
	return -2*lk.ll + 2*float64(np)
}

// BIC returns the Bayesian information criterion with np hyper-parameters.
func (lk *Likelihood) BIC(np int) float64 {
	return -2*lk.ll + float64(np)*math.Log(float64(lk.m))
}

func (lk *Likelihood) String() string {
	return fmt.Sprintf("%s ll=%.6f ssq=%.6g ldet=%.6g dcorr=%.6g mcorr=%.6g n=%d nd=%d nx=%d", lk.mode, lk.ll, lk.acc.ssq, lk.acc.ldet, lk.acc.dcorr, lk.acc.mcorr, lk.acc.n, lk.acc.nd, lk.acc.nx)
}
