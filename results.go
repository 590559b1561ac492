package gossf

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

type updateKind uint8

const (
	noUpdate updateKind = iota
	ordinaryUpdate
	diffuseUpdate
)

// Step is the record of one time step of a filter pass. A and P (and Pi in the
// diffuse phase) are the predictions for t, before the update with y(t).
type Step struct {
	Missing bool
	Diffuse bool    // Step belongs to the diffuse phase.
	E       float64 // Prediction error.
	F       float64 // Variance of the prediction error (proper part).
	Fi      float64 // Diffuse part of the variance.
	C       *mat.VecDense
	Ci      *mat.VecDense
	A       *mat.VecDense
	P       *mat.SymDense
	Pi      *mat.SymDense

	update updateKind
}

// Updated returns whether the observation at that step was used to update the state.
func (s *Step) Updated() bool { return s.update != noUpdate }

// DiffuseUpdate returns whether the step resolved a diffuse direction.
func (s *Step) DiffuseUpdate() bool { return s.update == diffuseUpdate }

func (s *Step) String() string {
	switch {
	case s.Missing:
		return "missing"
	case s.update == diffuseUpdate:
		return fmt.Sprintf("e=%g f=%g fi=%g (diffuse)", s.E, s.F, s.Fi)
	default:
		return fmt.Sprintf("e=%g f=%g", s.E, s.F)
	}
}

// accumulator holds the sufficient statistics of the likelihood.
type accumulator struct {
	ssq   float64 // Σ e²/f
	ldet  float64 // Σ log f
	dcorr float64 // Σ log fi, or log|S| with S the diffuse information matrix
	mcorr float64 // log|X'X| of the free propagation of the diffuse effects
	rcorr float64 // log|·| of the regression block
	n     int     // observations
	nd    int     // resolved diffuse dimension
	nx    int     // regression effects
}

func (acc *accumulator) add(e, f float64) {
	acc.ssq += e * e / f
	acc.ldet += math.Log(f)
	acc.n++
}

// FilteringResults is the output of a filter pass.
type FilteringResults struct {
	kind        FilterType
	start       int
	length      int
	steps       []Step
	stored      bool
	diffuseDim  int
	endDiffuse  int
	collapsedAt int
	ranks       []int
	residuals   []float64
	acc         accumulator
	a           *mat.VecDense
	p           *mat.SymDense
	coefs       *mat.VecDense
	coefsCov    *mat.SymDense // unscaled
}

func newFilteringResults(kind FilterType, start, length, d int, stored bool) *FilteringResults {
	res := &FilteringResults{
		kind:        kind,
		start:       start,
		length:      length,
		steps:       make([]Step, length-start),
		stored:      stored,
		diffuseDim:  d,
		endDiffuse:  start,
		collapsedAt: -1,
		residuals:   make([]float64, length-start),
	}
	for i := range res.residuals {
		res.residuals[i] = math.NaN()
	}
	return res
}

// Type returns the filter which produced these results.
func (r *FilteringResults) Type() FilterType { return r.kind }

// Len returns the length of the filtered series.
func (r *FilteringResults) Len() int { return r.length }

// Start returns the first filtered index (0 unless the pass started from a given state).
func (r *FilteringResults) Start() int { return r.start }

// Step returns the record at t, or nil if t was not filtered.
func (r *FilteringResults) Step(t int) *Step {
	if t < r.start || t >= r.length {
		return nil
	}
	return &r.steps[t-r.start]
}

func (r *FilteringResults) record(t int) *Step { return &r.steps[t-r.start] }

// StatesStored returns whether the states were kept at every step.
func (r *FilteringResults) StatesStored() bool { return r.stored }

// DiffuseDim returns the dimension of the diffuse part of the initialization.
func (r *FilteringResults) DiffuseDim() int { return r.diffuseDim }

// EndDiffusePosition returns the first index filtered by the ordinary recursion.
func (r *FilteringResults) EndDiffusePosition() int { return r.endDiffuse }

// CollapsedAt returns the last index of the diffuse phase, or -1 if there was none.
func (r *FilteringResults) CollapsedAt() int { return r.collapsedAt }

// DiffuseRanks returns the rank of the diffuse part after each step of the diffuse phase.
func (r *FilteringResults) DiffuseRanks() []int {
	out := make([]int, len(r.ranks))
	copy(out, r.ranks)
	return out
}

// StandardizedResiduals returns e/√f for every step, NaN where the step did not
// contribute to the sum of squares.
func (r *FilteringResults) StandardizedResiduals() []float64 {
	out := make([]float64, len(r.residuals))
	copy(out, r.residuals)
	return out
}

// FinalState returns copies of the prediction of the state and its covariance after the last step.
func (r *FilteringResults) FinalState() (*mat.VecDense, *mat.SymDense) {
	return cloneVec(r.a), cloneSym(r.p)
}

// collapse marks t as the last index of the diffuse phase.
func (r *FilteringResults) collapse(t int) {
	r.collapsedAt = t
	r.endDiffuse = t + 1
}

func (r *FilteringResults) storeState(s *Step, a *mat.VecDense, P, Pi *mat.SymDense) {
	if !r.stored {
		return
	}
	s.A = cloneVec(a)
	s.P = cloneSym(P)
	if Pi != nil {
		s.Pi = cloneSym(Pi)
	}
}

func (r *FilteringResults) String() string {
	return fmt.Sprintf("%s results: n=%d nd=%d ssq=%g ldet=%g dcorr=%g collapse=%d", r.kind, r.acc.n, r.acc.nd, r.acc.ssq, r.acc.ldet, r.acc.dcorr, r.collapsedAt)
}
