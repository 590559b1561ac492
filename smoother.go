package gossf

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Accumulator is the state of the backward recursion of the smoother: after
// the step at t, R and N are r(t-1) and N(t-1).
type Accumulator struct {
	R *mat.VecDense
	N *mat.SymDense
}

func (acc Accumulator) clone() Accumulator {
	return Accumulator{cloneVec(acc.R), cloneSym(acc.N)}
}

// Smoother is the fixed interval smoother of the results of an exact diffuse
// or ordinary filter pass.
type Smoother struct {
	opts Options
}

// NewSmoother returns a new smoother. Options.SmoothVariances enables the covariances.
func NewSmoother(opts Options) *Smoother {
	return &Smoother{opts}
}

// Smooth runs the backward recursion on the filtering results of m.
func (ks *Smoother) Smooth(m SSF, res *FilteringResults) (*SmoothedSeries, error) {
	return ks.SmoothContext(context.Background(), m, res)
}

// SmoothContext is Smooth with a context checked between time steps.
func (ks *Smoother) SmoothContext(ctx context.Context, m SSF, res *FilteringResults) (*SmoothedSeries, error) {
	if !res.StatesStored() {
		return nil, ErrStatesNotStored
	}
	if res.kind != ExactDiffuseType && (res.diffuseDim > 0 || res.acc.nx > 0) {
		return nil, ErrSmoothingUnsupported
	}
	n := m.Initialization().StateDim()
	ss := &SmoothedSeries{
		start:  res.start,
		states: make([]*mat.VecDense, res.length-res.start),
	}
	if ks.opts.SmoothVariances {
		ss.covs = make([]*mat.SymDense, res.length-res.start)
	}
	acc := Accumulator{mat.NewVecDense(n, nil), mat.NewSymDense(n, nil)}
	for t := res.length - 1; t >= res.endDiffuse; t-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ks.ordinaryStep(m, t, res.Step(t), acc)
		ss.set(t, res.Step(t), acc)
	}
	ss.boundary = acc.clone()
	if res.endDiffuse > res.start {
		if err := ks.diffuse(ctx, m, res, ss, acc); err != nil {
			return nil, err
		}
	} else {
		ss.first = ss.boundary
	}
	return ss, nil
}

// ordinaryStep computes r(t-1), N(t-1) from r(t), N(t):
//
//	r(t-1) = Z'·(e - C'·T'r)/f + T'r
//	N(t-1) = Z'Z/f + L'NL, with L = T - T·C·Z/f
func (ks *Smoother) ordinaryStep(m SSF, t int, s *Step, acc Accumulator) {
	dyn, load := m.Dynamics(), m.Loading()
	dyn.XT(t, acc.R)
	ttvt(dyn, t, acc.N)
	if !s.Updated() {
		return
	}
	n := acc.R.Len()
	z := mat.NewVecDense(n, nil)
	load.RowTo(t, z)
	cu := mat.Dot(s.C, acc.R)
	var v mat.VecDense
	v.MulVec(acc.N, s.C)
	cmc := mat.Dot(s.C, &v)
	load.XpZd(t, acc.R, (s.E-cu)/s.F)
	acc.N.RankTwo(acc.N, -1/s.F, z, &v)
	load.PpZdZ(t, acc.N, cmc/(s.F*s.F)+1/s.F)
}

// diffuse runs the backward recursion of the diffuse phase on (r0, r1, N0, N1, N2),
// starting from the accumulator of the ordinary phase.
func (ks *Smoother) diffuse(ctx context.Context, m SSF, res *FilteringResults, ss *SmoothedSeries, acc Accumulator) error {
	n := acc.R.Len()
	dyn, load := m.Dynamics(), m.Loading()
	r0, r1 := mat.VecDenseCopyOf(acc.R), mat.NewVecDense(n, nil)
	N0 := mat.DenseCopyOf(acc.N)
	N1 := mat.NewDense(n, n, nil)
	N2 := mat.NewDense(n, n, nil)
	z := mat.NewVecDense(n, nil)
	for t := res.endDiffuse - 1; t >= res.start; t-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		s := res.Step(t)
		T := transition(dyn, t, n)
		load.RowTo(t, z)
		var zz mat.Dense
		zz.Outer(1, z, z)
		switch {
		case s.update == diffuseUpdate:
			var tci, g, tg mat.VecDense
			tci.MulVec(T, s.Ci)
			g.ScaleVec(1/s.Fi, s.C)
			g.AddScaledVec(&g, -s.F/(s.Fi*s.Fi), s.Ci)
			tg.MulVec(T, &g)
			L0 := mat.DenseCopyOf(T)
			L0.RankOne(L0, -1/s.Fi, &tci, z)
			L1 := mat.NewDense(n, n, nil)
			L1.RankOne(L1, -1, &tg, z)

			// r1 = Z'e/fi + L0'r1 + L1'r0, r0 = L0'r0
			var nr0, nr1, tmp mat.VecDense
			nr1.MulVec(L0.T(), r1)
			tmp.MulVec(L1.T(), r0)
			nr1.AddVec(&nr1, &tmp)
			nr1.AddScaledVec(&nr1, s.E/s.Fi, z)
			nr0.MulVec(L0.T(), r0)

			// N0 = L0'N0L0
			// N1 = Z'Z/fi + L0'N1L0 + L1'N0L0
			// N2 = -Z'Z·f/fi² + L0'N2L0 + L0'N1'L1 + L1'N1L0 + L1'N0L1
			nN0 := congruence(L0, N0, L0)
			nN1 := congruence(L0, N1, L0)
			nN1.Add(nN1, congruence(L1, N0, L0))
			nN1.Add(nN1, scaledDense(1/s.Fi, &zz))
			nN2 := congruence(L0, N2, L0)
			cross := congruence(L1, N1, L0)
			nN2.Add(nN2, cross)
			nN2.Add(nN2, cross.T())
			nN2.Add(nN2, congruence(L1, N0, L1))
			nN2.Add(nN2, scaledDense(-s.F/(s.Fi*s.Fi), &zz))

			r0, r1 = &nr0, &nr1
			N0, N1, N2 = nN0, nN1, nN2
		case s.update == ordinaryUpdate:
			var tc mat.VecDense
			tc.MulVec(T, s.C)
			L0 := mat.DenseCopyOf(T)
			L0.RankOne(L0, -1/s.F, &tc, z)

			// r0 = Z'e/f + L0'r0, r1 = T'r1
			var nr0, nr1 mat.VecDense
			nr0.MulVec(L0.T(), r0)
			nr0.AddScaledVec(&nr0, s.E/s.F, z)
			nr1.MulVec(T.T(), r1)

			// N0 = Z'Z/f + L0'N0L0, N1 = T'N1L0, N2 = T'N2T
			nN0 := congruence(L0, N0, L0)
			nN0.Add(nN0, scaledDense(1/s.F, &zz))
			r0, r1 = &nr0, &nr1
			N0, N1, N2 = nN0, congruence(T, N1, L0), congruence(T, N2, T)
		default:
			var nr0, nr1 mat.VecDense
			nr0.MulVec(T.T(), r0)
			nr1.MulVec(T.T(), r1)
			r0, r1 = &nr0, &nr1
			N0, N1, N2 = congruence(T, N0, T), congruence(T, N1, T), congruence(T, N2, T)
		}
		ss.setDiffuse(t, s, r0, r1, N0, N1, N2)
	}
	first := Accumulator{r0, mat.NewSymDense(n, nil)}
	symmetrize(first.N, N0)
	ss.first = first
	return nil
}

// congruence returns L'·N·R.
func congruence(L, N, R mat.Matrix) *mat.Dense {
	var ln, out mat.Dense
	ln.Mul(L.T(), N)
	out.Mul(&ln, R)
	return &out
}

func scaledDense(f float64, m mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Scale(f, m)
	return &out
}

// SmoothedSeries is the output of the smoother.
type SmoothedSeries struct {
	start    int
	states   []*mat.VecDense
	covs     []*mat.SymDense
	boundary Accumulator
	first    Accumulator
}

func (ss *SmoothedSeries) set(t int, s *Step, acc Accumulator) {
	// a + P·r
	a := cloneVec(s.A)
	a.MulVec(s.P, acc.R)
	a.AddVec(a, s.A)
	ss.states[t-ss.start] = a
	if ss.covs == nil {
		return
	}
	// P - P·N·P
	pnp := mat.NewSymDense(s.P.SymmetricDim(), nil)
	kernels().Sandwich(pnp, s.P, acc.N)
	pnp.ScaleSym(-1, pnp)
	pnp.AddSym(s.P, pnp)
	ss.covs[t-ss.start] = pnp
}

func (ss *SmoothedSeries) setDiffuse(t int, s *Step, r0, r1 *mat.VecDense, N0, N1, N2 *mat.Dense) {
	// a + P·r0 + Pi·r1
	var a, tmp mat.VecDense
	a.MulVec(s.P, r0)
	tmp.MulVec(s.Pi, r1)
	a.AddVec(&a, &tmp)
	a.AddVec(&a, s.A)
	ss.states[t-ss.start] = &a
	if ss.covs == nil {
		return
	}
	// P - P·N0·P - (Pi·N1·P)' - Pi·N1·P - Pi·N2·Pi
	var v mat.Dense
	v.Sub(s.P, congruence(s.P, N0, s.P))
	cross := congruence(s.Pi, N1, s.P)
	v.Sub(&v, cross)
	v.Sub(&v, cross.T())
	v.Sub(&v, congruence(s.Pi, N2, s.Pi))
	V := mat.NewSymDense(s.P.SymmetricDim(), nil)
	kernels().Symmetrize(V, &v)
	ss.covs[t-ss.start] = V
}

// Len returns the number of smoothed steps.
func (ss *SmoothedSeries) Len() int { return len(ss.states) }

// State returns the smoothed state at t.
func (ss *SmoothedSeries) State(t int) *mat.VecDense { return ss.states[t-ss.start] }

// Covariance returns the smoothed covariance at t, or nil when the variances were not computed.
func (ss *SmoothedSeries) Covariance(t int) *mat.SymDense {
	if ss.covs == nil {
		return nil
	}
	return ss.covs[t-ss.start]
}

// Component returns the smoothed values of the i-th state.
func (ss *SmoothedSeries) Component(i int) []float64 {
	out := make([]float64, len(ss.states))
	for t, a := range ss.states {
		out[t] = a.AtVec(i)
	}
	return out
}

// ComponentStdev returns the standard deviations of the i-th smoothed state,
// or nil when the variances were not computed.
func (ss *SmoothedSeries) ComponentStdev(i int) []float64 {
	if ss.covs == nil {
		return nil
	}
	out := make([]float64, len(ss.covs))
	for t, v := range ss.covs {
		out[t] = math.Sqrt(math.Max(v.At(i, i), 0))
	}
	return out
}

// Signal returns Z(t)·a(t|N).
func (ss *SmoothedSeries) Signal(m SSF) []float64 {
	load := m.Loading()
	out := make([]float64, len(ss.states))
	for i, a := range ss.states {
		out[i] = load.ZX(ss.start+i, a)
	}
	return out
}

// SignalStdev returns the standard deviations of Z(t)·a(t|N), or nil when the
// variances were not computed.
func (ss *SmoothedSeries) SignalStdev(m SSF) []float64 {
	if ss.covs == nil {
		return nil
	}
	load := m.Loading()
	out := make([]float64, len(ss.covs))
	for i, v := range ss.covs {
		out[i] = math.Sqrt(math.Max(load.ZPZ(ss.start+i, v), 0))
	}
	return out
}

// Boundary returns the accumulator handed from the ordinary phase to the diffuse phase.
func (ss *SmoothedSeries) Boundary() Accumulator { return ss.boundary.clone() }

// Start returns the accumulator after the first step.
func (ss *SmoothedSeries) Start() Accumulator { return ss.first.clone() }
