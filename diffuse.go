package gossf

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"
)

// DiffuseFilter filters models with a diffuse initialization. The diffuse phase
// is handled by the exact Durbin-Koopman recursion or by the augmented filter,
// as selected by Options.Method, and is followed by the ordinary recursion.
type DiffuseFilter struct {
	opts Options
}

// NewDiffuseFilter returns a new diffuse filter.
func NewDiffuseFilter(opts Options) *DiffuseFilter {
	return &DiffuseFilter{opts}
}

// Run filters the data.
func (kf *DiffuseFilter) Run(m SSF, data Data) (*FilteringResults, error) {
	return kf.RunContext(context.Background(), m, data)
}

// RunContext is Run with a context checked between time steps.
func (kf *DiffuseFilter) RunContext(ctx context.Context, m SSF, data Data) (*FilteringResults, error) {
	init := m.Initialization()
	n, d := init.StateDim(), init.DiffuseDim()
	a := mat.NewVecDense(n, nil)
	init.A0(a)
	P := mat.NewSymDense(n, nil)
	init.Pf0(P)

	method := kf.opts.method()
	if method != AugmentedType {
		method = ExactDiffuseType
	}
	res := newFilteringResults(method, 0, data.Len(), d, kf.opts.StoreStates)
	if d > 0 {
		var err error
		if method == AugmentedType {
			err = kf.augmented(ctx, m, data, res, a, P)
		} else {
			err = kf.exact(ctx, m, data, res, a, P)
		}
		if err != nil {
			return nil, err
		}
		res.acc.mcorr = marginalCorrection(m, data, nil)
	}
	ordinary := OrdinaryFilter{kf.opts}
	if err := ordinary.filter(ctx, m, data, res, res.endDiffuse, a, P); err != nil {
		return nil, err
	}
	return res, nil
}

// exact runs the diffuse phase on (P, Pi). On return, a and P are the
// prediction for the first ordinary step.
func (kf *DiffuseFilter) exact(ctx context.Context, m SSF, data Data, res *FilteringResults, a *mat.VecDense, P *mat.SymDense) error {
	init := m.Initialization()
	n := init.StateDim()
	Pi := mat.NewSymDense(n, nil)
	init.Pi0(Pi)
	log := kf.opts.logger()
	rank := res.diffuseDim
	for t := 0; rank > 0; t++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if t == data.Len() {
			log.Debug("diffuse part not resolved", "rank", rank, "len", data.Len())
			return failure(InsufficientInformation, t-1, float64(rank))
		}
		if kf.opts.ForceCollapse > 0 && t == kf.opts.ForceCollapse {
			log.Warn("forcing the end of the diffuse phase", "t", t, "rank", rank)
			res.collapse(t - 1)
			break
		}
		resolved, err := kf.exactStep(m, data, t, a, P, Pi, res)
		if err != nil {
			log.Debug("diffuse filter failed", "t", t, "err", err)
			return err
		}
		if resolved {
			rank--
		}
		res.ranks = append(res.ranks, rank)
		if rank == 0 {
			res.collapse(t)
			log.Debug("diffuse phase collapsed", "t", t, "nd", res.acc.nd)
		}
	}
	return nil
}

// exactStep records the prediction for t, updates it with y(t) and predicts
// t+1. It returns whether a diffuse direction was resolved.
func (kf *DiffuseFilter) exactStep(m SSF, data Data, t int, a *mat.VecDense, P, Pi *mat.SymDense, res *FilteringResults) (bool, error) {
	s := res.record(t)
	s.Diffuse = true
	res.storeState(s, a, P, Pi)
	resolved := false
	if data.IsMissing(t) {
		s.Missing = true
	} else {
		load := m.Loading()
		f := load.ZPZ(t, P) + measurementVariance(m, t)
		fi := load.ZPZ(t, Pi)
		if f < -kf.opts.varianceEpsilon() || math.IsNaN(f) || math.IsNaN(fi) {
			return false, failure(NonPositiveVariance, t, f)
		}
		e := data.At(t) - load.ZX(t, a)
		C := mat.NewVecDense(a.Len(), nil)
		load.PZ(t, P, C)
		Ci := mat.NewVecDense(a.Len(), nil)
		load.PZ(t, Pi, Ci)
		s.E, s.F, s.Fi = e, f, fi
		switch {
		case fi > kf.opts.diffuseEpsilon():
			// a = a + Ci·e/fi
			// P = P + Ci·Ci'·f/fi² - (C·Ci' + Ci·C')/fi
			// Pi = Pi - Ci·Ci'/fi
			a.AddScaledVec(a, e/fi, Ci)
			P.SymRankOne(P, f/(fi*fi), Ci)
			P.RankTwo(P, -1/fi, C, Ci)
			Pi.SymRankOne(Pi, -1/fi, Ci)
			s.update = diffuseUpdate
			res.acc.dcorr += math.Log(fi)
			res.acc.n++
			res.acc.nd++
			resolved = true
		case f > kf.opts.varianceEpsilon():
			a.AddScaledVec(a, e/f, C)
			P.SymRankOne(P, -1/f, C)
			s.update = ordinaryUpdate
			res.acc.add(e, f)
			res.residuals[t] = e / math.Sqrt(f)
		}
		if res.stored {
			s.C, s.Ci = C, Ci
		}
	}
	dyn := m.Dynamics()
	predict(dyn, t, a, P)
	dyn.TVT(t, Pi)
	return resolved, nil
}
