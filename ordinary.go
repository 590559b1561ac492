package gossf

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// OrdinaryFilter is the Kalman filter of models with a proper initialization.
// It is also the second phase of every diffuse filter.
type OrdinaryFilter struct {
	opts Options
}

// NewOrdinaryFilter returns a new ordinary filter.
func NewOrdinaryFilter(opts Options) *OrdinaryFilter {
	return &OrdinaryFilter{opts}
}

// Run filters the data. Models with a diffuse part are refused with ErrDiffuseModel.
func (kf *OrdinaryFilter) Run(m SSF, data Data) (*FilteringResults, error) {
	return kf.RunContext(context.Background(), m, data)
}

// RunContext is Run with a context checked between time steps.
func (kf *OrdinaryFilter) RunContext(ctx context.Context, m SSF, data Data) (*FilteringResults, error) {
	init := m.Initialization()
	if init.DiffuseDim() > 0 {
		return nil, ErrDiffuseModel
	}
	n := init.StateDim()
	a := mat.NewVecDense(n, nil)
	init.A0(a)
	P := mat.NewSymDense(n, nil)
	init.Pf0(P)
	res := newFilteringResults(OrdinaryType, 0, data.Len(), 0, kf.opts.StoreStates)
	if err := kf.filter(ctx, m, data, res, 0, a, P); err != nil {
		return nil, err
	}
	return res, nil
}

// RunFrom filters data[start:] from the prediction (a, P) of the state at start.
// The provided state is not modified.
func (kf *OrdinaryFilter) RunFrom(ctx context.Context, m SSF, data Data, start int, a mat.Vector, P mat.Symmetric) (*FilteringResults, error) {
	if start < 0 || start > data.Len() {
		return nil, errors.Errorf("gossf: start %d out of range [0, %d]", start, data.Len())
	}
	if err := checkMatDims(a, P, "a", "P", rows2cols); err != nil {
		return nil, err
	}
	if a.Len() != m.Initialization().StateDim() {
		return nil, errors.Errorf("gossf: state has length %d, model has %d states", a.Len(), m.Initialization().StateDim())
	}
	res := newFilteringResults(OrdinaryType, start, data.Len(), 0, kf.opts.StoreStates)
	if err := kf.filter(ctx, m, data, res, start, cloneVec(a), cloneSym(P)); err != nil {
		return nil, err
	}
	return res, nil
}

// filter runs the ordinary recursion from t=from to the end of the data, and
// keeps the final prediction in res. a and P are modified in place.
func (kf *OrdinaryFilter) filter(ctx context.Context, m SSF, data Data, res *FilteringResults, from int, a *mat.VecDense, P *mat.SymDense) error {
	for t := from; t < data.Len(); t++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := ordinaryStep(m, data, t, a, P, res); err != nil {
			kf.opts.logger().Debug("ordinary filter failed", "t", t, "err", err)
			return err
		}
	}
	res.a, res.p = a, P
	return nil
}

// ordinaryStep records the prediction for t, updates it with y(t) and predicts t+1.
func ordinaryStep(m SSF, data Data, t int, a *mat.VecDense, P *mat.SymDense, res *FilteringResults) error {
	s := res.record(t)
	res.storeState(s, a, P, nil)
	if data.IsMissing(t) {
		s.Missing = true
	} else {
		load := m.Loading()
		f := load.ZPZ(t, P) + measurementVariance(m, t)
		if !(f > 0) {
			return failure(NonPositiveVariance, t, f)
		}
		e := data.At(t) - load.ZX(t, a)
		C := mat.NewVecDense(a.Len(), nil)
		load.PZ(t, P, C)
		// a = a + C·e/f, P = P - C·C'/f
		a.AddScaledVec(a, e/f, C)
		P.SymRankOne(P, -1/f, C)
		s.E, s.F, s.update = e, f, ordinaryUpdate
		if res.stored {
			s.C = C
		}
		res.acc.add(e, f)
		res.residuals[t-res.start] = e / math.Sqrt(f)
	}
	predict(m.Dynamics(), t, a, P)
	return nil
}

// predict applies the transition t -> t+1 to the state and its covariance.
func predict(dyn Dynamics, t int, a *mat.VecDense, P *mat.SymDense) {
	dyn.TX(t, a)
	dyn.TVT(t, P)
	dyn.AddV(t, P)
}
