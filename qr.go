package gossf

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// QRFilter computes the diffuse likelihood without a diffuse recursion: the
// ordinary filter is run with the diffuse effects set to zero while their
// sensitivities X are propagated alongside, then the standardized regression
// y* = X*·δ + ε is solved by a Householder QR of [X* | y*].
type QRFilter struct {
	opts Options
}

// NewQRFilter returns a new QR filter.
func NewQRFilter(opts Options) *QRFilter {
	return &QRFilter{opts}
}

// Run filters the data.
func (kf *QRFilter) Run(ctx context.Context, m SSF, data Data) (*FilteringResults, error) {
	return kf.RunRegression(ctx, m, data, nil)
}

// RunRegression filters y(t) = Z(t)·a(t) + X(t)·β + ε(t), where X is the N×k
// matrix of regression variables (may be nil). The estimated coefficients are
// the diffuse effects followed by β.
func (kf *QRFilter) RunRegression(ctx context.Context, m SSF, data Data, X mat.Matrix) (*FilteringResults, error) {
	init := m.Initialization()
	n, d := init.StateDim(), init.DiffuseDim()
	nx := 0
	if X != nil {
		r, c := X.Dims()
		if r != data.Len() {
			return nil, errors.Errorf("gossf: %d regression rows for %d observations", r, data.Len())
		}
		nx = c
	}
	k := d + nx
	log := kf.opts.logger()

	a := mat.NewVecDense(n, nil)
	init.A0(a)
	P := mat.NewSymDense(n, nil)
	init.Pf0(P)
	var W *mat.Dense
	x := mat.NewVecDense(max(k, 1), nil)
	if k > 0 {
		W = mat.NewDense(n, k, nil)
		if d > 0 {
			B := mat.NewDense(n, d, nil)
			init.B0(B)
			W.Copy(B)
		}
	}

	res := newFilteringResults(QRType, 0, data.Len(), d, kf.opts.StoreStates)
	res.acc.nx = nx
	dyn, load := m.Dynamics(), m.Loading()
	var rows, design []float64
	var observed []int
	for t := 0; t < data.Len(); t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s := res.record(t)
		res.storeState(s, a, P, nil)
		if data.IsMissing(t) {
			s.Missing = true
		} else {
			f := load.ZPZ(t, P) + measurementVariance(m, t)
			if !(f > 0) {
				log.Debug("qr filter failed", "t", t, "f", f)
				return nil, failure(NonPositiveVariance, t, f)
			}
			e := data.At(t) - load.ZX(t, a)
			C := mat.NewVecDense(n, nil)
			load.PZ(t, P, C)
			sf := 1 / math.Sqrt(f)
			if k > 0 {
				load.ZM(t, W, x)
				for j := d; j < k; j++ {
					x.SetVec(j, x.AtVec(j)+X.At(t, j-d))
				}
				for j := 0; j < k; j++ {
					design = append(design, x.AtVec(j))
				}
				for j := 0; j < k; j++ {
					rows = append(rows, sf*x.AtVec(j))
				}
				W.RankOne(W, -1/f, C, x)
			}
			rows = append(rows, sf*e)
			observed = append(observed, t)
			a.AddScaledVec(a, e/f, C)
			P.SymRankOne(P, -1/f, C)
			s.E, s.F, s.update = e, f, ordinaryUpdate
			if res.stored {
				s.C = C
			}
			res.acc.ldet += math.Log(f)
		}
		predict(dyn, t, a, P)
		if k > 0 {
			dyn.TM(t, W)
		}
	}

	nobs := len(observed)
	if nobs < k+1 {
		log.Debug("not enough observations", "n", nobs, "effects", k)
		return nil, failure(InsufficientInformation, data.Len()-1, float64(k))
	}
	var qr mat.QR
	qr.Factorize(mat.NewDense(nobs, k+1, rows))
	var R mat.Dense
	qr.RTo(&R)

	info := newSqrtInfo(k)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			info.r.Set(i, j, R.At(i, j))
		}
		info.b.SetVec(i, R.At(i, k))
	}
	if k > 0 && !info.fullRank(kf.opts.rankEpsilon()) {
		log.Debug("diffuse effects not identified", "effects", k)
		return nil, failure(InsufficientInformation, data.Len()-1, float64(k))
	}

	ykk := R.At(k, k)
	res.acc.ssq = ykk * ykk
	res.acc.n = nobs
	res.acc.nd = d
	res.acc.dcorr = info.logDet(0, d)
	res.acc.rcorr = info.logDet(d, k)
	if k > 0 {
		res.acc.mcorr = marginalCorrection(m, data, X)
	}

	var gamma *mat.VecDense
	if k > 0 {
		gamma = info.estimate()
		res.coefs = gamma
		cov, err := info.covariance()
		if err != nil {
			return nil, errors.Wrapf(failure(InsufficientInformation, -1, float64(k)), "covariance of the effects: %v", err)
		}
		res.coefsCov = cov

		var wg mat.VecDense
		wg.MulVec(W, gamma)
		a.AddVec(a, &wg)
		U := info.rightSolve(W)
		P.SymRankK(P, 1, U)
	}
	// GLS residuals
	for i, t := range observed {
		s := res.record(t)
		e := s.E
		if k > 0 {
			row := mat.NewVecDense(k, design[i*k:(i+1)*k])
			e -= mat.Dot(row, gamma)
		}
		res.residuals[t] = e / math.Sqrt(s.F)
	}
	res.a, res.p = a, P
	return res, nil
}
