package gossf

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"
)

// augmented runs the de Jong augmented filter: the diffuse effects δ are carried
// as the columns of W (a = a + W·δ) and estimated by square root information
// until the information matrix is full rank, at which point the state collapses
// to a + W·δ̂ with covariance P + W·(R'R)⁻¹·W'.
func (kf *DiffuseFilter) augmented(ctx context.Context, m SSF, data Data, res *FilteringResults, a *mat.VecDense, P *mat.SymDense) error {
	init := m.Initialization()
	n, d := init.StateDim(), init.DiffuseDim()
	W := mat.NewDense(n, d, nil)
	init.B0(W)
	info := newSqrtInfo(d)
	x := mat.NewVecDense(d, nil)
	log := kf.opts.logger()
	dyn, load := m.Dynamics(), m.Loading()
	var q, ldet float64
	nobs := 0
	for t := 0; ; t++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if t == data.Len() {
			log.Debug("diffuse effects not identified", "len", data.Len())
			return failure(InsufficientInformation, t-1, float64(d))
		}
		if kf.opts.ForceCollapse > 0 && t == kf.opts.ForceCollapse {
			log.Warn("forcing the end of the diffuse phase", "t", t, "rank", d)
			return kf.forceCollapseAugmented(res, t, info, W, a, P, q, ldet, nobs)
		}

		s := res.record(t)
		s.Diffuse = true
		res.storeState(s, a, P, nil)
		if data.IsMissing(t) {
			s.Missing = true
		} else {
			f := load.ZPZ(t, P) + measurementVariance(m, t)
			if !(f > 0) {
				log.Debug("augmented filter failed", "t", t, "f", f)
				return failure(NonPositiveVariance, t, f)
			}
			e := data.At(t) - load.ZX(t, a)
			load.ZM(t, W, x)
			C := mat.NewVecDense(n, nil)
			load.PZ(t, P, C)
			info.absorb(x, e, f)
			q += e * e / f
			ldet += math.Log(f)
			nobs++
			// a = a + C·e/f, W = W - C·x'/f, P = P - C·C'/f
			a.AddScaledVec(a, e/f, C)
			W.RankOne(W, -1/f, C, x)
			P.SymRankOne(P, -1/f, C)
			s.E, s.F, s.Fi, s.update = e, f, mat.Dot(x, x), ordinaryUpdate
			if res.stored {
				s.C = C
			}
		}
		predict(dyn, t, a, P)
		dyn.TM(t, W)
		if info.fullRank(kf.opts.rankEpsilon()) {
			res.ranks = append(res.ranks, 0)
			return kf.collapseAugmented(res, t, info, W, a, P, q, ldet, nobs)
		}
		res.ranks = append(res.ranks, d)
	}
}

// collapseAugmented folds the estimated diffuse effects into the prediction of
// the state for t+1 and fills the accumulator.
func (kf *DiffuseFilter) collapseAugmented(res *FilteringResults, t int, info *sqrtInfo, W *mat.Dense, a *mat.VecDense, P *mat.SymDense, q, ldet float64, nobs int) error {
	delta := info.estimate()
	var wd mat.VecDense
	wd.MulVec(W, delta)
	a.AddVec(a, &wd)
	U := info.rightSolve(W)
	P.SymRankK(P, 1, U)

	ssq := q - info.explained()
	if ssq < 0 {
		ssq = 0
	}
	res.acc.ssq = ssq
	res.acc.ldet = ldet
	res.acc.dcorr = info.logDet(0, info.k)
	res.acc.n = nobs
	res.acc.nd = info.k
	res.coefs = delta
	if cov, err := info.covariance(); err == nil {
		res.coefsCov = cov
	}
	res.collapse(t)
	kf.opts.logger().Debug("diffuse phase collapsed", "t", t, "nd", info.k)
	return nil
}

// forceCollapseAugmented folds the identified part of the effects into the
// prediction of the state for t. The directions without information are
// dropped, as Pi is by the exact filter.
func (kf *DiffuseFilter) forceCollapseAugmented(res *FilteringResults, t int, info *sqrtInfo, W *mat.Dense, a *mat.VecDense, P *mat.SymDense, q, ldet float64, nobs int) error {
	pe, err := info.pseudo(kf.opts.rankEpsilon())
	if err != nil {
		return err
	}
	if pe.rank > 0 {
		var wd mat.VecDense
		wd.MulVec(W, pe.delta)
		a.AddVec(a, &wd)
		var U mat.Dense
		U.Mul(W, pe.half)
		P.SymRankK(P, 1, &U)
	}

	ssq := q - pe.explained
	if ssq < 0 {
		ssq = 0
	}
	res.acc.ssq = ssq
	res.acc.ldet = ldet
	res.acc.dcorr = pe.logDet
	res.acc.n = nobs
	res.acc.nd = pe.rank
	res.coefs = pe.delta
	res.coefsCov = pe.cov
	res.collapse(t - 1)
	kf.opts.logger().Debug("diffuse phase collapsed", "t", t-1, "nd", pe.rank)
	return nil
}
