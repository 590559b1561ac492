package gossf

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// sqrtInfo is the square root information pair (R, b) of a k-dimensional
// least squares problem: R'R is the information matrix and R⁻¹·b the estimate.
// Rows are absorbed one at a time by a Householder triangularization of
//
//	[ R     b    ]
//	[ x'/√f e/√f ]
type sqrtInfo struct {
	k    int
	r    *mat.Dense
	b    *mat.VecDense
	work *mat.Dense
}

func newSqrtInfo(k int) *sqrtInfo {
	return &sqrtInfo{
		k:    k,
		r:    mat.NewDense(k, k, nil),
		b:    mat.NewVecDense(k, nil),
		work: mat.NewDense(k+1, k+1, nil),
	}
}

// absorb adds the observation e = x'·δ + ε, ε ~ N(0, f).
func (si *sqrtInfo) absorb(x mat.Vector, e, f float64) {
	k, w := si.k, si.work
	s := 1 / math.Sqrt(f)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			w.Set(i, j, si.r.At(i, j))
		}
		w.Set(i, k, si.b.AtVec(i))
		w.Set(k, i, s*x.AtVec(i))
	}
	w.Set(k, k, s*e)
	var qr mat.QR
	qr.Factorize(w)
	var R mat.Dense
	qr.RTo(&R)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			si.r.Set(i, j, R.At(i, j))
		}
		si.b.SetVec(i, R.At(i, k))
	}
}

// fullRank returns whether every diagonal element of R is larger than eps
// times the largest one.
func (si *sqrtInfo) fullRank(eps float64) bool {
	top := 0.0
	for i := 0; i < si.k; i++ {
		top = math.Max(top, math.Abs(si.r.At(i, i)))
	}
	if top == 0 {
		return false
	}
	for i := 0; i < si.k; i++ {
		if math.Abs(si.r.At(i, i)) <= eps*top {
			return false
		}
	}
	return true
}

// logDet returns log|R'R| restricted to the diagonal elements [from, to).
func (si *sqrtInfo) logDet(from, to int) float64 {
	ld := 0.0
	for i := from; i < to; i++ {
		ld += math.Log(math.Abs(si.r.At(i, i)))
	}
	return 2 * ld
}

func (si *sqrtInfo) tri() *mat.TriDense {
	R := mat.NewTriDense(si.k, mat.Upper, nil)
	for i := 0; i < si.k; i++ {
		for j := i; j < si.k; j++ {
			R.SetTri(i, j, si.r.At(i, j))
		}
	}
	return R
}

// estimate returns R⁻¹·b.
func (si *sqrtInfo) estimate() *mat.VecDense {
	x := cloneVec(si.b)
	kernels().TriSolve(si.tri(), false, x)
	return x
}

// explained returns |b|², the part of the sum of squares explained by the effects.
func (si *sqrtInfo) explained() float64 {
	return mat.Dot(si.b, si.b)
}

// covariance returns (R'R)⁻¹.
func (si *sqrtInfo) covariance() (*mat.SymDense, error) {
	var Rinv mat.TriDense
	if err := Rinv.InverseTri(si.tri()); err != nil {
		return nil, err
	}
	cov := mat.NewSymDense(si.k, nil)
	cov.SymOuterK(1, &Rinv)
	return cov, nil
}

// pseudoEstimate is the least squares solution restricted to the identified
// directions of a rank deficient information matrix S = R'R.
type pseudoEstimate struct {
	delta     *mat.VecDense // S⁺·R'b
	cov       *mat.SymDense // S⁺
	half      *mat.Dense    // V·Λ^-½ so that half·half' = S⁺, nil when rank is 0
	logDet    float64       // log of the pseudo determinant of S
	explained float64
	rank      int
}

// pseudo solves the problem on the eigenvectors of S whose eigenvalue is larger
// than eps times the largest one. The other directions are not identified.
func (si *sqrtInfo) pseudo(eps float64) (*pseudoEstimate, error) {
	k := si.k
	R := si.tri()
	var S mat.SymDense
	S.SymOuterK(1, R.T())
	var es mat.EigenSym
	if !es.Factorize(&S, true) {
		return nil, errors.New("gossf: eigen decomposition of the information matrix failed")
	}
	vals := es.Values(nil)
	var V mat.Dense
	es.VectorsTo(&V)
	var s mat.VecDense
	s.MulVec(R.T(), si.b)

	pe := &pseudoEstimate{delta: mat.NewVecDense(k, nil), cov: mat.NewSymDense(k, nil)}
	top := 0.0
	for _, v := range vals {
		top = math.Max(top, v)
	}
	if !(top > 0) {
		return pe, nil
	}
	var keep []int
	for i, v := range vals {
		if v > eps*top {
			keep = append(keep, i)
		}
	}
	pe.rank = len(keep)
	pe.half = mat.NewDense(k, pe.rank, nil)
	for j, i := range keep {
		v := V.ColView(i)
		c := mat.Dot(v, &s) / vals[i]
		pe.delta.AddScaledVec(pe.delta, c, v)
		pe.explained += c * c * vals[i]
		pe.logDet += math.Log(vals[i])
		sc := 1 / math.Sqrt(vals[i])
		for r := 0; r < k; r++ {
			pe.half.Set(r, j, sc*V.At(r, i))
		}
	}
	pe.cov.SymOuterK(1, pe.half)
	return pe, nil
}

// rightSolve returns X·R⁻¹.
func (si *sqrtInfo) rightSolve(X mat.Matrix) *mat.Dense {
	r, _ := X.Dims()
	R := si.tri()
	U := mat.NewDense(r, si.k, nil)
	row := mat.NewVecDense(si.k, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < si.k; j++ {
			row.SetVec(j, X.At(i, j))
		}
		kernels().TriSolve(R, true, row)
		U.SetRow(i, row.RawVector().Data)
	}
	return U
}

// marginalCorrection returns log|X'X| where the rows of X are the loadings of
// the diffuse effects, propagated by the dynamics only, at the observed steps.
// The optional regressors (N×k) are appended as extra columns.
func marginalCorrection(m SSF, data Data, regs mat.Matrix) float64 {
	init := m.Initialization()
	n, d := init.StateDim(), init.DiffuseDim()
	k := d
	if regs != nil {
		_, c := regs.Dims()
		k += c
	}
	if k == 0 {
		return 0
	}
	F := mat.NewDense(n, max(d, 1), nil)
	if d > 0 {
		init.B0(F)
	}
	info := newSqrtInfo(k)
	x := mat.NewVecDense(k, nil)
	xd := mat.NewVecDense(max(d, 1), nil)
	dyn, load := m.Dynamics(), m.Loading()
	for t := 0; t < data.Len(); t++ {
		if !data.IsMissing(t) {
			if d > 0 {
				load.ZM(t, F, xd)
				for j := 0; j < d; j++ {
					x.SetVec(j, xd.AtVec(j))
				}
			}
			for j := d; j < k; j++ {
				x.SetVec(j, regs.At(t, j-d))
			}
			info.absorb(x, 0, 1)
		}
		if d > 0 {
			dyn.TM(t, F)
		}
	}
	return info.logDet(0, k)
}
