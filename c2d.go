package gossf

import (
	"math"
	"math/cmplx"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrNyquist is returned (wrapped) by VanLoan when the sampling rate is too low
// for the dynamics. The returned matrices are still valid.
var ErrNyquist = errors.New("gossf: Nyquist sampling criterion not fulfilled")

// VanLoan computes the transition T and innovation covariance V of the
// discretization of dx = A·x·dt + Γ·dw, with E[dw·dw'] = W·dt, at the sampling rate Δt.
func VanLoan(A, Γ, W mat.Matrix, Δt float64) (*mat.Dense, *mat.SymDense, error) {
	if err := checkMatDims(A, A, "A", "A", rows2cols); err != nil {
		return nil, nil, err
	}
	if err := checkMatDims(A, Γ, "A", "Γ", rows2rows); err != nil {
		return nil, nil, err
	}
	if err := checkMatDims(Γ, W, "Γ", "W", cols2rows); err != nil {
		return nil, nil, err
	}
	var err error
	// Check aliasing
	var λ mat.Eigen
	if ok := λ.Factorize(A, mat.EigenNone); !ok {
		return nil, nil, errors.New("gossf: eigen decomposition of A failed")
	}
	λmax := 0.0
	for _, v := range λ.Values(nil) {
		λmax = math.Max(λmax, cmplx.Abs(v))
	}
	if 2*λmax*Δt >= math.Pi {
		err = errors.Wrapf(ErrNyquist, "Δt=%f", Δt)
	}

	// M = [ -A·Δt  Γ·W·Γ'·Δt ]
	//     [   0      A'·Δt   ]
	var ΓW, ΓWΓ, Ap mat.Dense
	ΓW.Mul(Γ, W)
	ΓWΓ.Mul(&ΓW, Γ.T())
	ΓWΓ.Scale(Δt, &ΓWΓ)
	Ap.Scale(Δt, A)
	n, _ := A.Dims()
	M := mat.NewDense(2*n, 2*n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			M.Set(i, j, -Ap.At(i, j))
			M.Set(i+n, j+n, Ap.At(j, i))
			M.Set(i, j+n, ΓWΓ.At(i, j))
		}
	}
	var expM mat.Dense
	expM.Exp(M)

	// The lower right block is T', the upper right one T⁻¹·V.
	T := mat.NewDense(n, n, nil)
	T1V := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			T1V.Set(i, j, expM.At(i, n+j))
			T.Set(j, i, expM.At(n+i, n+j))
		}
	}
	var V mat.Dense
	V.Mul(T, T1V)
	Vsym, _ := AsSymDense(&V)
	return T, Vsym, err
}

// NewDiscretized returns the model of the sampled continuous system observed
// through z with noise h, with a fully diffuse initial state. A wrapped
// ErrNyquist is returned together with a valid model.
func NewDiscretized(A, Γ, W mat.Matrix, Δt float64, z mat.Vector, h float64) (*Model, error) {
	T, V, err := VanLoan(A, Γ, W, Δt)
	if T == nil {
		return nil, err
	}
	n, _ := T.Dims()
	m, merr := NewModel(T, V, z, h, mat.NewVecDense(n, nil), mat.NewSymDense(n, nil), Identity(n))
	if merr != nil {
		return nil, merr
	}
	return m, err
}
