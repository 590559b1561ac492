package gossf

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Identity returns an identity matrix of the provided size.
func Identity(n int) *mat.SymDense {
	return ScaledIdentity(n, 1)
}

// ScaledIdentity returns an identity matrix of the provided size multiplied by s.
func ScaledIdentity(n int, s float64) *mat.SymDense {
	m := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		m.SetSym(i, i, s)
	}
	return m
}

// IsNil returns whether the provided matrix only has zero values
func IsNil(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if m.At(i, j) != 0 {
				return false
			}
		}
	}
	return true
}

// HasNaNOrInf checks if there are any NaN or Inf in the matrix.
func HasNaNOrInf(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := m.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return true
			}
		}
	}
	return false
}

// AsSymDense returns the symmetric part of the provided square matrix, (m+m')/2.
func AsSymDense(m mat.Matrix) (*mat.SymDense, error) {
	r, c := m.Dims()
	if r != c {
		return nil, errors.New("matrix must be square")
	}
	s := mat.NewSymDense(r, nil)
	symmetrize(s, m)
	return s, nil
}

// symmetrize stores (m+m')/2 in dst, which must be sized.
func symmetrize(dst *mat.SymDense, m mat.Matrix) {
	n := dst.SymmetricDim()
	for i := 0; i < n; i++ {
		dst.SetSym(i, i, m.At(i, i))
		for j := i + 1; j < n; j++ {
			dst.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}
}

func cloneVec(v mat.Vector) *mat.VecDense {
	if v == nil {
		return nil
	}
	return mat.VecDenseCopyOf(v)
}

func cloneSym(p mat.Symmetric) *mat.SymDense {
	if p == nil {
		return nil
	}
	c := mat.NewSymDense(p.SymmetricDim(), nil)
	c.CopySym(p)
	return c
}

// transition returns T(t) as an explicit matrix.
func transition(dyn Dynamics, t, n int) *mat.Dense {
	T := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		T.Set(i, i, 1)
	}
	dyn.TM(t, T)
	return T
}

// ttvt computes p = T(t)'·p·T(t) through the MT operation.
func ttvt(dyn Dynamics, t int, p *mat.SymDense) {
	d := mat.DenseCopyOf(p)
	dyn.MT(t, d) // p·T
	tr := mat.DenseCopyOf(d.T())
	dyn.MT(t, tr) // T'·p·T
	symmetrize(p, tr)
}
