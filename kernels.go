package gossf

import (
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/mat"
)

// Kernels is the set of linear algebra kernels used on the hot path of the
// filters. Nil fields fall back to the gonum implementations.
type Kernels struct {
	// Sandwich sets dst = a·x·a'. dst may be x.
	Sandwich func(dst *mat.SymDense, a mat.Matrix, x mat.Symmetric)
	// Symmetrize sets dst = (m+m')/2.
	Symmetrize func(dst *mat.SymDense, m mat.Matrix)
	// TriSolve solves r·x = b (or r'·x = b when trans is set) in place, r upper triangular.
	TriSolve func(r *mat.TriDense, trans bool, x *mat.VecDense)
}

// ErrKernelsSealed is returned when kernels are registered after their first use.
var ErrKernelsSealed = errors.New("gossf: kernels already in use")

var registry struct {
	sync.Mutex
	sealed bool
	active Kernels
}

// RegisterKernels replaces the default kernels. It must be called before the
// first filter pass; the registry is read-only afterwards.
func RegisterKernels(k Kernels) error {
	registry.Lock()
	defer registry.Unlock()
	if registry.sealed {
		return ErrKernelsSealed
	}
	registry.active = withDefaults(k)
	return nil
}

var kernelsOnce sync.Once

func kernels() *Kernels {
	kernelsOnce.Do(func() {
		registry.Lock()
		registry.active = withDefaults(registry.active)
		registry.sealed = true
		registry.Unlock()
	})
	return &registry.active
}

func withDefaults(k Kernels) Kernels {
	if k.Sandwich == nil {
		k.Sandwich = gonumSandwich
	}
	if k.Symmetrize == nil {
		k.Symmetrize = symmetrize
	}
	if k.TriSolve == nil {
		k.TriSolve = blasTriSolve
	}
	return k
}

func gonumSandwich(dst *mat.SymDense, a mat.Matrix, x mat.Symmetric) {
	var ax, axa mat.Dense
	ax.Mul(a, x)
	axa.Mul(&ax, a.T())
	symmetrize(dst, &axa)
}

func blasTriSolve(r *mat.TriDense, trans bool, x *mat.VecDense) {
	tA := blas.NoTrans
	if trans {
		tA = blas.Trans
	}
	blas64.Trsv(tA, r.RawTriangular(), x.RawVector())
}
