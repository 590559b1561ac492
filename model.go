package gossf

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// FixedInitialization is an initial state a0 + B·δ + η, η ~ N(0, P0).
type FixedInitialization struct {
	a0 *mat.VecDense
	p0 *mat.SymDense
	b  *mat.Dense // nil when there is no diffuse part
}

// NewFixedInitialization returns a new initialization. B may be nil.
func NewFixedInitialization(a0 mat.Vector, P0 mat.Symmetric, B mat.Matrix) (*FixedInitialization, error) {
	if err := checkMatDims(a0, P0, "a0", "P0", rows2cols); err != nil {
		return nil, err
	}
	init := &FixedInitialization{a0: cloneVec(a0), p0: cloneSym(P0)}
	if B != nil {
		if err := checkMatDims(B, P0, "B", "P0", rows2cols); err != nil {
			return nil, err
		}
		if _, c := B.Dims(); c > 0 {
			init.b = mat.DenseCopyOf(B)
		}
	}
	return init, nil
}

// StateDim implements the Initialization interface.
func (i *FixedInitialization) StateDim() int { return i.a0.Len() }

// DiffuseDim implements the Initialization interface.
func (i *FixedInitialization) DiffuseDim() int {
	if i.b == nil {
		return 0
	}
	_, c := i.b.Dims()
	return c
}

// A0 implements the Initialization interface.
func (i *FixedInitialization) A0(a *mat.VecDense) { a.CopyVec(i.a0) }

// Pf0 implements the Initialization interface.
func (i *FixedInitialization) Pf0(p *mat.SymDense) { p.CopySym(i.p0) }

// B0 implements the Initialization interface.
func (i *FixedInitialization) B0(b *mat.Dense) {
	if i.b != nil {
		b.Copy(i.b)
	}
}

// Pi0 implements the Initialization interface.
func (i *FixedInitialization) Pi0(p *mat.SymDense) {
	if i.b == nil {
		p.Zero()
		return
	}
	p.SymOuterK(1, i.b)
}

// FixedDynamics is a time invariant transition T with innovation variance V.
type FixedDynamics struct {
	T *mat.Dense
	V *mat.SymDense // nil when there is no innovation
}

// NewFixedDynamics returns new time invariant dynamics. V may be nil.
func NewFixedDynamics(T mat.Matrix, V mat.Symmetric) (*FixedDynamics, error) {
	if err := checkMatDims(T, T, "T", "T", rows2cols); err != nil {
		return nil, err
	}
	if HasNaNOrInf(T) {
		return nil, errors.New("gossf: T contains NaN or Inf")
	}
	d := &FixedDynamics{T: mat.DenseCopyOf(T)}
	if V != nil {
		if err := checkMatDims(V, T, "V", "T", rowsAndcols); err != nil {
			return nil, err
		}
		if HasNaNOrInf(V) {
			return nil, errors.New("gossf: V contains NaN or Inf")
		}
		d.V = cloneSym(V)
	}
	return d, nil
}

// IsTimeInvariant implements the Dynamics interface.
func (d *FixedDynamics) IsTimeInvariant() bool { return true }

// TX implements the Dynamics interface.
func (d *FixedDynamics) TX(_ int, x *mat.VecDense) {
	var tmp mat.VecDense
	tmp.MulVec(d.T, x)
	x.CopyVec(&tmp)
}

// XT implements the Dynamics interface.
func (d *FixedDynamics) XT(_ int, x *mat.VecDense) {
	var tmp mat.VecDense
	tmp.MulVec(d.T.T(), x)
	x.CopyVec(&tmp)
}

// TM implements the Dynamics interface.
func (d *FixedDynamics) TM(_ int, m *mat.Dense) {
	var tmp mat.Dense
	tmp.Mul(d.T, m)
	m.Copy(&tmp)
}

// MT implements the Dynamics interface.
func (d *FixedDynamics) MT(_ int, m *mat.Dense) {
	var tmp mat.Dense
	tmp.Mul(m, d.T)
	m.Copy(&tmp)
}

// TVT implements the Dynamics interface.
func (d *FixedDynamics) TVT(_ int, p *mat.SymDense) {
	kernels().Sandwich(p, d.T, p)
}

// AddV implements the Dynamics interface.
func (d *FixedDynamics) AddV(_ int, p *mat.SymDense) {
	if d.V != nil {
		p.AddSym(p, d.V)
	}
}

// FixedLoading is a time invariant measurement row.
type FixedLoading struct {
	Z *mat.VecDense
}

// NewFixedLoading returns a new time invariant loading.
func NewFixedLoading(z mat.Vector) *FixedLoading {
	return &FixedLoading{Z: cloneVec(z)}
}

// IsTimeInvariant implements the Loading interface.
func (l *FixedLoading) IsTimeInvariant() bool { return true }

// ZX implements the Loading interface.
func (l *FixedLoading) ZX(_ int, x mat.Vector) float64 { return mat.Dot(l.Z, x) }

// ZM implements the Loading interface.
func (l *FixedLoading) ZM(_ int, m mat.Matrix, out *mat.VecDense) { out.MulVec(m.T(), l.Z) }

// ZPZ implements the Loading interface.
func (l *FixedLoading) ZPZ(_ int, p mat.Symmetric) float64 { return mat.Inner(l.Z, p, l.Z) }

// PZ implements the Loading interface.
func (l *FixedLoading) PZ(_ int, p mat.Symmetric, out *mat.VecDense) { out.MulVec(p, l.Z) }

// XpZd implements the Loading interface.
func (l *FixedLoading) XpZd(_ int, x *mat.VecDense, d float64) { x.AddScaledVec(x, d, l.Z) }

// PpZdZ implements the Loading interface.
func (l *FixedLoading) PpZdZ(_ int, p *mat.SymDense, d float64) { p.SymRankOne(p, d, l.Z) }

// RowTo implements the Loading interface.
func (l *FixedLoading) RowTo(_ int, dst *mat.VecDense) { dst.CopyVec(l.Z) }

// VaryingLoading is a measurement row that depends on t, e.g. seasonal factors
// applied to a structural component.
type VaryingLoading struct {
	n   int
	row func(t int, z *mat.VecDense)
}

// NewVaryingLoading returns a loading whose row at t is written into z by row.
func NewVaryingLoading(n int, row func(t int, z *mat.VecDense)) *VaryingLoading {
	return &VaryingLoading{n, row}
}

func (l *VaryingLoading) at(t int) *mat.VecDense {
	z := mat.NewVecDense(l.n, nil)
	l.row(t, z)
	return z
}

// IsTimeInvariant implements the Loading interface.
func (l *VaryingLoading) IsTimeInvariant() bool { return false }

// ZX implements the Loading interface.
func (l *VaryingLoading) ZX(t int, x mat.Vector) float64 { return mat.Dot(l.at(t), x) }

// ZM implements the Loading interface.
func (l *VaryingLoading) ZM(t int, m mat.Matrix, out *mat.VecDense) { out.MulVec(m.T(), l.at(t)) }

// ZPZ implements the Loading interface.
func (l *VaryingLoading) ZPZ(t int, p mat.Symmetric) float64 {
	z := l.at(t)
	return mat.Inner(z, p, z)
}

// PZ implements the Loading interface.
func (l *VaryingLoading) PZ(t int, p mat.Symmetric, out *mat.VecDense) { out.MulVec(p, l.at(t)) }

// XpZd implements the Loading interface.
func (l *VaryingLoading) XpZd(t int, x *mat.VecDense, d float64) { x.AddScaledVec(x, d, l.at(t)) }

// PpZdZ implements the Loading interface.
func (l *VaryingLoading) PpZdZ(t int, p *mat.SymDense, d float64) { p.SymRankOne(p, d, l.at(t)) }

// RowTo implements the Loading interface. dst is cleared before row writes into it.
func (l *VaryingLoading) RowTo(t int, dst *mat.VecDense) {
	dst.Zero()
	l.row(t, dst)
}

// Form assembles a state space form from independent parts.
type Form struct {
	Init  Initialization
	Dyn   Dynamics
	Load  Loading
	Noise MeasurementError
}

// Initialization implements the SSF interface.
func (f *Form) Initialization() Initialization { return f.Init }

// Dynamics implements the SSF interface.
func (f *Form) Dynamics() Dynamics { return f.Dyn }

// Loading implements the SSF interface.
func (f *Form) Loading() Loading { return f.Load }

// MeasurementError implements the SSF interface.
func (f *Form) MeasurementError() MeasurementError { return f.Noise }

// Model is a time invariant state space form built from matrices.
type Model struct {
	init  *FixedInitialization
	dyn   *FixedDynamics
	load  *FixedLoading
	noise ConstantNoise
}

// NewModel returns a new time invariant model.
// Parameters:
// - T: transition matrix (n×n)
// - V: innovation covariance (n×n), may be nil
// - Z: measurement row (n)
// - H: measurement error variance
// - a0, P0: initial mean and proper covariance
// - B: diffuse basis (n×d), may be nil
func NewModel(T mat.Matrix, V mat.Symmetric, Z mat.Vector, H float64, a0 mat.Vector, P0 mat.Symmetric, B mat.Matrix) (*Model, error) {
	dyn, err := NewFixedDynamics(T, V)
	if err != nil {
		return nil, errors.Wrap(err, "dynamics")
	}
	if err = checkMatDims(T, Z, "T", "Z", cols2rows); err != nil {
		return nil, errors.Wrap(err, "loading")
	}
	init, err := NewFixedInitialization(a0, P0, B)
	if err != nil {
		return nil, errors.Wrap(err, "initialization")
	}
	if err = checkMatDims(T, P0, "T", "P0", rowsAndcols); err != nil {
		return nil, errors.Wrap(err, "initialization")
	}
	return &Model{init, dyn, NewFixedLoading(Z), ConstantNoise(H)}, nil
}

// Initialization implements the SSF interface.
func (m *Model) Initialization() Initialization { return m.init }

// Dynamics implements the SSF interface.
func (m *Model) Dynamics() Dynamics { return m.dyn }

// Loading implements the SSF interface.
func (m *Model) Loading() Loading { return m.load }

// MeasurementError implements the SSF interface.
func (m *Model) MeasurementError() MeasurementError { return m.noise }

func (m *Model) String() string {
	return fmt.Sprintf("T=%v\nZ=%v\n%s", mat.Formatted(m.dyn.T, mat.Prefix("  ")), mat.Formatted(m.load.Z.T(), mat.Prefix("  ")), m.noise)
}

// SelectionVariance returns S·Q·S'.
func SelectionVariance(S mat.Matrix, Q mat.Symmetric) (*mat.SymDense, error) {
	if err := checkMatDims(S, Q, "S", "Q", cols2rows); err != nil {
		return nil, err
	}
	r, _ := S.Dims()
	V := mat.NewSymDense(r, nil)
	kernels().Sandwich(V, S, Q)
	return V, nil
}

// NewLocalLevel returns the local level model y = μ + ε, μ' = μ + η with a diffuse μ0.
func NewLocalLevel(level, noise float64) *Model {
	m, _ := NewModel(
		mat.NewDense(1, 1, []float64{1}),
		mat.NewSymDense(1, []float64{level}),
		mat.NewVecDense(1, []float64{1}),
		noise,
		mat.NewVecDense(1, nil),
		mat.NewSymDense(1, nil),
		mat.NewDense(1, 1, []float64{1}),
	)
	return m
}

// NewLocalLinearTrend returns the local linear trend model with a diffuse level and slope.
func NewLocalLinearTrend(level, slope, noise float64) *Model {
	m, _ := NewModel(
		mat.NewDense(2, 2, []float64{1, 1, 0, 1}),
		mat.NewSymDense(2, []float64{level, 0, 0, slope}),
		mat.NewVecDense(2, []float64{1, 0}),
		noise,
		mat.NewVecDense(2, nil),
		mat.NewSymDense(2, nil),
		mat.NewDense(2, 2, []float64{1, 0, 0, 1}),
	)
	return m
}

// NewAR1 returns a stationary AR(1) observed with noise, initialized from its
// unconditional distribution.
func NewAR1(phi, variance, noise float64) (*Model, error) {
	if phi <= -1 || phi >= 1 {
		return nil, errors.Errorf("gossf: AR(1) coefficient %g is not stationary", phi)
	}
	return NewModel(
		mat.NewDense(1, 1, []float64{phi}),
		mat.NewSymDense(1, []float64{variance}),
		mat.NewVecDense(1, []float64{1}),
		noise,
		mat.NewVecDense(1, nil),
		mat.NewSymDense(1, []float64{variance / (1 - phi*phi)}),
		nil,
	)
}
