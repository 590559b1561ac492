package gossf

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// FilterType allows for quick comparison of filters.
type FilterType uint8

const (
	// ExactDiffuseType is the Durbin-Koopman exact initial filter (default).
	ExactDiffuseType FilterType = iota + 1
	// AugmentedType is the de Jong augmented filter with collapsing.
	AugmentedType
	// QRType is the non recursive Householder cross-check.
	QRType
	// OrdinaryType is the plain Kalman filter (no diffuse part).
	OrdinaryType
)

var filterTypeNames = map[FilterType]string{
	ExactDiffuseType: "exact",
	AugmentedType:    "augmented",
	QRType:           "qr",
	OrdinaryType:     "ordinary",
}

func (ft FilterType) String() string {
	if name, ok := filterTypeNames[ft]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (ft FilterType) MarshalText() ([]byte, error) {
	if _, ok := filterTypeNames[ft]; !ok {
		return nil, errors.Errorf("gossf: unknown filter type %d", ft)
	}
	return []byte(ft.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (ft *FilterType) UnmarshalText(text []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(text)))
	for k, v := range filterTypeNames {
		if v == name {
			*ft = k
			return nil
		}
	}
	return errors.Errorf("gossf: unknown filter type %q", name)
}

// Initialization describes the distribution of the state at t=0:
// a0 + B·δ + η with η ~ N(0, Pf0) and δ diffuse.
type Initialization interface {
	StateDim() int
	DiffuseDim() int
	A0(a *mat.VecDense)  // Fills a with the initial mean.
	Pf0(p *mat.SymDense) // Fills p with the proper part of the initial covariance.
	B0(b *mat.Dense)     // Fills b (n×d) with the diffuse basis.
	Pi0(p *mat.SymDense) // Fills p with B·B'.
}

// Dynamics is the transition part of the state space form.
// The time index t of every operation is the origin of the transition t -> t+1.
type Dynamics interface {
	IsTimeInvariant() bool
	TX(t int, x *mat.VecDense)   // x = T(t)·x
	XT(t int, x *mat.VecDense)   // x = T(t)'·x
	TM(t int, m *mat.Dense)      // m = T(t)·m
	MT(t int, m *mat.Dense)      // m = m·T(t)
	TVT(t int, p *mat.SymDense)  // p = T(t)·p·T(t)'
	AddV(t int, p *mat.SymDense) // p = p + V(t)
}

// Loading is the measurement row Z(t).
type Loading interface {
	IsTimeInvariant() bool
	ZX(t int, x mat.Vector) float64
	ZM(t int, m mat.Matrix, out *mat.VecDense) // out = (Z(t)·m)'
	ZPZ(t int, p mat.Symmetric) float64
	PZ(t int, p mat.Symmetric, out *mat.VecDense) // out = p·Z(t)'
	XpZd(t int, x *mat.VecDense, d float64)       // x = x + d·Z(t)'
	PpZdZ(t int, p *mat.SymDense, d float64)      // p = p + d·Z(t)'Z(t)
	RowTo(t int, dst *mat.VecDense)
}

// MeasurementError is the variance of the measurement noise.
type MeasurementError interface {
	H(t int) float64
}

// SSF is a linear Gaussian state space form. Implementations must be safe for
// concurrent read-only use: the filters never mutate a model.
type SSF interface {
	Initialization() Initialization
	Dynamics() Dynamics
	Loading() Loading
	MeasurementError() MeasurementError // May be nil.
}

// Run filters the data with the filter selected by opts.Method.
func Run(ctx context.Context, m SSF, data Data, opts Options) (*FilteringResults, error) {
	switch opts.method() {
	case OrdinaryType:
		return NewOrdinaryFilter(opts).RunContext(ctx, m, data)
	case QRType:
		return NewQRFilter(opts).Run(ctx, m, data)
	default:
		return NewDiffuseFilter(opts).RunContext(ctx, m, data)
	}
}

func measurementVariance(m SSF, t int) float64 {
	if e := m.MeasurementError(); e != nil {
		return e.H(t)
	}
	return 0
}
