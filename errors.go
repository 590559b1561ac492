package gossf

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Reason tells why a filter pass failed.
type Reason uint8

const (
	// NonPositiveVariance is returned when a prediction error variance is not strictly positive.
	NonPositiveVariance Reason = iota + 1
	// CholeskyFailure is returned when a factorization of a covariance or information matrix fails.
	CholeskyFailure
	// InsufficientInformation is returned when the diffuse part cannot be resolved by the data.
	InsufficientInformation
)

func (r Reason) String() string {
	switch r {
	case NonPositiveVariance:
		return "non-positive variance"
	case CholeskyFailure:
		return "cholesky failure"
	case InsufficientInformation:
		return "insufficient information"
	}
	return "unknown reason"
}

// Failure is the error returned by a failed filter pass. Numerical failures
// reject a parameter point; InsufficientInformation rejects the model/data pair.
type Failure struct {
	Reason Reason
	Step   int     // Time index of the failure, -1 when not tied to a step.
	Value  float64 // Offending value, if any.
}

func (e *Failure) Error() string {
	if e.Step < 0 {
		return fmt.Sprintf("gossf: %s", e.Reason)
	}
	return fmt.Sprintf("gossf: %s at t=%d (value=%g)", e.Reason, e.Step, e.Value)
}

// Is matches failures by reason only, so that errors.Is(err, ErrNonPositiveVariance) works.
func (e *Failure) Is(target error) bool {
	t, ok := target.(*Failure)
	return ok && t.Reason == e.Reason
}

// Numerical returns whether the failure is transient with respect to the parameters.
func (e *Failure) Numerical() bool {
	return e.Reason == NonPositiveVariance || e.Reason == CholeskyFailure
}

var (
	// ErrNonPositiveVariance matches any NonPositiveVariance failure.
	ErrNonPositiveVariance = &Failure{Reason: NonPositiveVariance, Step: -1}
	// ErrCholeskyFailure matches any CholeskyFailure failure.
	ErrCholeskyFailure = &Failure{Reason: CholeskyFailure, Step: -1}
	// ErrInsufficientInformation matches any InsufficientInformation failure.
	ErrInsufficientInformation = &Failure{Reason: InsufficientInformation, Step: -1}

	// ErrDiffuseModel is returned by the ordinary filter for models with a diffuse part.
	ErrDiffuseModel = errors.New("gossf: ordinary filter cannot handle a diffuse initialization")
	// ErrStatesNotStored is returned by the smoother when the filter did not keep the states.
	ErrStatesNotStored = errors.New("gossf: filtering results do not contain the states")
	// ErrSmoothingUnsupported is returned by the smoother for diffuse results of non exact filters.
	ErrSmoothingUnsupported = errors.New("gossf: smoothing requires exact diffuse or ordinary results")
)

// IsNumericalFailure returns whether err is (or wraps) a numerical Failure.
func IsNumericalFailure(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Numerical()
}

func failure(reason Reason, t int, v float64) error {
	return &Failure{Reason: reason, Step: t, Value: v}
}

// DimensionAgreement defines how two matrices' dimensions should agree.
type DimensionAgreement uint8

const (
	dimErrMsg                    = "dimensions must agree: "
	rows2cols DimensionAgreement = iota + 1
	cols2rows
	cols2cols
	rows2rows
	rowsAndcols
)

// checkMatDims checks the matrix dimensions match provided a DimensionAgreement. Returns an error if not.
func checkMatDims(m1, m2 mat.Matrix, name1, name2 string, method DimensionAgreement) error {
	r1, c1 := m1.Dims()
	r2, c2 := m2.Dims()
	switch method {
	case rows2cols:
		if r1 != c2 {
			return errors.Errorf("%s%s(%dx...) %s(...x%d)", dimErrMsg, name1, r1, name2, c2)
		}
	case cols2rows:
		if c1 != r2 {
			return errors.Errorf("%s%s(...x%d) %s(%dx...)", dimErrMsg, name1, c1, name2, r2)
		}
	case cols2cols:
		if c1 != c2 {
			return errors.Errorf("%s%s(...x%d) %s(...x%d)", dimErrMsg, name1, c1, name2, c2)
		}
	case rows2rows:
		if r1 != r2 {
			return errors.Errorf("%s%s(%dx...) %s(%dx...)", dimErrMsg, name1, r1, name2, r2)
		}
	case rowsAndcols:
		if c1 != c2 || r1 != r2 {
			return errors.Errorf("%s%s(%dx%d) %s(%dx%d)", dimErrMsg, name1, r1, c1, name2, r2, c2)
		}
	}
	return nil
}
