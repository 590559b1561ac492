package gossf

import (
	"math"

	"github.com/pkg/errors"
)

// Data is the observed series seen by the filters.
type Data interface {
	Len() int
	At(t int) float64
	IsMissing(t int) bool
}

// Series is a dense series where NaN marks a missing observation.
type Series []float64

// Len implements the Data interface.
func (s Series) Len() int { return len(s) }

// At implements the Data interface.
func (s Series) At(t int) float64 { return s[t] }

// IsMissing implements the Data interface.
func (s Series) IsMissing(t int) bool { return math.IsNaN(s[t]) }

// MaskedSeries is a series with an explicit missing mask.
type MaskedSeries struct {
	values  []float64
	missing []bool
}

// NewMaskedSeries returns a series where missing[t] marks y[t] as unobserved.
// A nil mask means every value is observed.
func NewMaskedSeries(values []float64, missing []bool) (*MaskedSeries, error) {
	if missing == nil {
		missing = make([]bool, len(values))
	}
	if len(missing) != len(values) {
		return nil, errors.Errorf("gossf: mask has length %d for %d values", len(missing), len(values))
	}
	return &MaskedSeries{values, missing}, nil
}

// Len implements the Data interface.
func (s *MaskedSeries) Len() int { return len(s.values) }

// At implements the Data interface.
func (s *MaskedSeries) At(t int) float64 { return s.values[t] }

// IsMissing implements the Data interface.
func (s *MaskedSeries) IsMissing(t int) bool { return s.missing[t] || math.IsNaN(s.values[t]) }

type scaled struct {
	Data
	c float64
}

func (s scaled) At(t int) float64 { return s.c * s.Data.At(t) }

// Scale returns a view of d where every observation is multiplied by c.
func Scale(d Data, c float64) Data {
	return scaled{d, c}
}

// Observations returns the number of non missing observations.
func Observations(d Data) int {
	n := 0
	for t := 0; t < d.Len(); t++ {
		if !d.IsMissing(t) {
			n++
		}
	}
	return n
}
