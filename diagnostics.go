package gossf

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Diagnostics summarizes the standardized residuals of a filter pass.
type Diagnostics struct {
	N                int
	Mean, Variance   float64
	LjungBox         float64
	LjungBoxPValue   float64
	LjungBoxDOF      int
	JarqueBera       float64
	JarqueBeraPValue float64
}

func (d Diagnostics) String() string {
	return fmt.Sprintf("n=%d mean=%.4f var=%.4f LB=%.4f (p=%.4f, dof=%d) JB=%.4f (p=%.4f)", d.N, d.Mean, d.Variance, d.LjungBox, d.LjungBoxPValue, d.LjungBoxDOF, d.JarqueBera, d.JarqueBeraPValue)
}

// NewDiagnostics tests the residuals for autocorrelation up to lags (fitted is
// the number of estimated hyper-parameters) and for normality.
func NewDiagnostics(residuals []float64, lags, fitted int) (*Diagnostics, error) {
	if len(residuals) < 3 {
		return nil, errors.Errorf("gossf: %d residuals are not enough for diagnostics", len(residuals))
	}
	mean, variance := stat.MeanVariance(residuals, nil)
	lb, lbp, dof, err := LjungBox(residuals, lags, fitted)
	if err != nil {
		return nil, err
	}
	jb, jbp := JarqueBera(residuals)
	return &Diagnostics{len(residuals), mean, variance, lb, lbp, dof, jb, jbp}, nil
}

// Autocorrelations returns the sample autocorrelations of x for lags 0 to lags.
func Autocorrelations(x []float64, lags int) []float64 {
	n := len(x)
	mean := stat.Mean(x, nil)
	dev := make([]float64, n)
	copy(dev, x)
	floats.AddConst(-mean, dev)
	c0 := floats.Dot(dev, dev)
	acf := make([]float64, lags+1)
	for k := 0; k <= lags && k < n; k++ {
		acf[k] = floats.Dot(dev[:n-k], dev[k:]) / c0
	}
	return acf
}

// LjungBox returns the Ljung-Box statistic of x up to lags, its χ² p-value
// and the degrees of freedom lags - fitted.
func LjungBox(x []float64, lags, fitted int) (q, pvalue float64, dof int, err error) {
	n := len(x)
	if lags < 1 || lags >= n {
		return 0, 0, 0, errors.Errorf("gossf: invalid number of lags %d for %d values", lags, n)
	}
	acf := Autocorrelations(x, lags)
	for k := 1; k <= lags; k++ {
		q += acf[k] * acf[k] / float64(n-k)
	}
	q *= float64(n * (n + 2))
	dof = lags - fitted
	if dof < 1 {
		dof = 1
	}
	return q, distuv.ChiSquared{K: float64(dof)}.Survival(q), dof, nil
}

// JarqueBera returns the Jarque-Bera normality statistic of x and its χ²(2) p-value.
func JarqueBera(x []float64) (jb, pvalue float64) {
	s := stat.Skew(x, nil)
	k := stat.ExKurtosis(x, nil)
	jb = float64(len(x)) / 6 * (s*s + k*k/4)
	return jb, distuv.ChiSquared{K: 2}.Survival(jb)
}
