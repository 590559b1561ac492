package gossf

import (
	"context"
	"math"
	"math/rand/v2"
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
)

// gaussian draws from N(0, Σ). Σ may be singular.
type gaussian struct {
	n    int
	chol *distmv.Normal
	q    *mat.Dense // Σ = q·q' when chol is nil
	std  distuv.Normal
}

func newGaussian(sigma *mat.SymDense, src rand.Source) (*gaussian, error) {
	n := sigma.SymmetricDim()
	g := &gaussian{n: n, std: distuv.Normal{Mu: 0, Sigma: 1, Src: src}}
	if IsNil(sigma) {
		return g, nil
	}
	if norm, ok := distmv.NewNormal(make([]float64, n), sigma, src); ok {
		g.chol = norm
		return g, nil
	}
	var eig mat.EigenSym
	if ok := eig.Factorize(sigma, true); !ok {
		return nil, errors.New("gossf: eigen decomposition of the covariance failed")
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	for j, λ := range eig.Values(nil) {
		if λ < 0 {
			if λ < -1e-10*math.Abs(eig.Values(nil)[n-1]) {
				return nil, errors.Errorf("gossf: covariance is not positive semi-definite (λ=%g)", λ)
			}
			λ = 0
		}
		s := math.Sqrt(λ)
		for i := 0; i < n; i++ {
			vecs.Set(i, j, s*vecs.At(i, j))
		}
	}
	g.q = &vecs
	return g, nil
}

func (g *gaussian) draw() *mat.VecDense {
	x := mat.NewVecDense(g.n, nil)
	switch {
	case g.chol != nil:
		g.chol.Rand(x.RawVector().Data)
	case g.q != nil:
		z := mat.NewVecDense(g.n, nil)
		for i := 0; i < g.n; i++ {
			z.SetVec(i, g.std.Rand())
		}
		x.MulVec(g.q, z)
	}
	return x
}

// Simulate draws a series of length n from m, with the diffuse effects drawn from N(0, I).
func Simulate(m SSF, n int, src rand.Source) (Series, error) {
	init, dyn, load := m.Initialization(), m.Dynamics(), m.Loading()
	dim, d := init.StateDim(), init.DiffuseDim()
	std := distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	a := mat.NewVecDense(dim, nil)
	init.A0(a)
	P0 := mat.NewSymDense(dim, nil)
	init.Pf0(P0)
	g0, err := newGaussian(P0, src)
	if err != nil {
		return nil, errors.Wrap(err, "initial state")
	}
	a.AddVec(a, g0.draw())
	if d > 0 {
		B := mat.NewDense(dim, d, nil)
		init.B0(B)
		delta := mat.NewVecDense(d, nil)
		for i := 0; i < d; i++ {
			delta.SetVec(i, std.Rand())
		}
		var bd mat.VecDense
		bd.MulVec(B, delta)
		a.AddVec(a, &bd)
	}

	var gv *gaussian
	y := make(Series, n)
	for t := 0; t < n; t++ {
		y[t] = load.ZX(t, a)
		if h := measurementVariance(m, t); h > 0 {
			y[t] += math.Sqrt(h) * std.Rand()
		}
		if gv == nil || !dyn.IsTimeInvariant() {
			V := mat.NewSymDense(dim, nil)
			dyn.AddV(t, V)
			if gv, err = newGaussian(V, src); err != nil {
				return nil, errors.Wrapf(err, "innovation at t=%d", t)
			}
		}
		dyn.TX(t, a)
		a.AddVec(a, gv.draw())
	}
	return y, nil
}

// MonteCarloRun is one simulated series and its likelihood.
type MonteCarloRun struct {
	Data       Series
	Likelihood *Likelihood
	Err        error // Failure of the filter pass, if any.
}

// MonteCarloRuns stores MC runs.
type MonteCarloRuns struct {
	Runs []MonteCarloRun
}

// NewMonteCarloRuns simulates samples series of the provided length from m and
// filters each of them, concurrently. The run i uses the PCG source (seed, i).
func NewMonteCarloRuns(ctx context.Context, m SSF, samples, length int, seed uint64, mode LikelihoodMode, opts Options) (*MonteCarloRuns, error) {
	runs := make([]MonteCarloRun, samples)
	opts.StoreStates = false
	g, gctx := errgroup.WithContext(ctx)
	limit := opts.Parallelism
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(limit)
	for i := range runs {
		g.Go(func() error {
			data, err := Simulate(m, length, rand.NewPCG(seed, uint64(i)))
			if err != nil {
				return err
			}
			runs[i].Data = data
			res, err := Run(gctx, m, data, opts)
			if err == nil {
				runs[i].Likelihood, err = NewLikelihood(res, mode)
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			runs[i].Err = err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &MonteCarloRuns{runs}, nil
}

// LogLikelihoods returns the log-likelihoods of the successful runs.
func (mc *MonteCarloRuns) LogLikelihoods() []float64 {
	var lls []float64
	for _, run := range mc.Runs {
		if run.Err == nil {
			lls = append(lls, run.Likelihood.LogLikelihood())
		}
	}
	return lls
}

// Failures returns the number of runs whose filter pass failed.
func (mc *MonteCarloRuns) Failures() int {
	n := 0
	for _, run := range mc.Runs {
		if run.Err != nil {
			n++
		}
	}
	return n
}

// Mean returns the mean log-likelihood of the successful runs.
func (mc *MonteCarloRuns) Mean() float64 {
	return stat.Mean(mc.LogLikelihoods(), nil)
}

// StdDev returns the standard deviation of the log-likelihood of the successful runs.
func (mc *MonteCarloRuns) StdDev() float64 {
	return stat.StdDev(mc.LogLikelihoods(), nil)
}

// Sigma2 returns the mean and standard deviation of the estimated scale of the successful runs.
func (mc *MonteCarloRuns) Sigma2() (mean, stddev float64) {
	var s2 []float64
	for _, run := range mc.Runs {
		if run.Err == nil {
			s2 = append(s2, run.Likelihood.Sigma2())
		}
	}
	return stat.MeanStdDev(s2, nil)
}
