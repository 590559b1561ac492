package gossf

import (
	"context"
	"math"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// Builder returns the model of a parameter vector. It is called once per
// evaluation and may be called concurrently.
type Builder func(params []float64) (SSF, error)

// Metrics counts the filter passes of an Evaluator.
type Metrics struct {
	passes   *prometheus.CounterVec
	duration prometheus.Histogram
}

// Outcomes of a pass, used as the value of the "outcome" label.
const (
	outcomeOK           = "ok"
	outcomeNumerical    = "numerical"
	outcomeInsufficient = "insufficient"
	outcomeError        = "error"
)

// NewMetrics registers the evaluation metrics on reg.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "filter",
			Name:      "passes_total",
			Help:      "Filter passes by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "filter",
			Name:      "pass_duration_seconds",
			Help:      "Duration of a filter pass and likelihood evaluation.",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 10),
		}),
	}
	for _, c := range []prometheus.Collector{m.passes, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "gossf: registering metrics")
		}
	}
	return m, nil
}

func (m *Metrics) observe(start time.Time, err error) {
	if m == nil {
		return
	}
	m.duration.Observe(time.Since(start).Seconds())
	m.passes.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case IsNumericalFailure(err):
		return outcomeNumerical
	case errors.Is(err, ErrInsufficientInformation):
		return outcomeInsufficient
	}
	return outcomeError
}

// Evaluator evaluates the likelihood of a family of models on one series.
// Each evaluation owns its model and filter state, so that evaluations may run
// concurrently.
type Evaluator struct {
	build   Builder
	data    Data
	mode    LikelihoodMode
	opts    Options
	metrics *Metrics
}

// NewEvaluator returns a new evaluator. metrics may be nil.
func NewEvaluator(build Builder, data Data, mode LikelihoodMode, opts Options, metrics *Metrics) *Evaluator {
	// Only the likelihood is needed.
	opts.StoreStates = false
	return &Evaluator{build, data, mode, opts, metrics}
}

// Evaluate builds the model of params, filters the data and returns its likelihood.
func (ev *Evaluator) Evaluate(ctx context.Context, params []float64) (lk *Likelihood, err error) {
	start := time.Now()
	defer func() { ev.metrics.observe(start, err) }()
	m, err := ev.build(params)
	if err != nil {
		return nil, errors.Wrap(err, "gossf: building model")
	}
	res, err := Run(ctx, m, ev.data, ev.opts)
	if err != nil {
		return nil, err
	}
	return NewLikelihood(res, ev.mode)
}

// EvaluateAll evaluates every point concurrently, with at most
// Options.Parallelism passes at a time. Failed passes are reported in errs;
// the returned error is only set when the context is done.
func (ev *Evaluator) EvaluateAll(ctx context.Context, points [][]float64) ([]*Likelihood, []error, error) {
	lks := make([]*Likelihood, len(points))
	errs := make([]error, len(points))
	g, gctx := errgroup.WithContext(ctx)
	limit := ev.opts.Parallelism
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(limit)
	for i, p := range points {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			lks[i], errs[i] = ev.Evaluate(gctx, p)
			if errors.Is(errs[i], context.Canceled) || errors.Is(errs[i], context.DeadlineExceeded) {
				return errs[i]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return lks, errs, nil
}

// Objective returns the negative log-likelihood of params, or +Inf when the
// pass fails, for use by minimizers.
func (ev *Evaluator) Objective(params []float64) float64 {
	lk, err := ev.Evaluate(context.Background(), params)
	if err != nil {
		ev.opts.logger().Debug("rejected parameters", "params", params, "err", err)
		return math.Inf(1)
	}
	return -lk.LogLikelihood()
}
