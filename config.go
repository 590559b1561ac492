package gossf

import (
	"log/slog"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of the environment variables read by LoadOptions.
const EnvPrefix = "GOSSF"

const (
	defaultDiffuseEpsilon  = 1e-9
	defaultRankEpsilon     = 1e-9
	defaultVarianceEpsilon = 1e-12
)

// Options configures a filter pass. The zero value is usable and selects the
// exact diffuse filter with default thresholds.
type Options struct {
	// Method selects the diffuse initialization strategy.
	Method FilterType `yaml:"method" envconfig:"METHOD"`
	// StoreStates keeps a, P and Pi at every step, as required by the smoother.
	StoreStates bool `yaml:"store_states" envconfig:"STORE_STATES"`
	// ForceCollapse forces the end of the diffuse phase after that many steps (0 disables).
	ForceCollapse int `yaml:"force_collapse" envconfig:"FORCE_COLLAPSE"`
	// DiffuseEpsilon is the threshold under which fi is considered zero.
	DiffuseEpsilon float64 `yaml:"diffuse_epsilon" envconfig:"DIFFUSE_EPSILON"`
	// RankEpsilon is the relative threshold on the diagonal of the augmented
	// information factor above which a direction is resolved.
	RankEpsilon float64 `yaml:"rank_epsilon" envconfig:"RANK_EPSILON"`
	// VarianceEpsilon is the threshold under which f is considered zero in the diffuse phase.
	VarianceEpsilon float64 `yaml:"variance_epsilon" envconfig:"VARIANCE_EPSILON"`
	// SmoothVariances also computes the smoothed covariances.
	SmoothVariances bool `yaml:"smooth_variances" envconfig:"SMOOTH_VARIANCES"`
	// Parallelism bounds the number of concurrent passes of an Evaluator (<=0 uses GOMAXPROCS).
	Parallelism int `yaml:"parallelism" envconfig:"PARALLELISM"`
	// LogLevel is used by NewLogger when Logger is nil ("debug", "info", "warn", "error").
	LogLevel string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	// Logger receives the filter events. Nil means slog.Default().
	Logger *slog.Logger `yaml:"-" ignored:"true"`
}

// DefaultOptions returns the options with every threshold set.
func DefaultOptions() Options {
	return Options{
		Method:          ExactDiffuseType,
		StoreStates:     true,
		DiffuseEpsilon:  defaultDiffuseEpsilon,
		RankEpsilon:     defaultRankEpsilon,
		VarianceEpsilon: defaultVarianceEpsilon,
		LogLevel:        "info",
	}
}

// LoadOptions reads the defaults, then the YAML file at path (if not empty),
// then the GOSSF_* environment variables.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return opts, errors.Wrapf(err, "gossf: reading options %s", path)
		}
		if err := yaml.Unmarshal(raw, &opts); err != nil {
			return opts, errors.Wrapf(err, "gossf: parsing options %s", path)
		}
	}
	if err := envconfig.Process(EnvPrefix, &opts); err != nil {
		return opts, errors.Wrap(err, "gossf: reading environment")
	}
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	if opts.Logger == nil {
		logger, err := NewLogger(os.Stderr, opts.LogLevel)
		if err != nil {
			return opts, err
		}
		opts.Logger = logger
	}
	return opts, nil
}

// Validate returns an error if the options are inconsistent.
func (o Options) Validate() error {
	if o.Method != 0 {
		if _, ok := filterTypeNames[o.Method]; !ok {
			return errors.Errorf("gossf: unknown filter type %d", o.Method)
		}
	}
	if o.ForceCollapse < 0 {
		return errors.Errorf("gossf: force collapse must be positive, got %d", o.ForceCollapse)
	}
	for name, v := range map[string]float64{
		"diffuse_epsilon":  o.DiffuseEpsilon,
		"rank_epsilon":     o.RankEpsilon,
		"variance_epsilon": o.VarianceEpsilon,
	} {
		if v < 0 {
			return errors.Errorf("gossf: %s must be positive, got %g", name, v)
		}
	}
	return nil
}

func (o Options) method() FilterType {
	if o.Method == 0 {
		return ExactDiffuseType
	}
	return o.Method
}

func (o Options) diffuseEpsilon() float64 {
	if o.DiffuseEpsilon <= 0 {
		return defaultDiffuseEpsilon
	}
	return o.DiffuseEpsilon
}

func (o Options) rankEpsilon() float64 {
	if o.RankEpsilon <= 0 {
		return defaultRankEpsilon
	}
	return o.RankEpsilon
}

func (o Options) varianceEpsilon() float64 {
	if o.VarianceEpsilon <= 0 {
		return defaultVarianceEpsilon
	}
	return o.VarianceEpsilon
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}
