package gossf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeOptions(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gossf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadOptionsDefaults(t *testing.T) {
	opts, err := LoadOptions("")
	require.NoError(t, err)
	def := DefaultOptions()
	assert.Equal(t, def.Method, opts.Method)
	assert.Equal(t, def.DiffuseEpsilon, opts.DiffuseEpsilon)
	assert.True(t, opts.StoreStates)
	assert.NotNil(t, opts.Logger)
}

func TestLoadOptionsFileAndEnv(t *testing.T) {
	path := writeOptions(t, `
method: augmented
force_collapse: 4
diffuse_epsilon: 1e-7
store_states: false
parallelism: 3
log_level: debug
`)
	opts, err := LoadOptions(path)
	require.NoError(t, err)
	assert.Equal(t, AugmentedType, opts.Method)
	assert.Equal(t, 4, opts.ForceCollapse)
	assert.Equal(t, 1e-7, opts.DiffuseEpsilon)
	assert.Equal(t, defaultRankEpsilon, opts.RankEpsilon)
	assert.False(t, opts.StoreStates)
	assert.Equal(t, 3, opts.Parallelism)

	t.Setenv("GOSSF_METHOD", "qr")
	t.Setenv("GOSSF_PARALLELISM", "8")
	opts, err = LoadOptions(path)
	require.NoError(t, err)
	assert.Equal(t, QRType, opts.Method)
	assert.Equal(t, 8, opts.Parallelism)
	assert.Equal(t, 4, opts.ForceCollapse)
}

func TestLoadOptionsErrors(t *testing.T) {
	_, err := LoadOptions(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	_, err = LoadOptions(writeOptions(t, "method: kalman\n"))
	assert.Error(t, err)
	_, err = LoadOptions(writeOptions(t, "force_collapse: -2\n"))
	assert.Error(t, err)
	_, err = LoadOptions(writeOptions(t, "log_level: verbose\n"))
	assert.Error(t, err)
	t.Setenv("GOSSF_VARIANCE_EPSILON", "-1")
	_, err = LoadOptions("")
	assert.Error(t, err)
}

func TestOptionsZeroValue(t *testing.T) {
	var opts Options
	assert.NoError(t, opts.Validate())
	assert.Equal(t, ExactDiffuseType, opts.method())
	assert.Equal(t, defaultDiffuseEpsilon, opts.diffuseEpsilon())
	assert.Equal(t, defaultRankEpsilon, opts.rankEpsilon())
	assert.Equal(t, defaultVarianceEpsilon, opts.varianceEpsilon())
	assert.NotNil(t, opts.logger())

	opts.Method = FilterType(77)
	assert.Error(t, opts.Validate())
	opts = Options{RankEpsilon: -1}
	assert.Error(t, opts.Validate())
}
