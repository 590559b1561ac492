package gossf

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "info")
	require.NoError(t, err)
	logger.Debug("hidden")
	logger.Info("collapsed", "t", 3)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=collapsed t=3")

	for _, level := range []string{"", "debug", "INFO", "warning", "warn", " error "} {
		_, err := NewLogger(&buf, level)
		assert.NoError(t, err, level)
	}
	_, err = NewLogger(&buf, "trace")
	assert.Error(t, err)
}
