package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		format  string
		debug   bool
	}{
		{"console quiet", false, "console", false},
		{"console verbose", true, "console", true},
		{"json quiet", false, "json", false},
		{"json verbose", true, "json", true},
		{"empty format is console", false, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.verbose, tt.format)
			require.NoError(t, err)
			assert.Equal(t, tt.debug, logger.Core().Enabled(zapcore.DebugLevel))
			assert.False(t, logger.Core().Enabled(zapcore.InfoLevel) && !tt.debug)
			assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
		})
	}
}

func TestNewUnknownFormat(t *testing.T) {
	_, err := New(false, "xml")
	assert.Error(t, err)
}
