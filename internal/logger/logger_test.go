package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactEmail(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"jane.doe@example.com", "ja***@example.com"},
		{"ab@example.com", "***@example.com"},
		{"not-an-email", "***@***"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, RedactEmail(tt.input))
		})
	}
}

func TestNewLoggerWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	log, err := NewLogger(Config{Level: "debug", LogFile: path, MaxSize: 1})
	require.NoError(t, err)

	log.Info("hello")
	_ = log.Sync()
	assert.FileExists(t, path)
}

func TestNewLoggerInvalidLevelFallsBack(t *testing.T) {
	log, err := NewLogger(Config{Level: "verbose"})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(0))
}
