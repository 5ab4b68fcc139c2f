package logger

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNew_Level verifies level parsing and the info fallback
func TestNew_Level(t *testing.T) {
	log, err := New("debug", "")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())

	log, err = New("not-a-level", "")
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, log.GetLevel(), "unknown level should fall back to info")
}

// TestNew_FileOutput verifies the log directory is created
func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "harvest.log")

	log, err := New("info", path)
	require.NoError(t, err)
	log.Info("hello")

	assert.FileExists(t, path)
}

// TestFormatter_Fields verifies fields are rendered in key order
func TestFormatter_Fields(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetFormatter(&Formatter{})

	log.WithFields(logrus.Fields{"page": 2, "count": 10}).Warn("walked")

	line := buf.String()
	assert.Contains(t, line, "[WARN]")
	assert.Contains(t, line, "walked count=10 page=2")
}
