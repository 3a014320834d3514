package log_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/windvane/booksource/log"
)

func TestFilePluginRotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")

	p, c := log.NewFilePlugin(path, zapcore.DebugLevel)
	logger := log.NewLogger(p)

	line := make([]byte, 10000)
	for count := 10000; count > 0; count-- {
		logger.Info(string(line))
	}
	require.NoError(t, c.Close())
	// lumberjack compresses rotated files on a goroutine that Close does not
	// wait for
	time.Sleep(1 * time.Second)

	fs, err := os.ReadDir(dir)
	require.NoError(t, err)
	var gzCount, logCount int
	for _, f := range fs {
		name := f.Name()
		if !strings.HasPrefix(name, "test") {
			continue
		}
		if strings.HasSuffix(name, ".log") {
			logCount++
		}
		if strings.HasSuffix(name, ".log.gz") {
			gzCount++
			logCount++
		}
	}
	require.Equal(t, 3, logCount, "active file plus two rotated")
	require.Equal(t, 2, gzCount)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, log.ParseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, log.ParseLevel("WARN"))
	assert.Equal(t, zapcore.InfoLevel, log.ParseLevel("not-a-level"))
}
