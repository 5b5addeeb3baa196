package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useTempLogDir points file-backed loggers at a temp dir with a fresh run id.
func useTempLogDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	prevDir, prevErr, prevRun := logDir, initErr, runID

	logDir, initErr = dir, nil
	initOnce = sync.Once{}
	initOnce.Do(func() {})
	runID = ""
	runIDOnce = sync.Once{}

	t.Cleanup(func() {
		logDir, initErr, runID = prevDir, prevErr, prevRun
		initOnce = sync.Once{}
		runIDOnce = sync.Once{}
	})
	return dir
}

var entryPattern = regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{3}\] \[(\S+)\] \[(\w+)\] (.*)$`)

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		level string
		log   func(l *Logger)
		msg   string
	}{
		{"DEBUG", func(l *Logger) { l.Debugf("probe %s", "ok") }, "probe ok"},
		{"INFO", func(l *Logger) { l.Infof("stored page %d", 1) }, "stored page 1"},
		{"INFO", func(l *Logger) { l.Printf("plain") }, "plain"},
		{"WARN", func(l *Logger) { l.Warnf("close failed") }, "close failed"},
		{"ERROR", func(l *Logger) { l.Errorf("boom: %v", "x") }, "boom: x"},
	}

	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.msg, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(New("session", &buf))

			m := entryPattern.FindStringSubmatch(strings.TrimSpace(buf.String()))
			require.NotNil(t, m, "unexpected entry %q", buf.String())
			assert.Equal(t, "session", m[1])
			assert.Equal(t, tt.level, m[2])
			assert.Equal(t, tt.msg, m[3])
		})
	}
}

func TestNewLoggerWritesRunFile(t *testing.T) {
	dir := useTempLogDir(t)

	logger, err := NewLogger("registry")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, logger.RunID()+"-pagekeeper.log"), logger.LogPath())
	assert.Equal(t, "registry", logger.Component())

	logger.Infof("created session %s", "s1")
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close(), "second close")

	content, err := os.ReadFile(logger.LogPath())
	require.NoError(t, err)
	assert.Contains(t, string(content), "[registry] [INFO] created session s1")
}

func TestLoggersShareRunFile(t *testing.T) {
	useTempLogDir(t)

	a, err := NewLogger("session")
	require.NoError(t, err)
	b, err := NewLogger("navigation")
	require.NoError(t, err)
	assert.Equal(t, a.LogPath(), b.LogPath())

	a.Infof("from a")
	b.Warnf("from b")
	require.NoError(t, a.Close())
	require.NoError(t, b.Close())

	content, err := os.ReadFile(a.LogPath())
	require.NoError(t, err)
	assert.Contains(t, string(content), "[session] [INFO] from a")
	assert.Contains(t, string(content), "[navigation] [WARN] from b")
}

func TestWithSharesSink(t *testing.T) {
	var buf bytes.Buffer
	parent := New("pagekeeper", &buf)
	child := parent.With("actions")

	child.Infof("click succeeded")
	assert.Equal(t, parent.RunID(), child.RunID())
	assert.Equal(t, "actions", child.Component())
	assert.Contains(t, buf.String(), "[actions] [INFO] click succeeded")
}

func TestNilAndDiscardLoggersAreSafe(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() { l.Infof("dropped") })
	assert.Nil(t, l.With("x"))

	d := Discard("quiet")
	assert.NotPanics(t, func() { d.Errorf("dropped") })
	assert.NoError(t, d.Close())
}

func TestGetLogDirectory(t *testing.T) {
	dir := useTempLogDir(t)

	got, err := GetLogDirectory()
	require.NoError(t, err)
	assert.Equal(t, dir, got)
	assert.NotEmpty(t, GetRunID())
}
