package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests mutate the global logger and must not run in parallel.

func TestSetup_JSONToFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "nested", "loglens.log")
	cleanup := Setup(Config{Level: "debug", Format: "json", File: p})
	t.Cleanup(func() { Setup(Config{}) })

	assert.Equal(t, log.DebugLevel, log.GetLevel())
	log.WithField("run", "abc").Info("hello")
	cleanup()

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.NotEmpty(t, lines)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "abc", entry["run"])
	assert.Contains(t, entry["file"], "logging_test.go:")
}

func TestSetup_InvalidLevelDefaultsToInfo(t *testing.T) {
	Setup(Config{Level: "loud"})
	t.Cleanup(func() { Setup(Config{}) })

	assert.Equal(t, log.InfoLevel, log.GetLevel())
	assert.False(t, log.StandardLogger().ReportCaller)
}

func TestNewFormatter(t *testing.T) {
	_, isJSON := newFormatter("JSON").(*log.JSONFormatter)
	assert.True(t, isJSON)
	_, isText := newFormatter("").(*log.TextFormatter)
	assert.True(t, isText)
}
