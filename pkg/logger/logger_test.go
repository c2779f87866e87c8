package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerRunFileName(t *testing.T) {
	at := time.Date(2026, 10, 19, 16, 0, 5, 0, time.UTC)

	assert.Equal(t, filepath.Join("logs", "lagbot_2026-10-19_16-00.log"), perRunFileName("logs/lagbot.log", at))
	assert.Equal(t, "track_2026-10-19_16-00.log", perRunFileName("track.log", at))
}

func TestNew_WritesToFile(t *testing.T) {
	dir := t.TempDir()
	l, path, err := New(Config{Level: "debug", OutputFile: filepath.Join(dir, "sub", "bot.log")})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "sub", "bot.log"), path)

	l.WithField("component", "test").Info("hello")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(b), "hello"), "日志文件应包含写入内容")
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	l, _, err := New(Config{Level: "not-a-level"})
	require.NoError(t, err)
	assert.Equal(t, "info", l.GetLevel().String())
}
