package logs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"search-analytics-node/config"
)

func TestLevelFromString(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug":    zapcore.DebugLevel,
		" WARN ":   zapcore.WarnLevel,
		"warning":  zapcore.WarnLevel,
		"error":    zapcore.ErrorLevel,
		"":         zapcore.InfoLevel,
		"whatever": zapcore.InfoLevel,
	}
	for raw, want := range cases {
		require.Equal(t, want, levelFromString(raw), "raw=%q", raw)
	}
}

func TestNewLogger_WritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.log")

	l, err := NewLogger(&config.Config{Log: config.LogConfig{Level: "info", File: path, MaxSizeMB: 1}})
	require.NoError(t, err)

	l.Sugar().Infow("query_page_fetched", "rows", 3)
	_ = l.Sync()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), `"msg":"query_page_fetched"`)
}
