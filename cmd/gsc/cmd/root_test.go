package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"search-analytics-node/config"
	"search-analytics-node/db"
	"search-analytics-node/internal/credential"
	"search-analytics-node/internal/store"
)

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	code := exitCode(root.ExecuteContext(context.Background()), root)
	return code, stdout.String(), stderr.String()
}

func TestUsageErrorsExitTwo(t *testing.T) {
	cases := [][]string{
		{"properties", "--format", "xml"},
		{"properties", "--no-such-flag"},
		{"inspect", "--site", "sc-domain:example.com"},
		{"inspect", "--site", "s", "--module", "speed", "https://example.com/"},
		{"auth", "--expiration", "forever"},
		{"runs", "show"},
	}

	for _, args := range cases {
		code, _, stderr := run(t, args...)
		require.Equal(t, 2, code, "args=%v stderr=%s", args, stderr)
	}
}

func TestParseModules(t *testing.T) {
	t.Parallel()

	m, err := parseModules([]string{"IS", "rich_results"})
	require.NoError(t, err)
	require.True(t, m.IndexStatus)
	require.True(t, m.RichResults)
	require.False(t, m.AMP)
}

func TestReadLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(path, []byte("https://example.com/a\n\n# skipped\n  https://example.com/b  \n"), 0o600))

	lines, err := readLines(path)
	require.NoError(t, err)
	require.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, lines)
}

func TestProperties_EndToEnd(t *testing.T) {
	vendor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/webmasters/v3/sites", r.URL.Path)
		require.Equal(t, "Bearer at", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"siteEntry":[{"siteUrl":"sc-domain:example.com","permissionLevel":"siteOwner"}]}`))
	}))
	defer vendor.Close()

	dsn := filepath.Join(t.TempDir(), "workflows.db")
	t.Setenv("DB_DSN", dsn)
	t.Setenv("REDIS_HOST", "")
	t.Setenv("GOOGLE_API_BASE_URL", vendor.URL)

	x, err := db.Open(config.DBConfig{DSN: dsn})
	require.NoError(t, err)
	_, err = db.Migrate(context.Background(), x, "up", zap.NewNop().Sugar())
	require.NoError(t, err)
	st := store.NewStore(store.NewStoreParams{DB: x, Logger: zap.NewNop().Sugar()})
	require.NoError(t, st.SaveCredential(context.Background(), "wf", &credential.Credential{
		AccessToken: "at",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	}))
	require.NoError(t, x.Close())

	code, stdout, stderr := run(t, "properties", "--workflow", "wf", "--format", "jsonl")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, `"sc-domain:example.com"`)
	require.Contains(t, stderr, "run ")

	code, _, stderr = run(t, "query", "--workflow", "nobody", "--site", "sc-domain:example.com")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "Authenticator")
}
