package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wp-bulkpost/internal/config"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestConfigInitWritesDefaultsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wppost.yaml")

	out, _, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConcurrency, cfg.Publish.Concurrency)

	_, _, err = execute(t, "config", "init", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, _, err = execute(t, "config", "init", "--force", path)
	require.NoError(t, err)
}

func TestConfigShowHidesCredentials(t *testing.T) {
	t.Setenv("WP_USER", "editor")
	t.Setenv("WP_PSW", "s3cret")
	out, _, err := execute(t, "--config", filepath.Join(t.TempDir(), "none.yaml"), "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "batch_size: 50")
	assert.Contains(t, out, "# user: set, password: set")
	assert.NotContains(t, out, "s3cret")
}

func TestPublishDryRunPreviewsWithoutRemote(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "brushes")
	csv := "category;name;description;asset;link\n" +
		"2;Brush Pack;<p>Great brushes</p>;/tmp/a.png;https://market.example/item/1/\n"
	require.NoError(t, os.WriteFile(name+".csv", []byte(csv), 0o600))

	out, errOut, err := execute(t, "--config", filepath.Join(dir, "none.yaml"), "publish", name, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "<!-- 1/1 category=2 asset=/tmp/a.png -->")
	assert.Contains(t, out, "# Brush Pack")
	assert.Contains(t, out, "Great brushes")
	assert.Contains(t, errOut, "previewed 1 items")

	_, statErr := os.Stat(name + "_posted.csv")
	assert.True(t, os.IsNotExist(statErr), "dry run must not write the output file")
}

func TestPublishRequiresCredentials(t *testing.T) {
	t.Setenv("WP_BASE_URL", "https://shop.example.com")
	t.Setenv("WP_USER", "")
	t.Setenv("WP_PSW", "")
	dir := t.TempDir()
	_, _, err := execute(t, "--config", filepath.Join(dir, "none.yaml"), "publish", filepath.Join(dir, "x"), "--no-tui")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials")

	// configuration errors stop before the run, so no output file exists
	_, statErr := os.Stat(filepath.Join(dir, "x_posted.csv"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestPublishWritesOutputWhenLedgerIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		switch r.URL.Path {
		case "/wp-json/wp/v2/media":
			_, _ = w.Write([]byte(`{"id":42}`))
		case "/wp-json/wp/v2/posts":
			_, _ = w.Write([]byte(`{"id":7,"guid":{"rendered":"https://shop.example/?p=7"}}`))
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	asset := filepath.Join(dir, "a.png")
	require.NoError(t, os.WriteFile(asset, []byte("PNG"), 0o600))
	name := filepath.Join(dir, "brushes")
	csv := "category;name;description;asset;link\n" +
		"2;Brush Pack;<p>Great brushes</p>;" + asset + ";https://market.example/item/1/\n"
	require.NoError(t, os.WriteFile(name+".csv", []byte(csv), 0o600))

	t.Setenv("WP_BASE_URL", srv.URL)
	t.Setenv("WP_USER", "editor")
	t.Setenv("WP_PSW", "pw")
	t.Setenv("WPPOST_LEDGER_DSN", "postgres://x:y@127.0.0.1:1/db?connect_timeout=2")

	_, errOut, err := execute(t, "--config", filepath.Join(dir, "none.yaml"), "publish", name, "--no-tui")
	require.NoError(t, err)
	assert.Contains(t, errOut, "ledger disabled")

	out, readErr := os.ReadFile(name + "_posted.csv")
	require.NoError(t, readErr)
	assert.Contains(t, string(out), "https://shop.example/?p=7")
}

func TestPublishRejectsBadFlags(t *testing.T) {
	dir := t.TempDir()
	_, _, err := execute(t, "--config", filepath.Join(dir, "none.yaml"), "publish", "x", "--concurrency", "0", "--dry-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "concurrency")
}

func TestTagsResolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if r.URL.Query().Get("search") == "brushes" {
				_, _ = w.Write([]byte(`[{"id":3,"name":"Brushes"}]`))
				return
			}
			_, _ = w.Write([]byte(`[]`))
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":9,"name":"lettering"}`))
		}
	}))
	defer srv.Close()

	t.Setenv("WP_BASE_URL", srv.URL)
	t.Setenv("WP_USER", "editor")
	t.Setenv("WP_PSW", "pw")
	out, _, err := execute(t, "--config", filepath.Join(t.TempDir(), "none.yaml"), "tags", "resolve", "Brushes, lettering")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, []string{"brushes\t3", "lettering\t9"}, lines)
}
