package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestConfig writes a config keeping all state below a temp dir
func writeTestConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`
state_dir: %q
politeness_interval: 10ms
log:
  level: error
%s`, filepath.Join(dir, "state"), extra)
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0644))
	return cfgPath
}

// execute runs the root command with args and returns its stdout
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLoadConfig_EmptyPathUsesDefaults(t *testing.T) {
	cfg, warnings, err := loadConfig("")

	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 5, cfg.MaxRedirects)
	assert.NotEmpty(t, cfg.StateDir)
}

func TestLoadConfig_ValidFile(t *testing.T) {
	cfgPath := writeTestConfig(t, "batch_concurrency: 7\n")

	cfg, _, err := loadConfig(cfgPath)

	require.NoError(t, err)
	assert.Equal(t, 7, cfg.BatchConcurrency)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, _, err := loadConfig("/nonexistent/path/config.yaml")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0644))

	_, _, err := loadConfig(cfgPath)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config YAML")
}

func TestFetch_FileURLWritesBody(t *testing.T) {
	cfgPath := writeTestConfig(t, "")
	src := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello loader"), 0644))
	outDir := filepath.Join(t.TempDir(), "out")

	out, err := execute(t, "--config", cfgPath, "fetch", "--out", outDir, "file://"+src)

	require.NoError(t, err)
	assert.Contains(t, out, "OK\t200\t12\ttext/plain")

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	body, err := os.ReadFile(filepath.Join(outDir, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, "hello loader", string(body))
}

func TestFetch_FailureIsJournaled(t *testing.T) {
	cfgPath := writeTestConfig(t, "")
	missing := "file://" + filepath.Join(t.TempDir(), "missing.txt")

	out, err := execute(t, "--config", cfgPath, "fetch", missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 loads failed")
	assert.Contains(t, out, "REJECT")

	out, err = execute(t, "--config", cfgPath, "journal")
	require.NoError(t, err)
	assert.Contains(t, out, "missing.txt")
	assert.Contains(t, out, "1 of 1 journaled failures shown")
}

func TestFetch_HTTPWithLoopbackAllowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("from the network"))
	}))
	defer srv.Close()

	cfgPath := writeTestConfig(t, "allow_loopback_fetch: true\n")

	out, err := execute(t, "--config", cfgPath, "fetch", "--strategy", "nocache", srv.URL+"/page")

	require.NoError(t, err)
	assert.Contains(t, out, "OK\t200\t16\ttext/plain\tnet")
}

func TestFetch_LoopbackRejectedByDefault(t *testing.T) {
	cfgPath := writeTestConfig(t, "")

	out, err := execute(t, "--config", cfgPath, "fetch", "http://127.0.0.1:1/")

	require.Error(t, err)
	assert.Contains(t, out, "Policy_Loopback")
}

func TestFetch_ArgumentErrors(t *testing.T) {
	cfgPath := writeTestConfig(t, "")

	_, err := execute(t, "--config", cfgPath, "fetch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no URLs given")

	_, err = execute(t, "--config", cfgPath, "fetch", "--strategy", "sometimes", "http://example.com/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown cache strategy")
}

func TestIndex_MarkAndCheck(t *testing.T) {
	cfgPath := writeTestConfig(t, "")

	out, err := execute(t, "--config", cfgPath, "index", "check", "http://example.com/doc")
	require.NoError(t, err)
	assert.Contains(t, out, "not indexed")

	_, err = execute(t, "--config", cfgPath, "index", "mark", "http://example.com/doc", "segment-3")
	require.NoError(t, err)

	out, err = execute(t, "--config", cfgPath, "index", "check", "http://example.com/doc")
	require.NoError(t, err)
	assert.Contains(t, out, "segment-3")
}

func TestCache_StatsOnEmptyStore(t *testing.T) {
	cfgPath := writeTestConfig(t, "")

	out, err := execute(t, "--config", cfgPath, "cache", "stats", "--json")

	require.NoError(t, err)
	assert.Contains(t, out, `"entries": 0`)
}

func TestProfiles_ListsBuiltins(t *testing.T) {
	cfgPath := writeTestConfig(t, "")

	out, err := execute(t, "--config", cfgPath, "profiles")

	require.NoError(t, err)
	for _, handle := range []string{"proxy", "remote", "snippet_local", "snippet_global", "surrogates"} {
		assert.Contains(t, out, handle)
	}
}

func TestReadURLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	content := "http://a.example/\n\n# comment\n  ftp://b.example/pub  \n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	urls, err := readURLFile(path)

	require.NoError(t, err)
	assert.Equal(t, []string{"http://a.example/", "ftp://b.example/pub"}, urls)
}
