package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("PROSEARCH_SEARCH_SEARXNG_URL", "http://searx.local")
	l := NewLoader(filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.False(t, l.FileUsed())
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "https://agent.api.lyzr.app", cfg.LLM.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.True(t, cfg.ProMode.Enabled)
	assert.True(t, cfg.ProMode.BufferPlanEvents)
	assert.Equal(t, "http://searx.local", cfg.Search.SearxngURL)
	assert.Equal(t, "prosearch", cfg.Tracing.ServiceName)
}

func TestLoadRequiresSearxngURL(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := l.Load()
	require.Error(t, err)
	assert.True(t, llm.IsConfigurationError(err))
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "prosearch.yaml", `
server:
  port: 9100
search:
  searxng_url: http://from-file
llm:
  agents:
    planning: plan-file
pro_mode:
  enabled: false
`)
	t.Setenv("PROSEARCH_SERVER_PORT", "9200")
	t.Setenv("LYZR_ANSWER_GENERATION_AGENT_ID", "answer-env")

	l := NewLoader(p)
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.True(t, l.FileUsed())
	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, "http://from-file", cfg.Search.SearxngURL)
	assert.False(t, cfg.ProMode.Enabled)

	ids := cfg.AgentMap()
	assert.Equal(t, "plan-file", ids[llm.KindPlanning])
	assert.Equal(t, "answer-env", ids[llm.KindAnswer])
}

func TestAgentsFileFillsMissingIDs(t *testing.T) {
	dir := t.TempDir()
	agents := writeFile(t, dir, "agents.yaml", `
agents:
  - kind: planning
    agent_id: plan-defs
  - kind: related
    agent_id: related-defs
`)
	p := writeFile(t, dir, "prosearch.yaml", `
search:
  searxng_url: http://searx
llm:
  agents_file: `+agents+`
  agents:
    planning: plan-direct
`)

	cfg, err := NewLoader(p).Load()
	require.NoError(t, err)
	assert.Equal(t, "plan-direct", cfg.LLM.Agents.Planning)
	assert.Equal(t, "related-defs", cfg.LLM.Agents.Related)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	p := writeFile(t, t.TempDir(), "prosearch.yaml", "server: [unterminated")
	_, err := NewLoader(p).Load()
	assert.Error(t, err)
}

func TestWatcherReloadNotifiesHandlers(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "prosearch.yaml", "search:\n  searxng_url: http://a\npro_mode:\n  enabled: true\n")
	l := NewLoader(p)
	cfg, err := l.Load()
	require.NoError(t, err)

	w, err := NewWatcher(l, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer w.Stop()

	var got []bool
	w.OnChange(func(prev, next *Config) error {
		got = append(got, prev.ProMode.Enabled, next.ProMode.Enabled)
		return nil
	})

	writeFile(t, dir, "prosearch.yaml", "search:\n  searxng_url: http://a\npro_mode:\n  enabled: false\n")
	require.NoError(t, w.Reload())
	assert.Equal(t, []bool{true, false}, got)
	assert.False(t, w.Current().ProMode.Enabled)

	// invalid file keeps the previous config
	writeFile(t, dir, "prosearch.yaml", "search:\n  searxng_url: \"\"\n")
	require.Error(t, w.Reload())
	assert.Equal(t, "http://a", w.Current().Search.SearxngURL)
}

func TestWatcherPicksUpFileWrites(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "prosearch.yaml", "search:\n  searxng_url: http://a\nlogging:\n  level: info\n")
	l := NewLoader(p)
	cfg, err := l.Load()
	require.NoError(t, err)

	w, err := NewWatcher(l, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	changed := make(chan string, 4)
	w.OnChange(func(_, next *Config) error {
		changed <- next.Logging.Level
		return nil
	})
	require.NoError(t, w.Start(t.Context()))
	defer w.Stop()

	writeFile(t, dir, "prosearch.yaml", "search:\n  searxng_url: http://a\nlogging:\n  level: debug\n")

	select {
	case lvl := <-changed:
		assert.Equal(t, "debug", lvl)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}
}

func TestWatcherStopAfterFailedStart(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "missing-dir", "prosearch.yaml"))
	cfg := &Config{}
	w, err := NewWatcher(l, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.Error(t, w.Start(t.Context()))

	stopped := make(chan error, 1)
	go func() { stopped <- w.Stop() }()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked after a failed Start")
	}
}
