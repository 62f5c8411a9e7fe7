package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"DOCRAG_DATA_DIR", "DOCRAG_EMBEDDINGS_PROVIDER", "DOCRAG_EMBEDDER",
	"DOCRAG_EMBEDDINGS_MODEL", "DOCRAG_OLLAMA_HOST", "DOCRAG_OPENAI_BASE_URL",
	"OPENAI_BASE_URL", "DOCRAG_OPENAI_API_KEY", "OPENAI_API_KEY",
	"DOCRAG_CHUNK_TARGET", "DOCRAG_CHUNK_OVERLAP", "DOCRAG_RETRIEVAL_BACKEND",
	"DOCRAG_RETRIEVAL_INDEX", "DOCRAG_TOP_K", "DOCRAG_STRICT",
	"DOCRAG_LOG_LEVEL", "DOCRAG_TRANSPORT", "DOCRAG_ANSWER_MODEL",
	"DOCRAG_ANSWER_TEMPERATURE",
}

// isolateEnv points the user config at an empty dir and unsets every
// variable Load reads. t.Setenv restores the original values afterwards.
func isolateEnv(t *testing.T) string {
	t.Helper()
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	for _, k := range envKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	return xdg
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// =============================================================================
// AC01: Default Configuration Tests
// =============================================================================

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	cfg := NewConfig()

	// Then: all defaults should be applied
	require.NotNil(t, cfg)
	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, ".docrag", cfg.DataDir)
	assert.Empty(t, cfg.Corpora)

	assert.Equal(t, 700, cfg.Chunking.TargetLength)
	assert.Equal(t, 180, cfg.Chunking.OverlapChars)
	assert.Equal(t, 4, cfg.Chunking.CharsPerUnit)
	assert.Equal(t, "chars", cfg.Chunking.Estimator)

	assert.Equal(t, "openai", cfg.Embeddings.Provider)
	assert.Equal(t, "text-embedding-3-small", cfg.Embeddings.Model)
	assert.Equal(t, 100, cfg.Embeddings.BatchSize)

	assert.Equal(t, BackendJSONL, cfg.Retrieval.Backend)
	assert.Equal(t, "flat", cfg.Retrieval.Index)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.False(t, cfg.Retrieval.Strict)

	assert.Equal(t, "gpt-4o", cfg.Answer.Model)
	assert.Equal(t, 0.3, cfg.Answer.Temperature)

	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoConfigFile_ReturnsDefaults(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()

	// When: loading from a directory without config
	cfg, err := Load(dir)

	// Then: defaults are used and the root is resolved
	require.NoError(t, err)
	assert.Equal(t, 700, cfg.Chunking.TargetLength)
	assert.Equal(t, dir, cfg.Root)
	assert.Equal(t, filepath.Join(dir, ".docrag", "docs"), cfg.CorpusDir("docs"))
}

// =============================================================================
// AC02: Layering Tests
// =============================================================================

func TestLoad_ProjectConfigOverridesDefaults(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectConfigName), `
corpora:
  - name: guide
    source: docs/guide.md
    tags: [guide]
  - name: blog
    kind: articles
    source: data/articles.json
chunking:
  target_length: 300
retrieval:
  backend: sqlite
  index: hnsw
  top_k: 3
  strict: true
`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	require.Len(t, cfg.Corpora, 2)
	guide, ok := cfg.Corpus("guide")
	require.True(t, ok)
	assert.Equal(t, KindMarkdown, guide.Kind)
	assert.Equal(t, "guide", guide.IDPrefix)
	assert.Equal(t, "section", guide.TitleField)
	assert.Equal(t, []string{"guide"}, guide.Tags)

	blog, ok := cfg.Corpus("blog")
	require.True(t, ok)
	assert.Equal(t, "title", blog.TitleField)
	assert.Equal(t, filepath.Join(dir, "data/articles.json"), cfg.ResolvePath(blog.Source))

	assert.Equal(t, 300, cfg.Chunking.TargetLength)
	assert.Equal(t, 180, cfg.Chunking.OverlapChars, "unset values keep defaults")
	assert.Equal(t, BackendSQLite, cfg.Retrieval.Backend)
	assert.Equal(t, "hnsw", cfg.Retrieval.Index)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.True(t, cfg.Retrieval.Strict)
}

func TestLoad_YmlExtension(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".docrag.yml"), "retrieval:\n  top_k: 9\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Retrieval.TopK)
}

func TestLoad_UserConfigBelowProjectConfig(t *testing.T) {
	xdg := isolateEnv(t)
	dir := t.TempDir()

	// Given: a user config and a project config that disagree
	writeFile(t, filepath.Join(xdg, "docrag", "config.yaml"), `
embeddings:
  provider: ollama
  ollama_host: http://gpu-box:11434
retrieval:
  top_k: 8
`)
	writeFile(t, filepath.Join(dir, ProjectConfigName), "retrieval:\n  top_k: 2\n")

	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: project wins where set, user config fills the rest
	assert.Equal(t, 2, cfg.Retrieval.TopK)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, "http://gpu-box:11434", cfg.Embeddings.OllamaHost)
}

func TestLoad_EnvOverridesFiles(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectConfigName), "retrieval:\n  top_k: 2\n  strict: true\n")

	t.Setenv("DOCRAG_TOP_K", "11")
	t.Setenv("DOCRAG_STRICT", "false")
	t.Setenv("DOCRAG_EMBEDDER", "static")
	t.Setenv("DOCRAG_RETRIEVAL_BACKEND", "memory")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 11, cfg.Retrieval.TopK)
	assert.False(t, cfg.Retrieval.Strict)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, BackendMemory, cfg.Retrieval.Backend)
	assert.Equal(t, "sk-test", cfg.Embeddings.APIKey)
}

func TestLoad_InvalidEnvNumbersIgnored(t *testing.T) {
	isolateEnv(t)
	t.Setenv("DOCRAG_TOP_K", "many")
	t.Setenv("DOCRAG_CHUNK_TARGET", "-4")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 700, cfg.Chunking.TargetLength)
}

func TestLoad_DotEnvFile(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".env"), "DOCRAG_OPENAI_API_KEY=sk-from-dotenv\nDOCRAG_TOP_K=4\n")

	// Given: DOCRAG_TOP_K is also set in the real environment
	t.Setenv("DOCRAG_TOP_K", "6")

	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: .env fills unset variables only
	assert.Equal(t, "sk-from-dotenv", cfg.Embeddings.APIKey)
	assert.Equal(t, 6, cfg.Retrieval.TopK)
}

func TestLoad_MalformedYAML(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectConfigName), "corpora: [unterminated\n")

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

// =============================================================================
// AC03: Validation Tests
// =============================================================================

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"bad corpus name", func(c *Config) {
			c.Corpora = []CorpusConfig{{Name: "Bad Name", Kind: KindMarkdown, Source: "a.md"}}
		}, "corpus name"},
		{"duplicate corpus", func(c *Config) {
			c.Corpora = []CorpusConfig{
				{Name: "a", Kind: KindMarkdown, Source: "a.md"},
				{Name: "a", Kind: KindMarkdown, Source: "b.md"},
			}
		}, "duplicate"},
		{"unknown kind", func(c *Config) {
			c.Corpora = []CorpusConfig{{Name: "a", Kind: "pdf", Source: "a.pdf"}}
		}, "kind"},
		{"missing source", func(c *Config) {
			c.Corpora = []CorpusConfig{{Name: "a", Kind: KindMarkdown}}
		}, "source is required"},
		{"zero target", func(c *Config) { c.Chunking.TargetLength = 0 }, "target_length"},
		{"overlap too large", func(c *Config) { c.Chunking.OverlapChars = 5000 }, "overlap_chars"},
		{"bad estimator", func(c *Config) { c.Chunking.Estimator = "tiktoken" }, "estimator"},
		{"bad provider", func(c *Config) { c.Embeddings.Provider = "mlx" }, "provider"},
		{"batch too large", func(c *Config) { c.Embeddings.BatchSize = 4096 }, "batch_size"},
		{"bad backend", func(c *Config) { c.Retrieval.Backend = "redis" }, "backend"},
		{"bad index", func(c *Config) { c.Retrieval.Index = "ivf" }, "index"},
		{"zero top_k", func(c *Config) { c.Retrieval.TopK = 0 }, "top_k"},
		{"hot temperature", func(c *Config) { c.Answer.Temperature = 3 }, "temperature"},
		{"bad debounce", func(c *Config) { c.Watch.Debounce = "soon" }, "debounce"},
		{"bad transport", func(c *Config) { c.Server.Transport = "sse" }, "transport"},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "trace" }, "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_InvalidConfigWrapped(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectConfigName), "retrieval:\n  index: annoy\n")

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

// =============================================================================
// AC04: Helpers
// =============================================================================

func TestDebounceDuration(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, 500*time.Millisecond, cfg.DebounceDuration())

	cfg.Watch.Debounce = "2s"
	assert.Equal(t, 2*time.Second, cfg.DebounceDuration())

	cfg.Watch.Debounce = "garbage"
	assert.Equal(t, 500*time.Millisecond, cfg.DebounceDuration())
}

func TestResolvePath_AbsoluteUnchanged(t *testing.T) {
	cfg := NewConfig()
	cfg.Root = "/project"
	abs := filepath.Join(string(filepath.Separator), "data", "x.md")
	assert.Equal(t, abs, cfg.ResolvePath(abs))
	assert.Equal(t, filepath.Join("/project", "x.md"), cfg.ResolvePath("x.md"))
	assert.Equal(t, "", cfg.ResolvePath(""))
}

func TestWriteYAML_RoundTripsWithoutAPIKey(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()

	cfg := NewConfig()
	cfg.Corpora = []CorpusConfig{{Name: "docs", Kind: KindMarkdown, Source: "README.md"}}
	cfg.Embeddings.APIKey = "sk-secret"
	path := filepath.Join(dir, ProjectConfigName)
	require.NoError(t, cfg.WriteYAML(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-secret")

	loaded, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, loaded.Corpora, 1)
	assert.Equal(t, "README.md", loaded.Corpora[0].Source)
}

func TestGetUserConfigPath_RespectsXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, filepath.Join("/xdg", "docrag", "config.yaml"), GetUserConfigPath())
}
