// Package config loads docrag configuration from defaults, the user config
// file, the project .docrag.yaml, a .env file and DOCRAG_* environment
// variables, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Corpus kinds.
const (
	KindMarkdown  = "markdown"
	KindArticles  = "articles"
	KindTemplates = "templates"
)

// Row-store backends.
const (
	BackendJSONL  = "jsonl"
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// ProjectConfigName is the project configuration file.
const ProjectConfigName = ".docrag.yaml"

// DefaultDataDir is where corpus artifacts are written, relative to the project root.
const DefaultDataDir = ".docrag"

// Config represents the complete docrag configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	DataDir    string           `yaml:"data_dir" json:"data_dir"`
	Corpora    []CorpusConfig   `yaml:"corpora" json:"corpora"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`
	Answer     AnswerConfig     `yaml:"answer" json:"answer"`
	Watch      WatchConfig      `yaml:"watch" json:"watch"`
	Server     ServerConfig     `yaml:"server" json:"server"`

	// Root is the project directory the config was loaded for.
	Root string `yaml:"-" json:"-"`
}

// CorpusConfig describes one retrievable corpus.
type CorpusConfig struct {
	Name        string   `yaml:"name" json:"name"`
	Kind        string   `yaml:"kind" json:"kind"`     // markdown, articles, templates
	Source      string   `yaml:"source" json:"source"` // file path, relative to the project root
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	IDPrefix    string   `yaml:"id_prefix,omitempty" json:"id_prefix,omitempty"`   // markdown row ids: <prefix>-<n>
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`             // base tags for markdown rows
	TitleField  string   `yaml:"title_field,omitempty" json:"title_field,omitempty"` // row field used as result title
	MaxTokens   int      `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`   // articles line-chunk budget
}

// ChunkingConfig configures the markdown chunker.
type ChunkingConfig struct {
	TargetLength   int    `yaml:"target_length" json:"target_length"`
	OverlapChars   int    `yaml:"overlap_chars" json:"overlap_chars"`
	CharsPerUnit   int    `yaml:"chars_per_unit" json:"chars_per_unit"`
	MinWindowChars int    `yaml:"min_window_chars" json:"min_window_chars"`
	OutlierFactor  int    `yaml:"outlier_factor" json:"outlier_factor"`
	Estimator      string `yaml:"estimator" json:"estimator"` // chars, words
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider      string `yaml:"provider" json:"provider"` // openai, ollama, static
	Model         string `yaml:"model" json:"model"`
	Dimensions    int    `yaml:"dimensions" json:"dimensions"` // 0 = model default
	BatchSize     int    `yaml:"batch_size" json:"batch_size"`
	Concurrency   int    `yaml:"concurrency" json:"concurrency"`
	MaxRetries    int    `yaml:"max_retries" json:"max_retries"`
	CacheSize     int    `yaml:"cache_size" json:"cache_size"`
	OllamaHost    string `yaml:"ollama_host" json:"ollama_host"`         // Ollama API endpoint (default: http://localhost:11434)
	OpenAIBaseURL string `yaml:"openai_base_url" json:"openai_base_url"` // empty uses api.openai.com

	// APIKey is read from the environment only and never written out.
	APIKey string `yaml:"-" json:"-"`
}

// RetrievalConfig configures how corpora are stored and queried.
type RetrievalConfig struct {
	Backend      string `yaml:"backend" json:"backend"` // jsonl, memory, sqlite
	Index        string `yaml:"index" json:"index"`     // flat, hnsw
	TopK         int    `yaml:"top_k" json:"top_k"`
	Strict       bool   `yaml:"strict" json:"strict"` // index/store divergence is an error
	HNSWM        int    `yaml:"hnsw_m" json:"hnsw_m"`
	HNSWEfSearch int    `yaml:"hnsw_ef_search" json:"hnsw_ef_search"`
}

// AnswerConfig configures `docrag ask`.
type AnswerConfig struct {
	Model        string  `yaml:"model" json:"model"`
	Temperature  float64 `yaml:"temperature" json:"temperature"`
	SystemPrompt string  `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"` // empty uses the built-in prompt
}

// WatchConfig configures `docrag watch`.
type WatchConfig struct {
	Debounce string `yaml:"debounce" json:"debounce"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		DataDir: DefaultDataDir,
		Corpora: []CorpusConfig{},
		Chunking: ChunkingConfig{
			TargetLength:   700,
			OverlapChars:   180,
			CharsPerUnit:   4,
			MinWindowChars: 400,
			OutlierFactor:  8,
			Estimator:      "chars",
		},
		Embeddings: EmbeddingsConfig{
			Provider:    "openai",
			Model:       "text-embedding-3-small",
			Dimensions:  0,
			BatchSize:   100,
			Concurrency: 2,
			MaxRetries:  3,
			CacheSize:   1000,
		},
		Retrieval: RetrievalConfig{
			Backend:      BackendJSONL,
			Index:        "flat",
			TopK:         5,
			Strict:       false,
			HNSWM:        16,
			HNSWEfSearch: 20,
		},
		Answer: AnswerConfig{
			Model:       "gpt-4o",
			Temperature: 0.3,
		},
		Watch: WatchConfig{
			Debounce: "500ms",
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/docrag/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/docrag/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "docrag", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "docrag", "config.yaml")
	}
	return filepath.Join(home, ".config", "docrag", "config.yaml")
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist (that's OK).
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	cfg, err := parseYAML(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// Load loads configuration for the project in dir.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/docrag/config.yaml)
//  3. Project config (.docrag.yaml in dir)
//  4. .env in dir (never overrides variables already set)
//  5. Environment variables (DOCRAG_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, err
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	envPath := filepath.Join(dir, ".env")
	if fileExists(envPath) {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}
	cfg.applyEnvOverrides()

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve project dir: %w", err)
	}
	cfg.Root = abs
	cfg.applyCorpusDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFromFile loads .docrag.yaml or .docrag.yml from dir, if present.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{ProjectConfigName, ".docrag.yml"} {
		path := filepath.Join(dir, name)
		if !fileExists(path) {
			continue
		}
		parsed, err := parseYAML(path)
		if err != nil {
			return err
		}
		c.mergeWith(parsed)
		return nil
	}
	return nil
}

func parseYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &parsed, nil
}

// mergeWith merges non-zero values from other into c. A non-empty corpus
// list replaces the current one.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.DataDir != "" {
		c.DataDir = other.DataDir
	}
	if len(other.Corpora) > 0 {
		c.Corpora = other.Corpora
	}

	// Chunking
	mergeInt(&c.Chunking.TargetLength, other.Chunking.TargetLength)
	mergeInt(&c.Chunking.OverlapChars, other.Chunking.OverlapChars)
	mergeInt(&c.Chunking.CharsPerUnit, other.Chunking.CharsPerUnit)
	mergeInt(&c.Chunking.MinWindowChars, other.Chunking.MinWindowChars)
	mergeInt(&c.Chunking.OutlierFactor, other.Chunking.OutlierFactor)
	mergeString(&c.Chunking.Estimator, other.Chunking.Estimator)

	// Embeddings
	mergeString(&c.Embeddings.Provider, other.Embeddings.Provider)
	mergeString(&c.Embeddings.Model, other.Embeddings.Model)
	mergeInt(&c.Embeddings.Dimensions, other.Embeddings.Dimensions)
	mergeInt(&c.Embeddings.BatchSize, other.Embeddings.BatchSize)
	mergeInt(&c.Embeddings.Concurrency, other.Embeddings.Concurrency)
	mergeInt(&c.Embeddings.MaxRetries, other.Embeddings.MaxRetries)
	mergeInt(&c.Embeddings.CacheSize, other.Embeddings.CacheSize)
	mergeString(&c.Embeddings.OllamaHost, other.Embeddings.OllamaHost)
	mergeString(&c.Embeddings.OpenAIBaseURL, other.Embeddings.OpenAIBaseURL)

	// Retrieval
	mergeString(&c.Retrieval.Backend, other.Retrieval.Backend)
	mergeString(&c.Retrieval.Index, other.Retrieval.Index)
	mergeInt(&c.Retrieval.TopK, other.Retrieval.TopK)
	if other.Retrieval.Strict {
		c.Retrieval.Strict = true
	}
	mergeInt(&c.Retrieval.HNSWM, other.Retrieval.HNSWM)
	mergeInt(&c.Retrieval.HNSWEfSearch, other.Retrieval.HNSWEfSearch)

	mergeString(&c.Answer.Model, other.Answer.Model)
	if other.Answer.Temperature != 0 {
		c.Answer.Temperature = other.Answer.Temperature
	}
	mergeString(&c.Answer.SystemPrompt, other.Answer.SystemPrompt)

	mergeString(&c.Watch.Debounce, other.Watch.Debounce)
	mergeString(&c.Server.Transport, other.Server.Transport)
	mergeString(&c.Server.LogLevel, other.Server.LogLevel)
}

func mergeInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// applyEnvOverrides applies DOCRAG_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DOCRAG_DATA_DIR"); v != "" {
		c.DataDir = v
	}

	if v := os.Getenv("DOCRAG_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	// DOCRAG_EMBEDDER is an alias for DOCRAG_EMBEDDINGS_PROVIDER
	if v := os.Getenv("DOCRAG_EMBEDDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("DOCRAG_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("DOCRAG_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := firstEnv("DOCRAG_OPENAI_BASE_URL", "OPENAI_BASE_URL"); v != "" {
		c.Embeddings.OpenAIBaseURL = v
	}
	c.Embeddings.APIKey = firstEnv("DOCRAG_OPENAI_API_KEY", "OPENAI_API_KEY")

	if v := os.Getenv("DOCRAG_CHUNK_TARGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Chunking.TargetLength = n
		}
	}
	if v := os.Getenv("DOCRAG_CHUNK_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Chunking.OverlapChars = n
		}
	}

	if v := os.Getenv("DOCRAG_RETRIEVAL_BACKEND"); v != "" {
		c.Retrieval.Backend = v
	}
	if v := os.Getenv("DOCRAG_RETRIEVAL_INDEX"); v != "" {
		c.Retrieval.Index = v
	}
	if v := os.Getenv("DOCRAG_TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Retrieval.TopK = k
		}
	}
	if v := os.Getenv("DOCRAG_STRICT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Retrieval.Strict = b
		}
	}

	if v := os.Getenv("DOCRAG_ANSWER_MODEL"); v != "" {
		c.Answer.Model = v
	}
	if v := os.Getenv("DOCRAG_ANSWER_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Answer.Temperature = f
		}
	}

	if v := os.Getenv("DOCRAG_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("DOCRAG_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// applyCorpusDefaults fills per-corpus defaults that depend on the kind.
func (c *Config) applyCorpusDefaults() {
	for i := range c.Corpora {
		cc := &c.Corpora[i]
		cc.Kind = strings.ToLower(strings.TrimSpace(cc.Kind))
		if cc.Kind == "" {
			cc.Kind = KindMarkdown
		}
		if cc.IDPrefix == "" {
			cc.IDPrefix = cc.Name
		}
		if cc.TitleField == "" {
			cc.TitleField = "title"
			if cc.Kind == KindMarkdown {
				cc.TitleField = "section"
			}
		}
	}
}

var corpusNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for _, cc := range c.Corpora {
		if !corpusNamePattern.MatchString(cc.Name) {
			return fmt.Errorf("corpus name %q must match %s", cc.Name, corpusNamePattern)
		}
		if seen[cc.Name] {
			return fmt.Errorf("duplicate corpus name %q", cc.Name)
		}
		seen[cc.Name] = true

		switch cc.Kind {
		case KindMarkdown, KindArticles, KindTemplates:
		default:
			return fmt.Errorf("corpus %s: kind must be 'markdown', 'articles', or 'templates', got %s", cc.Name, cc.Kind)
		}
		if strings.TrimSpace(cc.Source) == "" {
			return fmt.Errorf("corpus %s: source is required", cc.Name)
		}
		if cc.MaxTokens < 0 {
			return fmt.Errorf("corpus %s: max_tokens must be non-negative, got %d", cc.Name, cc.MaxTokens)
		}
	}

	ch := c.Chunking
	if ch.TargetLength <= 0 {
		return fmt.Errorf("chunking.target_length must be positive, got %d", ch.TargetLength)
	}
	if ch.OverlapChars < 0 {
		return fmt.Errorf("chunking.overlap_chars must be non-negative, got %d", ch.OverlapChars)
	}
	if ch.CharsPerUnit <= 0 {
		return fmt.Errorf("chunking.chars_per_unit must be positive, got %d", ch.CharsPerUnit)
	}
	if window := max(ch.MinWindowChars, ch.TargetLength*ch.CharsPerUnit); ch.OverlapChars >= window {
		return fmt.Errorf("chunking.overlap_chars (%d) must be smaller than the window (%d)", ch.OverlapChars, window)
	}
	if e := strings.ToLower(ch.Estimator); e != "" && e != "chars" && e != "words" {
		return fmt.Errorf("chunking.estimator must be 'chars' or 'words', got %s", ch.Estimator)
	}

	validProviders := map[string]bool{"openai": true, "ollama": true, "static": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'openai', 'ollama', or 'static', got %s", c.Embeddings.Provider)
	}
	if c.Embeddings.BatchSize <= 0 || c.Embeddings.BatchSize > 2048 {
		return fmt.Errorf("embeddings.batch_size must be between 1 and 2048, got %d", c.Embeddings.BatchSize)
	}
	if c.Embeddings.Concurrency <= 0 {
		return fmt.Errorf("embeddings.concurrency must be positive, got %d", c.Embeddings.Concurrency)
	}
	if c.Embeddings.Dimensions < 0 {
		return fmt.Errorf("embeddings.dimensions must be non-negative, got %d", c.Embeddings.Dimensions)
	}

	switch c.Retrieval.Backend {
	case BackendJSONL, BackendMemory, BackendSQLite:
	default:
		return fmt.Errorf("retrieval.backend must be 'jsonl', 'memory', or 'sqlite', got %s", c.Retrieval.Backend)
	}
	if c.Retrieval.Index != "flat" && c.Retrieval.Index != "hnsw" {
		return fmt.Errorf("retrieval.index must be 'flat' or 'hnsw', got %s", c.Retrieval.Index)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}

	if c.Answer.Temperature < 0 || c.Answer.Temperature > 2 {
		return fmt.Errorf("answer.temperature must be between 0 and 2, got %g", c.Answer.Temperature)
	}

	if _, err := time.ParseDuration(c.Watch.Debounce); err != nil {
		return fmt.Errorf("watch.debounce: %w", err)
	}

	if strings.ToLower(c.Server.Transport) != "stdio" {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// Corpus returns the named corpus configuration.
func (c *Config) Corpus(name string) (CorpusConfig, bool) {
	for _, cc := range c.Corpora {
		if cc.Name == name {
			return cc, true
		}
	}
	return CorpusConfig{}, false
}

// ResolvePath makes p absolute relative to the project root.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// CorpusDir returns the artifact directory for a corpus.
func (c *Config) CorpusDir(name string) string {
	return filepath.Join(c.ResolvePath(c.DataDir), name)
}

// DebounceDuration parses Watch.Debounce; invalid values fall back to 500ms.
func (c *Config) DebounceDuration() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d < 0 {
		return 500 * time.Millisecond
	}
	return d
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
