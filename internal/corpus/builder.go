package corpus

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/docrag/internal/chunk"
	"github.com/Aman-CERP/docrag/internal/config"
	"github.com/Aman-CERP/docrag/internal/embed"
	derrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/rowstore"
	"github.com/Aman-CERP/docrag/internal/store"
)

// Spec describes one corpus to build.
type Spec struct {
	Name     string
	Kind     string // markdown, articles, templates
	Source   string // file to read
	Path     string // value of the "path" field in markdown rows
	IDPrefix string
	Tags     []string

	// MaxTokens bounds article line chunks.
	MaxTokens int
}

// SpecFromConfig resolves a configured corpus against the project root.
func SpecFromConfig(cfg *config.Config, cc config.CorpusConfig) Spec {
	return Spec{
		Name:      cc.Name,
		Kind:      cc.Kind,
		Source:    cfg.ResolvePath(cc.Source),
		Path:      cc.Source,
		IDPrefix:  cc.IDPrefix,
		Tags:      cc.Tags,
		MaxTokens: cc.MaxTokens,
	}
}

// Stage names reported to Progress.
const (
	StageChunking  = "chunking"
	StageEmbedding = "embedding"
	StageWriting   = "writing"
)

// BuilderOptions configures a Builder.
type BuilderOptions struct {
	// DataDir holds one directory per corpus.
	DataDir string

	Chunking chunk.Options
	Batch    embed.BatchOptions

	// IndexKind is "flat" or "hnsw".
	IndexKind string
	HNSWM     int
	HNSWEf    int

	// Backend is recorded in the manifest; "sqlite" also writes rows.db.
	Backend string

	// Progress reports (stage, done, total). Optional.
	Progress func(stage string, done, total int)
}

// BuilderOptionsFromConfig maps configuration onto BuilderOptions.
func BuilderOptionsFromConfig(cfg *config.Config) (BuilderOptions, error) {
	est, err := chunk.NewEstimator(cfg.Chunking.Estimator, cfg.Chunking.CharsPerUnit)
	if err != nil {
		return BuilderOptions{}, derrors.ConfigError("invalid chunking estimator", err)
	}
	return BuilderOptions{
		DataDir: cfg.ResolvePath(cfg.DataDir),
		Chunking: chunk.Options{
			TargetLength:   cfg.Chunking.TargetLength,
			OverlapChars:   cfg.Chunking.OverlapChars,
			CharsPerUnit:   cfg.Chunking.CharsPerUnit,
			MinWindowChars: cfg.Chunking.MinWindowChars,
			OutlierFactor:  cfg.Chunking.OutlierFactor,
			Estimator:      est,
		},
		Batch: embed.BatchOptions{
			BatchSize:   cfg.Embeddings.BatchSize,
			Concurrency: cfg.Embeddings.Concurrency,
		},
		IndexKind: cfg.Retrieval.Index,
		HNSWM:     cfg.Retrieval.HNSWM,
		HNSWEf:    cfg.Retrieval.HNSWEfSearch,
		Backend:   cfg.Retrieval.Backend,
	}, nil
}

// Builder turns source documents into corpora.
type Builder struct {
	opts     BuilderOptions
	embedder embed.Embedder
	chunker  *chunk.Chunker
}

// NewBuilder creates a builder that embeds with e.
func NewBuilder(e embed.Embedder, opts BuilderOptions) *Builder {
	if opts.Backend == "" {
		opts.Backend = BackendJSONL
	}
	if opts.IndexKind == "" {
		opts.IndexKind = store.KindFlat
	}
	return &Builder{
		opts:     opts,
		embedder: e,
		chunker:  chunk.NewWithOptions(opts.Chunking),
	}
}

// Dir returns the directory of the named corpus.
func (b *Builder) Dir(name string) string {
	return filepath.Join(b.opts.DataDir, name)
}

// Rows reads the source of spec and produces its rows.
func (b *Builder) Rows(spec Spec) ([]rowstore.Row, error) {
	data, err := os.ReadFile(spec.Source)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, derrors.New(derrors.ErrCodeFileNotFound,
				fmt.Sprintf("source %s not found", spec.Source), err)
		}
		return nil, derrors.IOError("failed to read source", err)
	}

	switch spec.Kind {
	case "", config.KindMarkdown:
		prefix := spec.IDPrefix
		if prefix == "" {
			prefix = spec.Name
		}
		return MarkdownRows(string(data), b.chunker, prefix, spec.Path, spec.Tags), nil
	case config.KindArticles:
		rows, err := ArticleRows(data, spec.MaxTokens, b.chunker.Options().Estimator)
		if err != nil {
			return nil, derrors.New(derrors.ErrCodeInvalidInput, "invalid articles file", err)
		}
		return rows, nil
	case config.KindTemplates:
		rows, err := TemplateRows(data)
		if err != nil {
			return nil, derrors.New(derrors.ErrCodeInvalidInput, "invalid templates file", err)
		}
		return rows, nil
	default:
		return nil, derrors.ValidationError(fmt.Sprintf("unknown corpus kind %q", spec.Kind), nil)
	}
}

// Build chunks, embeds and writes one corpus. Nothing is written until
// every row has a vector; the finished corpus replaces the previous one
// in a single rename.
func (b *Builder) Build(ctx context.Context, spec Spec) (*Manifest, error) {
	start := time.Now()

	lock := NewBuildLock(b.opts.DataDir, spec.Name)
	if err := lock.Lock(ctx); err != nil {
		return nil, err
	}
	defer func() { _ = lock.Unlock() }()

	b.progress(StageChunking, 0, 1)
	rows, err := b.Rows(spec)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, derrors.New(derrors.ErrCodeChunkingFailed,
			fmt.Sprintf("no chunks produced from %s", spec.Source), nil).
			WithSuggestion("Markdown sources need ## or ### headings")
	}
	b.progress(StageChunking, 1, 1)

	batch := b.opts.Batch
	batch.Progress = func(done, total int) { b.progress(StageEmbedding, done, total) }
	vectors, err := embed.BatchEmbed(ctx, b.embedder, rowTexts(rows), batch)
	if err != nil {
		return nil, err
	}
	dims := len(vectors[0])

	manifest := &Manifest{
		BuildID:    uuid.NewString(),
		Name:       spec.Name,
		Kind:       spec.Kind,
		Source:     spec.Path,
		Model:      b.embedder.ModelName(),
		Dimensions: dims,
		Rows:       len(rows),
		Index:      b.opts.IndexKind,
		Backend:    b.opts.Backend,
		CreatedAt:  time.Now().UTC(),
	}
	if manifest.Kind == "" {
		manifest.Kind = config.KindMarkdown
	}

	b.progress(StageWriting, 0, 1)
	staging := filepath.Join(b.opts.DataDir, "."+spec.Name+".staging-"+manifest.BuildID)
	if err := b.writeArtifacts(staging, rows, vectors, manifest); err != nil {
		_ = os.RemoveAll(staging)
		return nil, derrors.New(derrors.ErrCodeBuildFailed, "failed to write corpus", err)
	}
	if err := swapDir(staging, b.Dir(spec.Name)); err != nil {
		_ = os.RemoveAll(staging)
		return nil, derrors.New(derrors.ErrCodeBuildFailed, "failed to publish corpus", err)
	}
	b.progress(StageWriting, 1, 1)

	slog.Info("corpus_built",
		slog.String("corpus", spec.Name),
		slog.String("build_id", manifest.BuildID),
		slog.Int("rows", manifest.Rows),
		slog.Int("dimensions", dims),
		slog.String("model", manifest.Model),
		slog.Duration("duration", time.Since(start)))

	return manifest, nil
}

func (b *Builder) writeArtifacts(dir string, rows []rowstore.Row, vectors [][]float32, m *Manifest) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}

	if _, err := rowstore.WriteJSONL(filepath.Join(dir, RowsFile), rows); err != nil {
		return err
	}
	if err := rowstore.WriteArray(filepath.Join(dir, ArrayFile), rows); err != nil {
		return err
	}
	if m.Backend == BackendSQLite {
		if err := rowstore.WriteSQLite(filepath.Join(dir, SQLiteFile), rows); err != nil {
			return err
		}
	}

	idx, err := store.New(store.Config{
		Kind:       m.Index,
		Dimensions: m.Dimensions,
		M:          b.opts.HNSWM,
		EfSearch:   b.opts.HNSWEf,
	})
	if err != nil {
		return err
	}
	if err := idx.Add(vectors); err != nil {
		return fmt.Errorf("add vectors: %w", err)
	}
	if err := idx.Save(filepath.Join(dir, store.FileName(m.Index))); err != nil {
		return fmt.Errorf("save index: %w", err)
	}

	return writeManifest(dir, m)
}

// swapDir moves staging to dst, replacing any existing directory.
func swapDir(staging, dst string) error {
	old := ""
	if _, err := os.Stat(dst); err == nil {
		old = dst + ".old-" + uuid.NewString()
		if err := os.Rename(dst, old); err != nil {
			return fmt.Errorf("move previous corpus aside: %w", err)
		}
	}
	if err := os.Rename(staging, dst); err != nil {
		if old != "" {
			_ = os.Rename(old, dst)
		}
		return fmt.Errorf("rename staging dir: %w", err)
	}
	if old != "" {
		if err := os.RemoveAll(old); err != nil {
			slog.Warn("corpus_cleanup_failed", slog.String("path", old), slog.String("error", err.Error()))
		}
	}
	return nil
}

func (b *Builder) progress(stage string, done, total int) {
	if b.opts.Progress != nil {
		b.opts.Progress(stage, done, total)
	}
}
