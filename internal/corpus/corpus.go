// Package corpus builds retrieval corpora from source documents and opens
// them for querying.
//
// A built corpus is a directory holding the row store in its supported
// forms, the vector index and a manifest:
//
//	<data_dir>/<name>/
//	  rows.jsonl            one JSON record per line
//	  rows.jsonl.offsets.json
//	  metadata.json         the same records as a JSON array
//	  rows.db               SQLite form (sqlite backend only)
//	  vectors.flat|.hnsw    one vector per row, same order
//	  manifest.json
//
// Row i of every store form corresponds to vector id i of the index.
package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	derrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/rowstore"
	"github.com/Aman-CERP/docrag/internal/store"
)

// Artifact names inside a corpus directory.
const (
	RowsFile     = "rows.jsonl"
	ArrayFile    = "metadata.json"
	SQLiteFile   = "rows.db"
	ManifestFile = "manifest.json"
)

// Row-store backends.
const (
	BackendJSONL  = "jsonl"
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Manifest records how a corpus was built.
type Manifest struct {
	BuildID    string    `json:"build_id"`
	Name       string    `json:"name"`
	Kind       string    `json:"kind"`
	Source     string    `json:"source"`
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
	Rows       int       `json:"rows"`
	Index      string    `json:"index"`
	Backend    string    `json:"backend"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReadManifest loads manifest.json from a corpus directory.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, derrors.New(derrors.ErrCodeIndexNotFound,
				fmt.Sprintf("no corpus at %s", dir), err).
				WithSuggestion("Run 'docrag build' to create it")
		}
		return nil, derrors.IOError("failed to read manifest", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, derrors.New(derrors.ErrCodeFileCorrupt, "manifest is not valid JSON", err).
			WithSuggestion("Rebuild the corpus with 'docrag build'")
	}
	return &m, nil
}

func writeManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, ManifestFile), data, 0644)
}

// Corpus is an opened corpus: its index and row store.
type Corpus struct {
	Dir      string
	Manifest *Manifest
	Index    store.Index
	Store    rowstore.RowStore
}

// Open loads the corpus in dir. An empty backend uses the one recorded in
// the manifest.
func Open(dir, backend string) (*Corpus, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	if backend == "" {
		backend = m.Backend
	}

	indexPath := filepath.Join(dir, store.FileName(m.Index))
	idx, err := store.Load(m.Index, indexPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, derrors.New(derrors.ErrCodeIndexNotFound, "vector index missing", err).
				WithDetail("path", indexPath)
		}
		return nil, derrors.New(derrors.ErrCodeCorruptIndex, "failed to load vector index", err).
			WithDetail("path", indexPath)
	}

	rows, err := openStore(dir, backend)
	if err != nil {
		return nil, err
	}

	return &Corpus{Dir: dir, Manifest: m, Index: idx, Store: rows}, nil
}

func openStore(dir, backend string) (rowstore.RowStore, error) {
	var (
		rs   rowstore.RowStore
		err  error
		path string
	)
	switch backend {
	case "", BackendJSONL:
		path = filepath.Join(dir, RowsFile)
		rs, err = rowstore.OpenJSONL(path)
	case BackendMemory:
		path = filepath.Join(dir, ArrayFile)
		rs, err = rowstore.LoadMemory(path)
	case BackendSQLite:
		path = filepath.Join(dir, SQLiteFile)
		if _, statErr := os.Stat(path); statErr != nil {
			return nil, derrors.New(derrors.ErrCodeFileNotFound, "corpus was built without a SQLite row store", statErr).
				WithSuggestion("Rebuild with retrieval.backend: sqlite")
		}
		rs, err = rowstore.OpenSQLite(path)
	default:
		return nil, derrors.ValidationError(fmt.Sprintf("unknown row-store backend %q", backend), nil)
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, derrors.New(derrors.ErrCodeFileNotFound, "row store missing", err).
				WithDetail("path", path)
		}
		return nil, derrors.New(derrors.ErrCodeFileCorrupt, "failed to open row store", err).
			WithDetail("path", path)
	}
	return rs, nil
}

// Close releases the row store.
func (c *Corpus) Close() error {
	if closer, ok := c.Store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
