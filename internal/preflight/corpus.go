package preflight

import (
	"fmt"
	"os"

	"github.com/Aman-CERP/docrag/internal/config"
	"github.com/Aman-CERP/docrag/internal/corpus"
	derrors "github.com/Aman-CERP/docrag/internal/errors"
)

// CheckSource checks that a corpus source file exists and is readable.
func (c *Checker) CheckSource(cfg *config.Config, cc config.CorpusConfig) CheckResult {
	path := cfg.ResolvePath(cc.Source)
	result := CheckResult{
		Name:     "source:" + cc.Name,
		Required: true,
		Details:  path,
	}

	info, err := os.Stat(path)
	switch {
	case err != nil:
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s: %v", cc.Source, err)
	case info.IsDir():
		result.Status = StatusFail
		result.Message = cc.Source + " is a directory"
	case info.Size() == 0:
		result.Status = StatusWarn
		result.Message = cc.Source + " is empty"
	default:
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%s (%s)", cc.Source, formatBytes(uint64(info.Size())))
	}
	return result
}

// CheckCorpus checks that a corpus has been built, that the build is not
// older than its source and, with an embedder, that query vectors will
// match the index.
func (c *Checker) CheckCorpus(cfg *config.Config, cc config.CorpusConfig) CheckResult {
	dir := cfg.CorpusDir(cc.Name)
	result := CheckResult{
		Name:    "corpus:" + cc.Name,
		Details: relOrAbs(cfg.Root, dir),
	}

	m, err := corpus.ReadManifest(dir)
	if err != nil {
		result.Status = StatusWarn
		result.Message = "not built"
		if derrors.GetCode(err) != derrors.ErrCodeIndexNotFound {
			result.Status = StatusFail
			result.Required = true
			result.Message = err.Error()
		}
		return result
	}

	result.Message = fmt.Sprintf("%d rows, %s (%d dims), %s index", m.Rows, m.Model, m.Dimensions, m.Index)

	if c.embedder != nil && c.embedder.Dimensions() > 0 && c.embedder.Dimensions() != m.Dimensions {
		result.Status = StatusFail
		result.Required = true
		result.Message = fmt.Sprintf("built with %d dims, embedder %s produces %d; rebuild required",
			m.Dimensions, c.embedder.ModelName(), c.embedder.Dimensions())
		return result
	}
	if c.embedder != nil && c.embedder.ModelName() != m.Model {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("built with %s, configured %s", m.Model, c.embedder.ModelName())
		return result
	}

	if info, err := os.Stat(cfg.ResolvePath(cc.Source)); err == nil && info.ModTime().After(m.CreatedAt) {
		result.Status = StatusWarn
		result.Message = "source changed since last build"
		return result
	}

	result.Status = StatusPass
	return result
}
