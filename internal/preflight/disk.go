package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/Aman-CERP/docrag/internal/config"
)

// MinDiskSpaceBytes is the floor on free space under the data directory,
// however small the sources are.
const MinDiskSpaceBytes = 50 * 1024 * 1024

// buildFootprintFactor approximates built artifacts per source byte:
// the row store repeats heading prefixes and overlap tails, and the
// index and its temp copy sit beside it during a rebuild.
const buildFootprintFactor = 3

// RequiredDiskSpace estimates the bytes a full build of every corpus needs.
// Missing sources count as zero; CheckSource reports them.
func RequiredDiskSpace(cfg *config.Config) uint64 {
	var sources uint64
	for _, cc := range cfg.Corpora {
		if info, err := os.Stat(cfg.ResolvePath(cc.Source)); err == nil && !info.IsDir() {
			sources += uint64(info.Size())
		}
	}
	return max(MinDiskSpaceBytes, sources*buildFootprintFactor)
}

// CheckDiskSpace checks that the filesystem holding dataDir can take a
// build needing required bytes. dataDir need not exist yet.
func (c *Checker) CheckDiskSpace(dataDir string, required uint64) CheckResult {
	result := CheckResult{
		Name:     "disk_space",
		Required: true,
		Details:  dataDir,
	}

	available, err := freeBytes(existingAncestor(dataDir))
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot stat data dir filesystem: %v", err)
		return result
	}

	result.Message = fmt.Sprintf("%s free, build needs about %s", formatBytes(available), formatBytes(required))
	if available < required {
		result.Status = StatusFail
		return result
	}
	result.Status = StatusPass
	return result
}

func freeBytes(path string) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

// existingAncestor walks up from path to the first directory that exists.
func existingAncestor(path string) string {
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}

func formatBytes(n uint64) string {
	return humanize.IBytes(n)
}
