package rowstore

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// OffsetsSuffix is appended to a row-store path to name its offset cache.
const OffsetsSuffix = ".offsets.json"

// OffsetsPath returns the cache path for a row store.
func OffsetsPath(storePath string) string {
	return storePath + OffsetsSuffix
}

// BuildOffsets returns the start byte of every record in storePath. A
// cached table is used when it is consistent with the file; otherwise the
// file is scanned once and the cache rewritten.
func BuildOffsets(storePath string) ([]int64, error) {
	offsets, _, err := LoadOffsets(storePath)
	return offsets, err
}

// LoadOffsets is BuildOffsets that also reports whether a scan was needed.
func LoadOffsets(storePath string) (offsets []int64, scanned bool, err error) {
	info, err := os.Stat(storePath)
	if err != nil {
		return nil, false, fmt.Errorf("stat row store: %w", err)
	}

	cachePath := OffsetsPath(storePath)
	if cached, ok := readOffsetCache(cachePath); ok {
		reason := checkOffsets(storePath, info.Size(), cached)
		if reason == "" {
			return cached, false, nil
		}
		slog.Info("offset_cache_stale",
			slog.String("store", storePath),
			slog.String("reason", reason))
	}

	offsets, err = scanOffsets(storePath)
	if err != nil {
		return nil, true, err
	}

	if err := WriteOffsets(storePath, offsets); err != nil {
		slog.Warn("offset_cache_write_failed",
			slog.String("store", storePath),
			slog.String("error", err.Error()))
	} else {
		slog.Debug("offset_cache_rebuilt",
			slog.String("store", storePath),
			slog.Int("records", len(offsets)))
	}
	return offsets, true, nil
}

// WriteOffsets persists the offset table beside storePath.
func WriteOffsets(storePath string, offsets []int64) error {
	if offsets == nil {
		offsets = []int64{}
	}
	data, err := json.Marshal(offsets)
	if err != nil {
		return fmt.Errorf("encode offsets: %w", err)
	}
	return writeFileAtomic(OffsetsPath(storePath), data)
}

func readOffsetCache(path string) ([]int64, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var offsets []int64
	if err := json.Unmarshal(data, &offsets); err != nil {
		slog.Warn("offset_cache_corrupt",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return nil, false
	}
	if offsets == nil {
		offsets = []int64{}
	}
	return offsets, true
}

// lineStartSamples bounds how many offsets checkOffsets reads back from
// the store. Small tables are checked in full.
const lineStartSamples = 64

// checkOffsets returns "" when offsets describe the file, or a reason otherwise.
func checkOffsets(storePath string, size int64, offsets []int64) string {
	if len(offsets) == 0 {
		if size != 0 {
			return "empty table for non-empty file"
		}
		return ""
	}
	if offsets[0] != 0 {
		return "first offset not zero"
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] <= offsets[i-1] {
			return "offsets not increasing"
		}
	}
	last := offsets[len(offsets)-1]
	if last >= size {
		return "offset beyond end of file"
	}

	file, err := os.Open(storePath)
	if err != nil {
		return "unreadable store"
	}
	defer file.Close()

	one := make([]byte, 1)
	for _, off := range sampleOffsets(offsets[1:], lineStartSamples) {
		if _, err := file.ReadAt(one, off-1); err != nil || one[0] != '\n' {
			return "offset not at line start"
		}
	}

	if _, err := file.Seek(last, io.SeekStart); err != nil {
		return "seek failed"
	}
	r := bufio.NewReader(file)
	if _, err := r.ReadBytes('\n'); err != nil && !errors.Is(err, io.EOF) {
		return "read failed"
	}
	if rest, _ := r.ReadBytes('\n'); len(rest) > 0 {
		return "records after last offset"
	}
	return ""
}

// sampleOffsets picks at most n evenly spaced entries, always including the last.
func sampleOffsets(offsets []int64, n int) []int64 {
	if len(offsets) <= n {
		return offsets
	}
	out := make([]int64, 0, n)
	step := float64(len(offsets)-1) / float64(n-1)
	for i := 0; i < n; i++ {
		out = append(out, offsets[int(float64(i)*step)])
	}
	out[n-1] = offsets[len(offsets)-1]
	return out
}

// scanOffsets records the position before every line. A trailing empty
// read is not a record.
func scanOffsets(storePath string) ([]int64, error) {
	file, err := os.Open(storePath)
	if err != nil {
		return nil, fmt.Errorf("open row store: %w", err)
	}
	defer file.Close()

	r := bufio.NewReader(file)
	offsets := []int64{}
	var pos int64
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			offsets = append(offsets, pos)
			pos += int64(len(line))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("scan row store: %w", err)
		}
	}
	return offsets, nil
}

// Reader resolves rows from one open handle on a JSON-lines store. It is
// not safe for concurrent use.
type Reader struct {
	file    *os.File
	br      *bufio.Reader
	offsets []int64
}

// OpenReader opens storePath for repeated row reads.
func OpenReader(storePath string, offsets []int64) (*Reader, error) {
	file, err := os.Open(storePath)
	if err != nil {
		return nil, fmt.Errorf("open row store: %w", err)
	}
	return &Reader{file: file, br: bufio.NewReader(file), offsets: offsets}, nil
}

// Row reads record i. Out-of-range ids, I/O failures and undecodable
// lines all yield false.
func (rd *Reader) Row(i int) (Row, bool) {
	if i < 0 || i >= len(rd.offsets) {
		return Row{}, false
	}
	if _, err := rd.file.Seek(rd.offsets[i], io.SeekStart); err != nil {
		return Row{}, false
	}
	rd.br.Reset(rd.file)
	line, err := rd.br.ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return Row{}, false
	}
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Row{}, false
	}

	row, err := ParseRow(line)
	if err != nil {
		slog.Debug("row_decode_failed", slog.Int("row", i), slog.String("error", err.Error()))
		return Row{}, false
	}
	return row, true
}

// Close releases the handle.
func (rd *Reader) Close() error {
	return rd.file.Close()
}

// GetRow reads record i over a handle of its own. Out-of-range ids, I/O
// failures and undecodable lines all yield false.
func GetRow(storePath string, offsets []int64, i int) (Row, bool) {
	if i < 0 || i >= len(offsets) {
		return Row{}, false
	}

	rd, err := OpenReader(storePath, offsets)
	if err != nil {
		slog.Debug("row_read_failed", slog.Int("row", i), slog.String("error", err.Error()))
		return Row{}, false
	}
	defer rd.Close()
	return rd.Row(i)
}
