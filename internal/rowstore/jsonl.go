package rowstore

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// WriteJSONL writes one JSON record per line and returns the start offset
// of every record. The offset cache is written beside the file.
func WriteJSONL(path string, rows []Row) ([]int64, error) {
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("create row store: %w", err)
	}

	w := bufio.NewWriter(file)
	offsets := make([]int64, 0, len(rows))
	var pos int64

	for i, row := range rows {
		line, err := encodeLine(row)
		if err != nil {
			file.Close()
			os.Remove(tmp)
			return nil, fmt.Errorf("encode row %d: %w", i, err)
		}
		offsets = append(offsets, pos)
		n, err := w.Write(line)
		if err != nil {
			file.Close()
			os.Remove(tmp)
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
		pos += int64(n)
	}

	if err := w.Flush(); err != nil {
		file.Close()
		os.Remove(tmp)
		return nil, fmt.Errorf("flush row store: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("close row store: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("rename row store: %w", err)
	}

	if err := WriteOffsets(path, offsets); err != nil {
		return nil, err
	}
	return offsets, nil
}

// encodeLine renders a row as compact JSON followed by a newline, with
// HTML characters left unescaped.
func encodeLine(row Row) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	var v any = row.Scalar
	if row.IsObject() {
		v = row.Fields
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// JSONL is a RowStore over a JSON-lines file. Only the offset table is
// held in memory. Row opens the file per call; Rows shares one handle
// across a batch of ids.
type JSONL struct {
	path    string
	offsets []int64
}

var (
	_ RowStore   = (*JSONL)(nil)
	_ RowBatcher = (*JSONL)(nil)
)

// OpenJSONL loads (or rebuilds) the offset table for path.
func OpenJSONL(path string) (*JSONL, error) {
	offsets, err := BuildOffsets(path)
	if err != nil {
		return nil, err
	}
	return &JSONL{path: path, offsets: offsets}, nil
}

// Path returns the row-store file.
func (s *JSONL) Path() string {
	return s.path
}

// Offsets returns the offset table.
func (s *JSONL) Offsets() []int64 {
	return s.offsets
}

// Len implements RowStore.
func (s *JSONL) Len() int {
	return len(s.offsets)
}

// Row implements RowStore.
func (s *JSONL) Row(i int) (Row, bool) {
	return GetRow(s.path, s.offsets, i)
}

// Rows implements RowBatcher.
func (s *JSONL) Rows(ids []int) ([]Row, []bool) {
	rows, found := make([]Row, len(ids)), make([]bool, len(ids))
	if len(ids) == 0 {
		return rows, found
	}

	rd, err := OpenReader(s.path, s.offsets)
	if err != nil {
		slog.Debug("row_read_failed", slog.Int("rows", len(ids)), slog.String("error", err.Error()))
		return rows, found
	}
	defer rd.Close()

	for i, id := range ids {
		rows[i], found[i] = rd.Row(id)
	}
	return rows, found
}
