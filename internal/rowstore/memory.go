package rowstore

import (
	"encoding/json"
	"fmt"
	"os"
)

// Memory is a RowStore backed by a slice, the in-memory array form of a corpus.
type Memory struct {
	rows []Row
}

var _ RowStore = (*Memory)(nil)

// NewMemory creates a store over rows. The slice is not copied.
func NewMemory(rows []Row) *Memory {
	return &Memory{rows: rows}
}

// LoadMemory reads a JSON array file (metadata.json) into memory.
func LoadMemory(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read row array: %w", err)
	}
	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode row array %s: %w", path, err)
	}
	return &Memory{rows: rows}, nil
}

// Len implements RowStore.
func (m *Memory) Len() int {
	return len(m.rows)
}

// Row implements RowStore.
func (m *Memory) Row(i int) (Row, bool) {
	if i < 0 || i >= len(m.rows) {
		return Row{}, false
	}
	return m.rows[i], true
}

// WriteArray writes rows as one JSON array, the metadata.json layout.
func WriteArray(path string, rows []Row) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode row array: %w", err)
	}
	return writeFileAtomic(path, data)
}

// writeFileAtomic writes data to a temp file and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
