package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_StatusIcons(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
		want  string
	}{
		{"status", func(w *Writer) { w.Status("🔍", "Checking corpus") }, "🔍 Checking corpus\n"},
		{"no icon", func(w *Writer) { w.Status("", "indented") }, "   indented\n"},
		{"success", func(w *Writer) { w.Successf("Built %s", "guide") }, "✅ Built guide\n"},
		{"warning", func(w *Writer) { w.Warningf("%d rows skipped", 2) }, "⚠️  2 rows skipped\n"},
		{"error", func(w *Writer) { w.Errorf("failed: %s", "guide") }, "❌ failed: guide\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.write(New(buf))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWriter_KeyValue_Aligns(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).KeyValue([][2]string{{"rows", "42"}, {"dimensions", "64"}})

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "  rows:        42", lines[0])
	assert.Equal(t, "  dimensions:  64", lines[1])
}

func TestWriter_Hit(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Hit(1, 0.125, "Config Files", "## Config Files\n\nEdit   the file.")

	assert.Equal(t, "1. Config Files  [0.1250]\n   ## Config Files Edit the file.\n", buf.String())
}

func TestWriter_Hit_Untitled(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Hit(2, 1, "", "x")
	assert.Contains(t, buf.String(), "2. (untitled)")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b c", Preview("a\n b\t c", 10))
	assert.Equal(t, "abcdefg...", Preview("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", Preview("abcdef", 2))
	assert.Equal(t, "héllo", Preview("héllo", 0))
}

func TestWriter_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, New(buf).JSON(map[string]int{"rows": 2}))
	assert.Equal(t, "{\n  \"rows\": 2\n}\n", buf.String())
}

func TestWriter_CodeAndText(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)
	w.Text("answer\n")
	w.Code("a\nb")
	w.Newline()

	assert.Equal(t, "answer\n\n  a\n  b\n\n\n", buf.String())
}
