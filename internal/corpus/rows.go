package corpus

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Aman-CERP/docrag/internal/chunk"
	"github.com/Aman-CERP/docrag/internal/rowstore"
)

var (
	slugStrip = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSpace = regexp.MustCompile(`\s+`)
	slugDash  = regexp.MustCompile(`-+`)
	tagSplit  = regexp.MustCompile(`[\s/]+`)
)

// Slug turns a heading into a URL anchor. Leading and trailing dashes
// are kept.
func Slug(heading string) string {
	s := strings.ToLower(heading)
	s = slugStrip.ReplaceAllString(s, "")
	s = slugSpace.ReplaceAllString(s, "-")
	return slugDash.ReplaceAllString(s, "-")
}

// HeadingTags returns base followed by the lowercased words of heading.
func HeadingTags(base []string, heading string) []string {
	tags := make([]string, 0, len(base)+4)
	tags = append(tags, base...)
	for _, w := range tagSplit.Split(strings.ToLower(heading), -1) {
		if w != "" {
			tags = append(tags, w)
		}
	}
	return tags
}

// MarkdownRows chunks a markdown document into rows. Ids run from
// <prefix>-0 across the whole document.
func MarkdownRows(doc string, c *chunk.Chunker, prefix, path string, baseTags []string) []rowstore.Row {
	var rows []rowstore.Row
	for _, sec := range chunk.SplitSections(doc) {
		anchor := Slug(sec.Heading)
		tags := HeadingTags(baseTags, sec.Heading)
		for part, text := range c.ChunkSection(sec.Heading, sec.Level, sec.Content) {
			rows = append(rows, rowstore.ObjectRow(map[string]any{
				"id":         fmt.Sprintf("%s-%d", prefix, len(rows)),
				"section":    sec.Heading,
				"anchor":     anchor,
				"level":      sec.Level,
				"path":       path,
				"tags":       tags,
				"part_index": part,
				"text":       text,
			}))
		}
	}
	return rows
}

// Article is one entry of an articles corpus.
type Article struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// ArticleRows splits every article by lines into chunks of at most
// maxLength estimated units.
func ArticleRows(data []byte, maxLength int, est chunk.LengthEstimator) ([]rowstore.Row, error) {
	var articles []Article
	if err := json.Unmarshal(data, &articles); err != nil {
		return nil, fmt.Errorf("parse articles: %w", err)
	}

	var rows []rowstore.Row
	for _, a := range articles {
		for i, text := range chunk.ChunkLines(a.Text, maxLength, est) {
			rows = append(rows, rowstore.ObjectRow(map[string]any{
				"title":       a.Title,
				"chunk_index": i,
				"text":        text,
			}))
		}
	}
	return rows, nil
}

// TemplateRows keeps every template object as a row and adds its flattened
// rendering under "text". Non-object entries are stored as scalars.
func TemplateRows(data []byte) ([]rowstore.Row, error) {
	var entries []any
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	rows := make([]rowstore.Row, 0, len(entries))
	for _, e := range entries {
		obj, ok := e.(map[string]any)
		if !ok {
			rows = append(rows, rowstore.ScalarRow(e))
			continue
		}
		fields := make(map[string]any, len(obj)+1)
		for k, v := range obj {
			fields[k] = v
		}
		fields[rowstore.TextField] = FlattenTemplate(obj)
		rows = append(rows, rowstore.ObjectRow(fields))
	}
	return rows, nil
}

// FlattenTemplate renders a template object as embedding text. Nested
// properties are written as dotted "key: value" pairs in key order.
func FlattenTemplate(t map[string]any) string {
	str := func(key string) string {
		if v, ok := t[key]; ok && v != nil {
			return formatValue(v)
		}
		return ""
	}

	var tags []string
	if list, ok := t["tags"].([]any); ok {
		for _, v := range list {
			tags = append(tags, formatValue(v))
		}
	}

	var children []string
	switch c := t["children"].(type) {
	case map[string]any:
		if props, ok := c["properties"].(map[string]any); ok {
			children = flattenProps(props, "child.")
		}
	case []any:
		for i, child := range c {
			m, ok := child.(map[string]any)
			if !ok {
				continue
			}
			if props, ok := m["properties"].(map[string]any); ok {
				children = append(children, flattenProps(props, fmt.Sprintf("child%d.", i))...)
			}
		}
	}

	props, _ := t["properties"].(map[string]any)
	defaults, _ := t["defaultProperties"].(map[string]any)

	var b strings.Builder
	fmt.Fprintf(&b, "UI Template: %s\n", str("title"))
	fmt.Fprintf(&b, "Type: %s\n", str("type"))
	fmt.Fprintf(&b, "Category: %s\n", str("category"))
	fmt.Fprintf(&b, "TemplateId: %s\n", str("templateId"))
	fmt.Fprintf(&b, "Description: %s\n", str("description"))
	fmt.Fprintf(&b, "Author: %s\n", str("author"))
	fmt.Fprintf(&b, "Tags: %s\n", strings.Join(tags, ", "))
	fmt.Fprintf(&b, "Properties: %s\n", strings.Join(flattenProps(props, ""), ", "))
	fmt.Fprintf(&b, "%s\n", strings.Join(children, ", "))
	fmt.Fprintf(&b, "DefaultProperties: %s", strings.Join(flattenProps(defaults, "default."), ", "))
	return b.String()
}

func flattenProps(props map[string]any, prefix string) []string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var items []string
	for _, k := range keys {
		key := prefix + k
		if nested, ok := props[k].(map[string]any); ok {
			items = append(items, flattenProps(nested, key+".")...)
			continue
		}
		items = append(items, key+": "+formatValue(props[k]))
	}
	return items
}

// formatValue prints strings and numbers bare and everything else as JSON.
func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return "null"
	case float64, bool:
		return fmt.Sprint(x)
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
}

// rowTexts returns the embedding input of every row.
func rowTexts(rows []rowstore.Row) []string {
	texts := make([]string, len(rows))
	for i, r := range rows {
		if s := r.Text(); s != "" || r.IsObject() {
			texts[i] = s
			continue
		}
		texts[i] = formatValue(r.Scalar)
	}
	return texts
}
