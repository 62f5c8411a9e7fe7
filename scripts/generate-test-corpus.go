//go:build ignore

// Package main generates a synthetic docrag project for build and search
// benchmarking: a markdown guide, an articles file, a templates file and a
// .docrag.yaml declaring all three.
//
// Usage: go run scripts/generate-test-corpus.go -sections 500 -output testdata/bench
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	sections  = flag.Int("sections", 200, "Number of markdown sections")
	articles  = flag.Int("articles", 100, "Number of articles")
	templates = flag.Int("templates", 100, "Number of templates")
	outputDir = flag.String("output", "testdata/bench", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var (
	topics = []string{
		"Installation", "Configuration", "Caching", "Authentication", "Logging",
		"Deployment", "Upgrades", "Backups", "Networking", "Permissions",
		"Scheduling", "Storage", "Monitoring", "Search", "Indexing",
	}
	verbs = []string{
		"configure", "enable", "disable", "rotate", "inspect", "tune",
		"restart", "migrate", "validate", "export",
	}
	nouns = []string{
		"the cache", "the worker pool", "API keys", "the data directory",
		"log files", "the scheduler", "upload limits", "the index",
		"retention rules", "the proxy",
	}
	components = []string{"Form", "Table", "Card", "Modal", "Navbar", "Footer", "Banner", "List"}
	categories = []string{"forms", "layout", "marketing", "navigation", "data"}
)

const projectConfig = `version: 1
corpora:
  - name: guide
    kind: markdown
    source: guide.md
  - name: blog
    kind: articles
    source: articles.json
  - name: ui-templates
    kind: templates
    source: templates.json
`

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fail(err)
	}

	write("guide.md", []byte(guide(rng, *sections)))
	write("articles.json", mustJSON(articleList(rng, *articles)))
	write("templates.json", mustJSON(templateList(rng, *templates)))
	write(".docrag.yaml", []byte(projectConfig))

	fmt.Printf("Generated %d sections, %d articles, %d templates in %s\n",
		*sections, *articles, *templates, *outputDir)
}

func sentence(rng *rand.Rand) string {
	return fmt.Sprintf("To %s %s, %s %s first.",
		pick(rng, verbs), pick(rng, nouns), pick(rng, verbs), pick(rng, nouns))
}

func paragraph(rng *rand.Rand, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = sentence(rng)
	}
	return strings.Join(parts, " ")
}

func guide(rng *rand.Rand, n int) string {
	var b strings.Builder
	b.WriteString("# Operations Guide\n\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "## %s %d\n\n", pick(rng, topics), i+1)
		for p := 0; p < 1+rng.Intn(4); p++ {
			b.WriteString(paragraph(rng, 2+rng.Intn(6)))
			b.WriteString("\n\n")
		}
		if rng.Intn(4) == 0 {
			fmt.Fprintf(&b, "```sh\ndocrag %s --%s\n```\n\n", pick(rng, verbs), pick(rng, verbs))
		}
	}
	return b.String()
}

func articleList(rng *rand.Rand, n int) []map[string]string {
	out := make([]map[string]string, n)
	for i := range out {
		lines := make([]string, 3+rng.Intn(20))
		for j := range lines {
			lines[j] = paragraph(rng, 1+rng.Intn(3))
		}
		out[i] = map[string]string{
			"title": fmt.Sprintf("%s notes %d", pick(rng, topics), i+1),
			"text":  strings.Join(lines, "\n"),
		}
	}
	return out
}

func templateList(rng *rand.Rand, n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		component := pick(rng, components)
		out[i] = map[string]any{
			"templateId":  fmt.Sprintf("tpl-%04d", i+1),
			"title":       fmt.Sprintf("%s %s", pick(rng, topics), component),
			"type":        strings.ToLower(component),
			"category":    pick(rng, categories),
			"description": sentence(rng),
			"tags":        []string{pick(rng, categories), strings.ToLower(component)},
			"properties": map[string]any{
				"columns": 1 + rng.Intn(4),
				"theme":   map[string]any{"color": pick(rng, []string{"blue", "green", "gray"})},
			},
		}
	}
	return out
}

func pick(rng *rand.Rand, items []string) string {
	return items[rng.Intn(len(items))]
}

func mustJSON(v any) []byte {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fail(err)
	}
	return data
}

func write(name string, data []byte) {
	if err := os.WriteFile(filepath.Join(*outputDir, name), data, 0o644); err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
