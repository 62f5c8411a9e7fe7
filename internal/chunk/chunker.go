package chunk

import (
	"log/slog"
	"regexp"
	"strings"
)

// blankLinePattern separates paragraphs: a newline, optional whitespace, a newline.
var blankLinePattern = regexp.MustCompile(`\n\s*\n`)

// Chunker converts section content into heading-prefixed chunks bounded by
// TargetLength, carrying an overlap tail across chunk boundaries.
type Chunker struct {
	options Options
}

// New creates a chunker with default options.
func New() *Chunker {
	return NewWithOptions(DefaultOptions())
}

// NewWithOptions creates a chunker, filling zero-valued options with defaults.
func NewWithOptions(opts Options) *Chunker {
	if opts.TargetLength <= 0 {
		opts.TargetLength = DefaultTargetLength
	}
	if opts.OverlapChars < 0 {
		opts.OverlapChars = 0
	}
	if opts.CharsPerUnit <= 0 {
		opts.CharsPerUnit = DefaultCharsPerUnit
	}
	if opts.MinWindowChars <= 0 {
		opts.MinWindowChars = DefaultMinWindowChars
	}
	if opts.OutlierFactor == 0 {
		opts.OutlierFactor = DefaultOutlierFactor
	}
	if opts.Estimator == nil {
		opts.Estimator = CharEstimator{CharsPerUnit: opts.CharsPerUnit}
	}
	return &Chunker{options: opts}
}

// Options returns the effective options.
func (c *Chunker) Options() Options {
	return c.options
}

// WindowChars is the character window used for oversized paragraphs.
func (c *Chunker) WindowChars() int {
	return max(c.options.MinWindowChars, c.options.TargetLength*c.options.CharsPerUnit)
}

// ChunkSection splits one section into chunk texts. The slice index is the
// chunk's part index. Empty content yields no chunks.
func (c *Chunker) ChunkSection(heading string, level int, content string) []string {
	raw := c.chunkRaw(heading, content)

	prefix := HeadingPrefix(heading, level)
	out := make([]string, len(raw))
	for i, text := range raw {
		out[i] = prefix + text
	}
	return out
}

// chunkRaw does the greedy accumulation and returns chunks without the heading prefix.
func (c *Chunker) chunkRaw(heading, content string) []string {
	var (
		chunks      []string
		buf         string
		overlapTail string

		// afterWindows is set while the last chunk came from a window run.
		afterWindows bool
	)

	flush := func() {
		text := strings.TrimSpace(buf)
		if text != "" {
			chunks = append(chunks, text)
			overlapTail = c.tail(text)
		}
		buf = ""
	}

	for i, p := range Paragraphs(content) {
		estimate := c.options.Estimator.Estimate(p)

		if estimate > c.options.TargetLength {
			c.checkOutlier(heading, i, p, estimate)

			if strings.TrimSpace(buf) != "" {
				flush()
			}
			for _, window := range c.windows(p) {
				cur := strings.TrimSpace(overlapTail + window)
				chunks = append(chunks, cur)
				overlapTail = c.tail(cur)
			}
			afterWindows = true
			continue
		}

		candidate := p
		switch {
		case buf != "":
			candidate = buf + "\n\n" + p
		case afterWindows:
			candidate = overlapTail + p
		}
		afterWindows = false

		if c.options.Estimator.Estimate(candidate) >= c.options.TargetLength {
			if buf != "" {
				flush()
			}
			buf = overlapTail + p
			continue
		}
		buf = candidate
	}

	if strings.TrimSpace(buf) != "" {
		flush()
	}

	return chunks
}

// windows slides a fixed character window across p with OverlapChars overlap.
func (c *Chunker) windows(p string) []string {
	runes := []rune(p)
	size := c.WindowChars()
	step := max(size-c.options.OverlapChars, 1)

	var out []string
	for start := 0; start < len(runes); start += step {
		end := min(len(runes), start+size)
		out = append(out, string(runes[start:end]))
		if end >= len(runes) {
			break
		}
	}
	return out
}

// tail returns the last OverlapChars characters of text.
func (c *Chunker) tail(text string) string {
	if c.options.OverlapChars == 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= c.options.OverlapChars {
		return text
	}
	return string(runes[len(runes)-c.options.OverlapChars:])
}

func (c *Chunker) checkOutlier(heading string, idx int, p string, estimate int) {
	if c.options.OutlierFactor < 0 || estimate <= c.options.OutlierFactor*c.options.TargetLength {
		return
	}

	o := Outlier{Heading: heading, Paragraph: idx, Estimate: estimate, Chars: len([]rune(p))}
	slog.Warn("oversized_paragraph",
		slog.String("section", heading),
		slog.Int("paragraph", idx),
		slog.Int("estimate", estimate),
		slog.Int("target", c.options.TargetLength),
		slog.Int("chars", o.Chars))
	if c.options.OnOutlier != nil {
		c.options.OnOutlier(o)
	}
}

// Paragraphs splits text on blank lines, trimming and dropping empty parts.
func Paragraphs(text string) []string {
	var out []string
	for _, part := range blankLinePattern.Split(strings.TrimSpace(text), -1) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
