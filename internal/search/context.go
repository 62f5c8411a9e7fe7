package search

import (
	"fmt"
	"strings"
)

// FormatContext renders results as numbered blocks for a generation
// prompt:
//
//	[1] <title>:
//	<text>
//
// Blocks are separated by a blank line. The title is read from titleField.
func FormatContext(results []Result, titleField string) string {
	blocks := make([]string, 0, len(results))
	for i, r := range results {
		blocks = append(blocks, fmt.Sprintf("[%d] %s:\n%s", i+1, r.String(titleField), r.String("text")))
	}
	return strings.Join(blocks, "\n\n")
}
