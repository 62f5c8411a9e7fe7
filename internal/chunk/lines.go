package chunk

import "strings"

// ChunkLines groups the lines of text into chunks whose estimate stays within
// maxLength. A line is appended to the running chunk unless doing so would
// exceed the budget, in which case the running chunk is emitted first. A
// single line longer than maxLength becomes its own chunk.
func ChunkLines(text string, maxLength int, est LengthEstimator) []string {
	if maxLength <= 0 {
		maxLength = DefaultMaxLineTokens
	}
	if est == nil {
		est = CharEstimator{}
	}

	var (
		chunks  []string
		current strings.Builder
	)

	emit := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if est.Estimate(current.String()+line) > maxLength {
			emit()
		}
		current.WriteString(line)
		current.WriteByte('\n')
	}
	emit()

	return chunks
}
