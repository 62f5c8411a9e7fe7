package chunk

import "strings"

// SplitSections partitions a markdown document into ## and ### sections.
// Lines before the first heading are discarded; a document without
// headings yields an empty slice.
func SplitSections(doc string) []Section {
	doc = strings.ReplaceAll(doc, "\r\n", "\n")

	var (
		sections []Section
		current  *Section
		body     []string
	)

	push := func() {
		if current == nil {
			return
		}
		current.Content = strings.TrimSpace(strings.Join(body, "\n"))
		sections = append(sections, *current)
	}

	for _, line := range strings.Split(doc, "\n") {
		level, heading, ok := parseHeading(line)
		if !ok {
			if current != nil {
				body = append(body, line)
			}
			continue
		}

		push()
		current = &Section{Heading: heading, Level: level}
		body = body[:0]
	}
	push()

	return sections
}

// parseHeading recognizes "### " before "## " so the deeper marker wins.
func parseHeading(line string) (int, string, bool) {
	switch {
	case strings.HasPrefix(line, "### "):
		return 3, strings.TrimSpace(line[4:]), true
	case strings.HasPrefix(line, "## "):
		return 2, strings.TrimSpace(line[3:]), true
	default:
		return 0, "", false
	}
}

// HeadingPrefix renders the heading line that starts every chunk of a section.
func HeadingPrefix(heading string, level int) string {
	return strings.Repeat("#", level) + " " + heading + "\n\n"
}
