package chunker

import "strings"

// section is a contiguous run of text under one detected heading.
type section struct {
	title   string
	level   int
	content string
}

const defaultSectionTitle = "Main Content"

// splitSections partitions normalized text into ordered sections. Headers are
// markdown #-prefixed lines, short ALL-CAPS lines, or lines underlined with
// === or ---. Untitled leading text becomes the "Main Content" section.
func splitSections(text string) []section {
	lines := strings.Split(text, "\n")

	var sections []section
	cur := section{title: defaultSectionTitle, level: 0}
	var body []string
	flush := func() {
		cur.content = strings.TrimSpace(strings.Join(body, "\n"))
		if cur.content != "" || len(sections) > 0 {
			sections = append(sections, cur)
		}
		body = nil
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if title, level, ok := markdownHeader(line); ok {
			flush()
			cur = section{title: title, level: level}
			continue
		}
		if i+1 < len(lines) {
			if level, ok := underlineLevel(lines[i+1]); ok && strings.TrimSpace(line) != "" {
				flush()
				cur = section{title: strings.TrimSpace(line), level: level}
				i++ // skip the underline
				continue
			}
		}
		if isAllCapsHeader(line) {
			flush()
			cur = section{title: strings.TrimSpace(line), level: 1}
			continue
		}
		body = append(body, line)
	}
	flush()

	// Drop a leading empty "Main Content" shell when the document opens with
	// a header.
	out := sections[:0]
	for _, s := range sections {
		if s.content == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

func markdownHeader(line string) (string, int, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") {
		return "", 0, false
	}
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	title := strings.TrimSpace(trimmed[level:])
	if title == "" {
		return "", 0, false
	}
	return title, level, true
}

func underlineLevel(line string) (int, bool) {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) < 3 {
		return 0, false
	}
	switch {
	case strings.Count(trimmed, "=") == len(trimmed):
		return 1, true
	case strings.Count(trimmed, "-") == len(trimmed):
		return 2, true
	}
	return 0, false
}

// isAllCapsHeader treats short all-uppercase lines as headings, a common
// convention in plain-text documentation.
func isAllCapsHeader(line string) bool {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) < 3 || len(trimmed) > 60 {
		return false
	}
	hasLetter := false
	for _, r := range trimmed {
		if r >= 'a' && r <= 'z' {
			return false
		}
		if r >= 'A' && r <= 'Z' {
			hasLetter = true
		}
	}
	if !hasLetter {
		return false
	}
	// Lines ending like sentences are content, not headings.
	return !strings.ContainsAny(trimmed[len(trimmed)-1:], ".!?,;")
}
