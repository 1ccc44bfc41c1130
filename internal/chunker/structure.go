package chunker

import (
	"regexp"
	"strings"
)

var (
	markdownHeading = regexp.MustCompile(`^(#{1,3})\s+(.+)$`)
	numberedClause  = regexp.MustCompile(`^(\d{1,3}(?:\.\d{1,3})*)\.?\s+(\S.*)$`)
	capsLabel       = regexp.MustCompile(`^([A-Z][A-Z ]{2,}):\s*(.*)$`)
)

type heading struct {
	depth int
	title string
}

// parseHeading recognises markdown headings, numbered clauses ("4.", "4.2")
// and ALL-CAPS labels ("TERMINATION:").
func parseHeading(line string) (heading, bool) {
	line = strings.TrimRight(line, " \t\r")
	if m := markdownHeading.FindStringSubmatch(line); m != nil {
		return heading{depth: len(m[1]), title: strings.TrimSpace(m[2])}, true
	}
	if m := numberedClause.FindStringSubmatch(line); m != nil {
		depth := strings.Count(m[1], ".") + 1
		return heading{depth: depth, title: m[1] + " " + strings.TrimSpace(m[2])}, true
	}
	if m := capsLabel.FindStringSubmatch(line); m != nil {
		return heading{depth: 1, title: strings.TrimSpace(m[1])}, true
	}
	return heading{}, false
}

// structure opens a section at every heading line and splits each section
// recursively, labelling chunks with the heading path.
func (c *Chunker) structure(text string) []span {
	rs := c.recursive()

	type section struct {
		start int
		label string
	}
	sections := []section{{start: 0}}
	var path []heading

	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		if h, ok := parseHeading(strings.TrimSuffix(line, "\n")); ok {
			for len(path) > 0 && path[len(path)-1].depth >= h.depth {
				path = path[:len(path)-1]
			}
			path = append(path, h)

			titles := make([]string, len(path))
			for i, p := range path {
				titles[i] = p.title
			}
			if offset == 0 {
				sections[0].label = strings.Join(titles, " > ")
			} else {
				sections = append(sections, section{start: offset, label: strings.Join(titles, " > ")})
			}
		}
		offset += len(line)
	}

	var out []span
	for i, s := range sections {
		end := len(text)
		if i+1 < len(sections) {
			end = sections[i+1].start
		}
		if end > s.start {
			out = append(out, rs.withLabel(s.label).split(text, s.start, end)...)
		}
	}
	return out
}
