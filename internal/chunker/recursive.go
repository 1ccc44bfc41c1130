package chunker

import (
	"strings"
	"unicode/utf8"
)

// separators in priority order: paragraph, line, sentence, clause, word,
// character.
var separators = []string{"\n\n", "\n", ". ", ", ", " ", ""}

type recursiveSplitter struct {
	max     int
	overlap int
	label   string
}

func (c *Chunker) recursive() *recursiveSplitter {
	return &recursiveSplitter{max: c.opts.MaxChunkSize, overlap: c.opts.Overlap}
}

func (r *recursiveSplitter) withLabel(label string) *recursiveSplitter {
	cp := *r
	cp.label = label
	return &cp
}

// split returns chunk spans covering text[start:end].
func (r *recursiveSplitter) split(text string, start, end int) []span {
	if end-start <= r.max {
		return []span{{start: start, end: end, label: r.label}}
	}
	return r.splitWith(text, start, end, separators)
}

func (r *recursiveSplitter) splitWith(text string, start, end int, seps []string) []span {
	sep, rest := "", []string(nil)
	for i, s := range seps {
		if s == "" || strings.Contains(text[start:end], s) {
			sep, rest = s, seps[i+1:]
			break
		}
	}

	var out, good []span
	for _, p := range splitKeep(text, start, end, sep) {
		if p.len() <= r.max {
			good = append(good, p)
			continue
		}
		if len(good) > 0 {
			out = append(out, r.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			out = append(out, span{start: p.start, end: p.end, label: r.label})
			continue
		}
		out = append(out, r.splitWith(text, p.start, p.end, rest)...)
	}
	if len(good) > 0 {
		out = append(out, r.merge(good)...)
	}
	return out
}

// merge packs contiguous pieces into chunks of at most max bytes, carrying
// trailing pieces of up to overlap bytes into the next chunk.
func (r *recursiveSplitter) merge(pieces []span) []span {
	var out []span
	var cur []span
	total := 0
	for _, p := range pieces {
		l := p.len()
		if total+l > r.max && len(cur) > 0 {
			out = append(out, span{start: cur[0].start, end: cur[len(cur)-1].end, label: r.label})
			for total > r.overlap || (total+l > r.max && total > 0) {
				total -= cur[0].len()
				cur = cur[1:]
			}
		}
		cur = append(cur, p)
		total += l
	}
	if len(cur) > 0 {
		out = append(out, span{start: cur[0].start, end: cur[len(cur)-1].end, label: r.label})
	}
	return out
}

// splitKeep splits text[start:end] on sep, keeping the separator attached to
// the preceding piece so pieces stay contiguous. An empty separator splits
// into runes.
func splitKeep(text string, start, end int, sep string) []span {
	var out []span
	if sep == "" {
		for i := start; i < end; {
			_, size := utf8.DecodeRuneInString(text[i:end])
			out = append(out, span{start: i, end: i + size})
			i += size
		}
		return out
	}
	pos := start
	for pos < end {
		idx := strings.Index(text[pos:end], sep)
		if idx < 0 {
			out = append(out, span{start: pos, end: end})
			break
		}
		next := pos + idx + len(sep)
		out = append(out, span{start: pos, end: next})
		pos = next
	}
	return out
}
