package section

import (
	"strings"

	"github.com/qiniu/x/log"
)

// Parse re-derives all section contents from the full text received so far.
//
// It is a pure function of its input: no parse state is carried between
// calls, so the caller can (and does) re-run it on every appended chunk.
// Rules:
//
//   - A section starts at the first occurrence of its marker ("TAG:").
//   - Its content runs until the first occurrence, after the marker, of a
//     marker belonging to a tag later in canonical order; successors are
//     probed in canonical order, so an out-of-order marker still yields a
//     deterministic boundary. With no successor marker present, content
//     runs to the end of the text.
//   - Content is trimmed of surrounding whitespace and may span lines.
//   - A tag whose marker is absent maps to the empty string.
//
// Text with no recognized marker at all parses to all-empty sections; the
// caller tells "still receiving preamble" apart from "malformed output" by
// timeout, never by a parse error. There is no escaping: a marker appearing
// verbatim inside earlier content truncates that content early. Parse never
// panics past its own boundary; an internal failure degrades to the whole
// text under the first configured tag.
func (g *Grammar) Parse(text string) (sections map[Tag]string) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("section parse failed, degrading to single section: %v", r)
			sections = g.degraded(text)
		}
	}()

	sections = make(map[Tag]string, len(g.tags))
	for _, tag := range g.tags {
		sections[tag] = ""
	}

	for i, tag := range g.tags {
		start := strings.Index(text, g.Marker(tag))
		if start < 0 {
			continue
		}
		body := text[start+len(g.Marker(tag)):]

		end := len(body)
		for _, next := range g.tags[i+1:] {
			if j := strings.Index(body, g.Marker(next)); j >= 0 {
				end = j
				break
			}
		}
		sections[tag] = strings.TrimSpace(body[:end])
	}

	return sections
}

// degraded is the fallback when parsing hits an internal error: everything
// goes under the first tag so nothing the model produced is lost.
func (g *Grammar) degraded(text string) map[Tag]string {
	sections := make(map[Tag]string, len(g.tags))
	for _, tag := range g.tags {
		sections[tag] = ""
	}
	sections[g.First()] = strings.TrimSpace(text)
	return sections
}
