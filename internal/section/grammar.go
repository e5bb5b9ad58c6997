package section

import (
	"fmt"
	"strings"
)

// Tag identifies one named section of a generated note.
type Tag string

// Default tag vocabulary, in canonical order. The order matters: it defines
// where one section's content ends when the next marker appears.
const (
	TagDeveloper    Tag = "DEVELOPER"
	TagMarketing    Tag = "MARKETING"
	TagFeedback     Tag = "FEEDBACK"
	TagSecurity     Tag = "SECURITY"
	TagReadability  Tag = "READABILITY"
	TagTests        Tag = "TESTS"
	TagContributors Tag = "CONTRIBUTORS"
	TagChanges      Tag = "CHANGES"
)

// DefaultTags is the canonical vocabulary used when no custom vocabulary is
// configured.
var DefaultTags = []Tag{
	TagDeveloper,
	TagMarketing,
	TagFeedback,
	TagSecurity,
	TagReadability,
	TagTests,
	TagContributors,
	TagChanges,
}

// Grammar holds an ordered tag vocabulary and answers marker/boundary
// questions about it. The vocabulary is fixed for the lifetime of a Grammar.
type Grammar struct {
	tags []Tag
	rank map[Tag]int
}

// NewGrammar creates a grammar from an ordered tag list. Tags must be
// non-empty, unique, and contain no whitespace or colon (the marker format
// is the literal tag name followed by a colon).
func NewGrammar(tags []Tag) (*Grammar, error) {
	if len(tags) == 0 {
		return nil, fmt.Errorf("section grammar requires at least one tag")
	}

	rank := make(map[Tag]int, len(tags))
	for i, tag := range tags {
		if tag == "" {
			return nil, fmt.Errorf("section tag at position %d is empty", i)
		}
		if strings.ContainsAny(string(tag), ": \t\n") {
			return nil, fmt.Errorf("section tag %q contains reserved characters", tag)
		}
		if _, dup := rank[tag]; dup {
			return nil, fmt.Errorf("duplicate section tag %q", tag)
		}
		rank[tag] = i
	}

	return &Grammar{
		tags: append([]Tag(nil), tags...),
		rank: rank,
	}, nil
}

// MustGrammar is NewGrammar that panics on invalid input, for use with
// known-good vocabularies such as DefaultTags.
func MustGrammar(tags []Tag) *Grammar {
	g, err := NewGrammar(tags)
	if err != nil {
		panic(err)
	}
	return g
}

// Tags returns the vocabulary in canonical order.
func (g *Grammar) Tags() []Tag {
	return append([]Tag(nil), g.tags...)
}

// First returns the first tag in canonical order.
func (g *Grammar) First() Tag {
	return g.tags[0]
}

// Marker returns the literal wire marker for a tag, e.g. "DEVELOPER:".
func (g *Grammar) Marker(tag Tag) string {
	return string(tag) + ":"
}

// Contains reports whether the tag belongs to this grammar's vocabulary.
func (g *Grammar) Contains(tag Tag) bool {
	_, ok := g.rank[tag]
	return ok
}
