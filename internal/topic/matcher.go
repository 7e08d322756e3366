package topic

import (
	"strings"
)

// Matcher provides efficient topic pattern matching.
// It supports the broker's subject wildcards:
// '*' matches exactly one topic token.
// '>' matches one or more topic tokens at the end of the pattern.
type Matcher struct {
	root *node
}

type node struct {
	children map[string]*node
	isEnd    bool
}

func newNode() *node {
	return &node{
		children: make(map[string]*node),
	}
}

// NewMatcher creates a new topic matcher.
func NewMatcher() *Matcher {
	return &Matcher{
		root: newNode(),
	}
}

// Add adds a topic pattern to the matcher.
func (m *Matcher) Add(pattern string) {
	current := m.root
	for _, token := range strings.Split(pattern, Separator) {
		next, ok := current.children[token]
		if !ok {
			next = newNode()
			current.children[token] = next
		}
		current = next
	}
	current.isEnd = true
}

// Match checks if a topic matches any pattern in the matcher.
func (m *Matcher) Match(topic string) bool {
	return m.matchRecursive(m.root, strings.Split(topic, Separator))
}

func (m *Matcher) matchRecursive(n *node, tokens []string) bool {
	if len(tokens) == 0 {
		return n.isEnd
	}

	// 1. Try exact match
	if next, ok := n.children[tokens[0]]; ok {
		if m.matchRecursive(next, tokens[1:]) {
			return true
		}
	}

	// 2. Try '*' wildcard
	if next, ok := n.children[SingleWildcard]; ok {
		if m.matchRecursive(next, tokens[1:]) {
			return true
		}
	}

	// 3. Try '>' wildcard; it needs at least one token, which we have here
	if next, ok := n.children[FullWildcard]; ok && next.isEnd {
		return true
	}

	return false
}

// GetMatches returns all patterns that match the given topic.
func (m *Matcher) GetMatches(topic string) []string {
	var matches []string
	m.findMatchesRecursive(m.root, strings.Split(topic, Separator), nil, &matches)
	return matches
}

func (m *Matcher) findMatchesRecursive(n *node, tokens []string, prefix []string, matches *[]string) {
	if len(tokens) == 0 {
		if n.isEnd {
			*matches = append(*matches, strings.Join(prefix, Separator))
		}
		return
	}

	if next, ok := n.children[tokens[0]]; ok {
		m.findMatchesRecursive(next, tokens[1:], appendToken(prefix, tokens[0]), matches)
	}

	if next, ok := n.children[SingleWildcard]; ok {
		m.findMatchesRecursive(next, tokens[1:], appendToken(prefix, SingleWildcard), matches)
	}

	if next, ok := n.children[FullWildcard]; ok && next.isEnd {
		*matches = append(*matches, strings.Join(appendToken(prefix, FullWildcard), Separator))
	}
}

// appendToken copies so sibling branches never share a backing array.
func appendToken(prefix []string, token string) []string {
	out := make([]string, len(prefix), len(prefix)+1)
	copy(out, prefix)
	return append(out, token)
}

// IsPattern checks if the given string contains any wildcard tokens.
func IsPattern(s string) bool {
	for _, token := range strings.Split(s, Separator) {
		if token == SingleWildcard || token == FullWildcard {
			return true
		}
	}
	return false
}

// MatchPattern matches a topic against a single pattern.
func MatchPattern(pattern, topic string) bool {
	return matchTokens(strings.Split(pattern, Separator), strings.Split(topic, Separator))
}

func matchTokens(pTokens, tTokens []string) bool {
	if len(pTokens) == 0 && len(tTokens) == 0 {
		return true
	}
	if len(pTokens) == 0 || len(tTokens) == 0 {
		return false
	}

	if pTokens[0] == FullWildcard {
		return true
	}

	if pTokens[0] == SingleWildcard || pTokens[0] == tTokens[0] {
		return matchTokens(pTokens[1:], tTokens[1:])
	}

	return false
}
