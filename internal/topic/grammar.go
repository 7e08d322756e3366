package topic

import "regexp"

// Token grammar shared by every topic the client sends to the broker.
const (
	Separator      = "."
	SingleWildcard = "*"
	FullWildcard   = ">"
)

var (
	// validTopic accepts dot separated alphanumeric tokens. Any token may be
	// '*', and the last token may be '>'. Publish and subscribe share it, so
	// a published topic may carry wildcard tokens too.
	validTopic = regexp.MustCompile(`^(?:(?:[A-Za-z0-9]+|\*)\.)*(?:[A-Za-z0-9]+|\*|>)$`)

	// validName covers subscription ids and queue group names.
	validName = regexp.MustCompile(`^[A-Za-z0-9]+$`)
)

// ValidTopic reports whether s is a well formed topic or topic filter.
func ValidTopic(s string) bool {
	return validTopic.MatchString(s)
}

// ValidName reports whether s is a well formed subscription id or queue group.
func ValidName(s string) bool {
	return validName.MatchString(s)
}
