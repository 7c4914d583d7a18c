package askanswer

import (
	"regexp"
	"strings"

	"github.com/driftboard/driftboard/internal/domain"
)

// disallowedPatterns match markup and script fragments that must never be
// stored in edge metadata, which is later rendered in chat-like UI.
var disallowedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<\s*script`),
	regexp.MustCompile(`(?i)<\s*iframe`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)\bon[a-z]+\s*=`),
	regexp.MustCompile(`(?i)data\s*:\s*text/html`),
}

// ValidateQuery checks an outgoing query for emptiness, length and
// disallowed markup. It returns the trimmed query on success.
func ValidateQuery(query string) (string, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return "", domain.ErrEmptyQuery
	}
	if len(trimmed) > domain.MaxQueryLength {
		return "", domain.ErrQueryTooLong
	}

	for _, pattern := range disallowedPatterns {
		if pattern.MatchString(trimmed) {
			return "", domain.ErrQueryUnsafe
		}
	}

	return trimmed, nil
}
