package cache

import (
	"regexp"
	"strings"
)

var fillerPhrases = []string{
	"please show me",
	"can you tell me",
	"could you show me",
	"please",
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// NormalizeQuery case-folds a query, strips common filler phrases, and
// unifies "what"/"which" so that semantically equivalent queries land on
// the same cache key more often.
func NormalizeQuery(query string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	for _, phrase := range fillerPhrases {
		q = strings.ReplaceAll(q, phrase, "")
	}
	q = strings.ReplaceAll(q, "which", "what")
	q = whitespaceRe.ReplaceAllString(q, " ")
	return strings.TrimSpace(q)
}
