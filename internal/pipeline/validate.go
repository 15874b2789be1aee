package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation is wrapped by every *ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError names the request field that was rejected.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Validate trims query and sources, strips an "r/" prefix from source names
// and drops duplicate sources, keeping the first occurrence.
func Validate(query string, sources []string) (string, []string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", nil, &ValidationError{Field: "query", Message: "query is required"}
	}
	if len(sources) == 0 {
		return "", nil, &ValidationError{Field: "subreddits", Message: "at least one subreddit is required"}
	}

	seen := make(map[string]struct{}, len(sources))
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		s = strings.TrimPrefix(strings.TrimSpace(s), "r/")
		if s == "" {
			return "", nil, &ValidationError{Field: "subreddits", Message: "subreddit names cannot be empty"}
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return query, out, nil
}
