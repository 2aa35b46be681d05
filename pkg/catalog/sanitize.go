package catalog

import (
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// strictText strips every tag from free text written by store staff. The
// policy is safe for concurrent use.
var strictText = bluemonday.StrictPolicy()

// sanitizeText removes markup and collapses surrounding whitespace. Entities
// produced by the policy are decoded so plain text round-trips unchanged.
func sanitizeText(s string) string {
	return strings.TrimSpace(html.UnescapeString(strictText.Sanitize(s)))
}

func textRule() fieldRule {
	return func(v any) (any, error) {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("string")
		}
		return sanitizeText(s), nil
	}
}
