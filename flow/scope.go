package flow

import (
	"strings"

	"github.com/256dpi/oauth2/v2"
)

// ParseScope parses a whitespace or comma separated scope string into a
// deduplicated scope that preserves first occurrence order.
func ParseScope(str string) oauth2.Scope {
	// split on whitespace and commas
	scope := oauth2.ParseScope(strings.ReplaceAll(str, ",", " "))

	// deduplicate
	var out oauth2.Scope
	seen := map[string]bool{}
	for _, entry := range scope {
		if !seen[entry] {
			seen[entry] = true
			out = append(out, entry)
		}
	}

	return out
}

// NarrowScope applies an optional requested scope to the granted scope. An
// absent requested scope yields the granted scope unchanged, otherwise the
// requested scope must be a subset of the granted scope.
func NarrowScope(requested string, granted oauth2.Scope) (oauth2.Scope, *oauth2.Error) {
	// parse scope
	scope := ParseScope(requested)
	if len(scope) == 0 {
		return granted, nil
	}

	// check subset
	if !granted.Includes(scope) {
		return nil, oauth2.InvalidScope("scope: not allowed")
	}

	return scope, nil
}
