package transmogrifier

import (
	"fmt"
	"regexp"

	"github.com/lattice-dmcp/lattice/pkg/types"
)

// isMatching implements the subscription filter rules of spec §3: a
// hidden DID matches nothing; pattern matches the DID name; scope is a
// list of regexes, any of which matching the DID scope is sufficient;
// every remaining metadata key must match its DID-metadata counterpart,
// and a filter key with no corresponding DID-metadata entry fails the
// match.
func isMatching(f types.Filter, did types.DataIdentifier, meta types.DataIdentifier) bool {
	if meta.Hidden {
		return false
	}
	if f.Pattern != "" && !regexMatches(f.Pattern, did.Name) {
		return false
	}
	if len(f.Scope) > 0 && !anyRegexMatches(f.Scope, did.Scope) {
		return false
	}
	for key, want := range f.Metadata {
		val, ok := meta.Metadata[key]
		if !ok {
			return false
		}
		if !matchMetadataValue(want, val) {
			return false
		}
	}
	return true
}

func anyRegexMatches(patterns []string, s string) bool {
	for _, p := range patterns {
		if regexMatches(p, s) {
			return true
		}
	}
	return false
}

func matchMetadataValue(want, val any) bool {
	s := stringify(val)
	switch w := want.(type) {
	case string:
		return regexMatches(w, s)
	case []string:
		return anyRegexMatches(w, s)
	case []any:
		for _, p := range w {
			if ps, ok := p.(string); ok && regexMatches(ps, s) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// regexMatches mirrors Python's re.match: the pattern must match
// starting at position 0 of s, not merely match somewhere inside it.
// The filter patterns are user-authored subscription config, ground-
// truthed against the original transmogrifier daemon, which matches
// this way throughout.
func regexMatches(pattern, s string) bool {
	re, err := regexp.Compile(`\A(?:` + pattern + `)`)
	return err == nil && re.MatchString(s)
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
