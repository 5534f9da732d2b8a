// Package blacklist screens add-on uploads against administrator-defined
// patterns covering publish metadata and client addresses.
package blacklist

import (
	"strings"

	"github.com/hanko213/campaignd/pack"
	"github.com/hanko213/campaignd/wml"
)

// Blacklist holds glob patterns per screened field. Patterns support '*'
// (any sequence) and '?' (any single character) and match
// case-insensitively. The zero value matches nothing.
type Blacklist struct {
	names        []string
	titles       []string
	descriptions []string
	authors      []string
	ips          []string
	emails       []string
}

// Clear drops every pattern.
func (b *Blacklist) Clear() {
	*b = Blacklist{}
}

// Read replaces the pattern set from a blacklist document. Each field is a
// top-level attribute holding a comma-separated pattern list.
func (b *Blacklist) Read(doc *wml.Node) {
	b.names = parsePatterns(doc.Attr("name"))
	b.titles = parsePatterns(doc.Attr("title"))
	b.descriptions = parsePatterns(doc.Attr("description"))
	b.authors = parsePatterns(doc.Attr("author"))
	b.ips = parsePatterns(doc.Attr("ip"))
	b.emails = parsePatterns(doc.Attr("email"))
}

func parsePatterns(list string) []string {
	var out []string
	for _, p := range strings.Split(list, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, pack.FoldName(p))
		}
	}
	return out
}

// IsBlacklisted reports whether any field of an upload matches its pattern
// list.
func (b *Blacklist) IsBlacklisted(name, title, description, author, addr, email string) bool {
	return matchesAny(b.names, name) ||
		matchesAny(b.titles, title) ||
		matchesAny(b.descriptions, description) ||
		matchesAny(b.authors, author) ||
		matchesAny(b.ips, addr) ||
		matchesAny(b.emails, email)
}

func matchesAny(patterns []string, value string) bool {
	if value == "" {
		return false
	}
	folded := pack.FoldName(value)
	for _, p := range patterns {
		if Match(p, folded) {
			return true
		}
	}
	return false
}

// Match reports whether s matches the wildcard pattern. Both arguments are
// compared byte-wise as given; callers fold case beforehand.
func Match(pattern, s string) bool {
	// Iterative backtracking over the single '*' resume point.
	var starPat, starStr = -1, 0
	pi, si := 0, 0
	for si < len(s) {
		switch {
		case pi < len(pattern) && (pattern[pi] == '?' || pattern[pi] == s[si]):
			pi++
			si++
		case pi < len(pattern) && pattern[pi] == '*':
			starPat = pi
			starStr = si
			pi++
		case starPat >= 0:
			starStr++
			si = starStr
			pi = starPat + 1
		default:
			return false
		}
	}
	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}
