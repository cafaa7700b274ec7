package access

import (
	"regexp"
	"strings"
)

// maskRegexCache memoizes the compiled regex for a glob mask, since
// the same ban/exception masks are checked repeatedly against every
// member of a channel.
var maskRegexCache = map[string]*regexp.Regexp{}

// CompileMask converts a glob-style mask (`*`, `?`) into a regular
// expression anchored at both ends.
func CompileMask(mask string) *regexp.Regexp {
	if re, ok := maskRegexCache[mask]; ok {
		return re
	}

	var b strings.Builder
	b.WriteByte('^')
	for _, r := range mask {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')

	re := regexp.MustCompile(b.String())
	maskRegexCache[mask] = re
	return re
}

// MatchMask reports whether s matches the glob-style mask.
func MatchMask(mask, s string) bool {
	return CompileMask(mask).MatchString(s)
}
