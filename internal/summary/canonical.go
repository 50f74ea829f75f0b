package summary

import (
	"sort"
	"strings"
)

// canonicalRule rewrites one product-name fragment to its short code.
type canonicalRule struct {
	match   string
	replace string
}

// canonicalRules is applied in order to each product token. Order matters:
// "cb response cloud" must rewrite before "cb response" or the cloud
// variant would come out as "EDR cloud". The explicit "edr cloud" rule
// preserves the rewrite chain the legacy rule table produced for values
// that already carry the short code.
var canonicalRules = []canonicalRule{
	{"cb protection", "AC"},
	{"cb response cloud", "HEDR"},
	{"cb response", "EDR"},
	{"edr cloud", "HEDR"},
	{"carbon black cloud", "CBC"},
}

// CanonicalizeProducts normalizes a raw concatenation of product names
// into a deduplicated ", "-joined list of short codes. The raw value is
// lower-cased and split on commas; each rule is applied to each token
// exactly once, in rule order, and rewritten output is never re-scanned.
func CanonicalizeProducts(raw string) string {
	tokens := strings.Split(strings.ToLower(raw), ",")

	seen := make(map[string]bool)
	var out []string
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		token = applyRules(token)
		if !seen[token] {
			seen[token] = true
			out = append(out, token)
		}
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}

// applyRules runs the rule list over a single token in one left-to-right
// pass. Matches are lower-case and replacements are upper-case codes, so a
// later rule can never re-match text an earlier rule produced.
func applyRules(token string) string {
	for _, rule := range canonicalRules {
		token = strings.ReplaceAll(token, rule.match, rule.replace)
	}
	return token
}
