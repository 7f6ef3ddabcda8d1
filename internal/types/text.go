package types

import (
	"regexp"
	"strings"
	"unicode"
)

var nonWordRegex = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// Tokenize splits s into case-folded, punctuation-stripped words, matching
// §9's "Jaccard for dedup and MMR uses tokens of length ≥ 3, case-folded,
// with punctuation stripped. No stemming required."
func Tokenize(s string) []string {
	folded := strings.ToLower(s)
	raw := nonWordRegex.Split(folded, -1)
	out := make([]string, 0, len(raw))
	for _, w := range raw {
		if len([]rune(w)) >= 3 {
			out = append(out, w)
		}
	}
	return out
}

// TokenSet is Tokenize deduplicated into a set.
func TokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range Tokenize(s) {
		set[w] = struct{}{}
	}
	return set
}

// JaccardTokens computes the Jaccard similarity between the ≥3-char token
// sets of a and b, the basis for semantic dedup between same-level contexts.
func JaccardTokens(a, b string) float64 {
	return jaccardSets(TokenSet(a), TokenSet(b))
}

func jaccardSets[T comparable](a, b map[T]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// JaccardNodeSets computes node-set Jaccard overlap between two contexts,
// used by the Diversity Selector's MMR stage. Consolidation clustering
// uses shared-node counts instead.
func JaccardNodeSets(a, b *Context) float64 {
	return jaccardSets(a.NodeSet(), b.NodeSet())
}

// capitalizedWordRegex matches a run of letters starting with an uppercase
// letter - the "capitalized single-word tokens" feature used by both the
// signal builder and rule-condition derivation.
var capitalizedWordRegex = regexp.MustCompile(`\p{Lu}[\p{L}\p{N}]*`)

// CapitalizedWords extracts capitalized single-word tokens from free text,
// preserving first-seen order and de-duplicating.
func CapitalizedWords(s string) []string {
	matches := capitalizedWordRegex.FindAllString(s, -1)
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if !unicode.IsUpper(rune(m[0])) {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// DeriveRuleConditions computes rule_conditions ⊆ nodes ∪
// canonical-entity-set, recomputed whenever rule is (re)written. The
// canonical entity set is the union of the owning context's node names (so
// conditions naming a node the episode already tracked resolve exactly) plus
// any capitalized token appearing in the rule text itself.
func DeriveRuleConditions(rule string, nodeNames []string, knownEntities map[string]struct{}) []string {
	if rule == "" {
		return nil
	}

	allowed := make(map[string]struct{}, len(nodeNames)+len(knownEntities))
	for _, n := range nodeNames {
		allowed[n] = struct{}{}
	}
	for e := range knownEntities {
		allowed[e] = struct{}{}
	}

	seen := make(map[string]struct{})
	var out []string

	for _, w := range CapitalizedWords(rule) {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}

	for _, n := range nodeNames {
		if strings.Contains(rule, n) {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}

	return out
}
