package market

import (
	"strings"
	"unicode"
)

// NormalizeName folds an ingredient or product name to a comparison key:
// lower case, punctuation dropped, whitespace collapsed.
func NormalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

var unitAliases = map[string]struct {
	unit   string
	factor float64
}{
	"g":           {"g", 1},
	"gram":        {"g", 1},
	"grams":       {"g", 1},
	"kg":          {"g", 1000},
	"kilogram":    {"g", 1000},
	"kilograms":   {"g", 1000},
	"ml":          {"ml", 1},
	"milliliter":  {"ml", 1},
	"milliliters": {"ml", 1},
	"l":           {"ml", 1000},
	"liter":       {"ml", 1000},
	"liters":      {"ml", 1000},
	"litre":       {"ml", 1000},
	"tbsp":        {"tbsp", 1},
	"tablespoon":  {"tbsp", 1},
	"tsp":         {"tsp", 1},
	"teaspoon":    {"tsp", 1},
	"cup":         {"cup", 1},
	"cups":        {"cup", 1},
	"":            {"unit", 1},
	"unit":        {"unit", 1},
	"units":       {"unit", 1},
	"pc":          {"unit", 1},
	"pcs":         {"unit", 1},
	"piece":       {"unit", 1},
	"pieces":      {"unit", 1},
	"whole":       {"unit", 1},
}

// NormalizeQuantity converts a quantity to its base unit (g, ml, unit, ...).
// Unknown units are kept as given, lower-cased.
func NormalizeQuantity(qty float64, unit string) (float64, string) {
	u := strings.ToLower(strings.TrimSpace(unit))
	if a, ok := unitAliases[u]; ok {
		return qty * a.factor, a.unit
	}
	return qty, u
}

func tokens(s string) []string {
	fields := strings.Fields(s)
	out := fields[:0]
	for _, f := range fields {
		out = append(out, singular(f))
	}
	return out
}

func singular(w string) string {
	if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
		return w[:len(w)-1]
	}
	return w
}

// sharedTokens counts the key tokens that also appear in name.
func sharedTokens(key, name string) int {
	nt := make(map[string]bool)
	for _, t := range tokens(NormalizeName(name)) {
		nt[t] = true
	}
	hits := 0
	for _, t := range tokens(key) {
		if nt[t] {
			hits++
		}
	}
	return hits
}
