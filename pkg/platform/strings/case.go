package strings

import (
	"strings"
	"unicode"
)

// ToSnakeCase converts Go field names (RateThreshold, MaxTrackedKeys,
// DatacenterCIDRs) to snake_case for user-facing messages. A trailing
// lowercase "s" after an acronym is a plural and stays attached.
func ToSnakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) && startsWord(runes, i) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func startsWord(runes []rune, i int) bool {
	prev := runes[i-1]
	if unicode.IsLower(prev) || unicode.IsDigit(prev) {
		return true
	}
	if i+1 >= len(runes) || !unicode.IsLower(runes[i+1]) {
		return false
	}
	return !isPluralSuffix(runes, i+1)
}

func isPluralSuffix(runes []rune, i int) bool {
	return runes[i] == 's' && (i+1 == len(runes) || unicode.IsUpper(runes[i+1]))
}
