package catalog

import (
	"strings"
	"unicode"
)

// campusAliases maps upstream campus spellings onto their canonical name.
var campusAliases = map[string]string{
	"Boston Main Campus": "Boston",
}

// UnknownCampus is used for sections Banner lists without a campus.
const UnknownCampus = "Unknown"

// CanonicalCampus normalizes an upstream campus name.
func CanonicalCampus(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return UnknownCampus
	}
	if canonical, ok := campusAliases[name]; ok {
		return canonical
	}
	return name
}

// CampusCode synthesizes a code for a campus that has none upstream:
// uppercase letters and digits, words joined by underscores.
func CampusCode(name string) string {
	words := strings.FieldsFunc(CanonicalCampus(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.ToUpper(strings.Join(words, "_"))
}
