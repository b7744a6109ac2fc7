package gazetteer

import "strings"

// Normalize folds a user-written place label into lookup form: lowercase,
// dashes become spaces, runs of whitespace collapse, apostrophes and
// punctuation are stripped. The geresh/gershayim marks common in Hebrew
// settlement names are treated as apostrophes.
func Normalize(label string) string {
	s := strings.ToLower(strings.TrimSpace(label))
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, "–", " ")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\'', '’', '`', '׳', '"', '״', '.', ',', '(', ')':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
