package consolidate

import (
	"fmt"
	"regexp"
	"strings"
)

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

var accentFolder = strings.NewReplacer(
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"à", "a", "â", "a",
	"î", "i", "ï", "i",
	"ô", "o",
	"ù", "u", "û", "u", "ü", "u",
	"ç", "c",
)

// LawCitationKey builds the deterministic citation key for an amending law,
// e.g. year "2025" and number "14" become "loi-2025-14".
func LawCitationKey(year, number string) string {
	return fmt.Sprintf("loi-%s-%s", year, number)
}

// Slug normalizes a latin title into a citation-key fragment: lowercase,
// runs of non-alphanumerics collapsed to single dashes.
func Slug(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = accentFolder.Replace(s)
	s = slugPattern.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
