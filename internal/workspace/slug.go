package workspace

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var slugSanitizePattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns an uploaded filename into a lowercase ASCII slug, keeping
// the extension. Accents are folded ("Café.JPG" becomes "cafe.jpg").
func Slugify(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, base)
	if err != nil {
		folded = base
	}

	s := strings.ToLower(strings.TrimSpace(folded))
	s = slugSanitizePattern.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "image"
	}
	ext = slugSanitizePattern.ReplaceAllString(strings.TrimPrefix(ext, "."), "")
	if ext == "" {
		return s
	}
	return s + "." + ext
}
