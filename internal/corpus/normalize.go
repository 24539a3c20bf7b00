package corpus

import (
	"strings"
	"unicode"

	"github.com/blevesearch/go-porterstemmer"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// diacriticFold strips combining marks (accents, umlauts, cedillas)
// after decomposing to NFD, then recomposes to NFC: café -> cafe.
var diacriticFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeWord applies NFKC fold, lowercase, and (unless the corpus
// opts out) diacritic removal.
func normalizeWord(word string, preserveDiacritics bool) string {
	trimmed := strings.TrimSpace(word)
	lower := strings.ToLower(trimmed)
	folded := norm.NFKC.String(lower)
	if preserveDiacritics {
		return folded
	}

	stripped, _, err := transform.String(diacriticFold, folded)
	if err != nil {
		return folded
	}
	return stripped
}

// lemmatize reduces a normalized word to its stem via the Porter
// stemming algorithm.
func lemmatize(normalized string) string {
	return porterstemmer.StemString(normalized)
}
