// Package fuzzy implements the fuzzy matcher (C8): approximate string
// ranking over a candidate set, combining a weighted-ratio score from
// github.com/xrash/smetrics (Jaro-Winkler) with a stdlib token-set
// Dice score, a length-aware damping correction, and a cheap
// pre-filter gate so obviously-unrelated candidates never reach the
// scoring step.
package fuzzy

import (
	"sort"
	"strconv"
	"strings"

	"github.com/xrash/smetrics"

	"github.com/aman-cerp/corpuscore/internal/model"
)

// jaroWinklerBoostThreshold and jaroWinklerPrefixSize are the standard
// Winkler parameters: boost similarity for strings that already agree
// on a common prefix of up to 4 runes.
const (
	jaroWinklerBoostThreshold = 0.7
	jaroWinklerPrefixSize     = 4
)

// Options tunes Rank's pre-filter gate and scoring weights.
type Options struct {
	// MaxLengthDelta bounds the pre-filter: candidates whose rune
	// length differs from the query by more than this are skipped
	// without scoring. Zero means use DefaultMaxLengthDelta.
	MaxLengthDelta int
	// ShortQueryThreshold: queries at or under this rune length also
	// pass the pre-filter for any candidate sharing their leading rune,
	// whatever the length delta. Zero means use
	// DefaultShortQueryThreshold.
	ShortQueryThreshold int
}

// DefaultMaxLengthDelta bounds the cheap pre-filter gate.
const DefaultMaxLengthDelta = 4

// DefaultShortQueryThreshold is the query length at/under which the
// shared-prefix pre-filter rule applies.
const DefaultShortQueryThreshold = 4

func (o Options) maxLengthDelta() int {
	if o.MaxLengthDelta > 0 {
		return o.MaxLengthDelta
	}
	return DefaultMaxLengthDelta
}

func (o Options) shortQueryThreshold() int {
	if o.ShortQueryThreshold > 0 {
		return o.ShortQueryThreshold
	}
	return DefaultShortQueryThreshold
}

// Candidate is a single vocabulary entry eligible for fuzzy ranking.
// SignatureBucket is an optional cheap grouping key (sorted letter
// multiset plus length) computed by the corpus index; when non-empty
// it widens the pre-filter gate to admit same-bucket candidates
// regardless of length delta.
type Candidate struct {
	Word            string
	Lemma           string
	Language        string
	SignatureBucket string
}

// Rank scores candidates against q and returns up to k results at or
// above minScore, highest score first. Ties break by shorter
// candidate, then lexicographic order, for deterministic output.
func Rank(q string, candidates []Candidate, k int, minScore float64, opts Options) []model.SearchResult {
	qBucket := signatureBucket(q)
	qRunes := []rune(q)

	scored := make([]model.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		if !passesGate(qRunes, qBucket, c, opts) {
			continue
		}
		score := combinedScore(q, c.Word)
		if score < minScore {
			continue
		}
		scored = append(scored, model.SearchResult{
			Word:           c.Word,
			LemmatizedWord: c.Lemma,
			Score:          score,
			Method:         model.SearchMethodFuzzy,
			Language:       c.Language,
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		li, lj := len([]rune(scored[i].Word)), len([]rune(scored[j].Word))
		if li != lj {
			return li < lj
		}
		return scored[i].Word < scored[j].Word
	})

	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// passesGate implements the cheap pre-filter: length delta within
// bound, OR shared leading rune for short queries, OR matching
// signature bucket.
func passesGate(qRunes []rune, qBucket string, c Candidate, opts Options) bool {
	cRunes := []rune(c.Word)
	delta := len(qRunes) - len(cRunes)
	if delta < 0 {
		delta = -delta
	}
	if delta <= opts.maxLengthDelta() {
		return true
	}
	if qBucket != "" && c.SignatureBucket != "" && qBucket == c.SignatureBucket {
		return true
	}
	if len(qRunes) <= opts.shortQueryThreshold() && len(cRunes) > 0 && len(qRunes) > 0 && qRunes[0] == cRunes[0] {
		return true
	}
	return false
}

// combinedScore blends a weighted-ratio (Jaro-Winkler) score with a
// token-set Dice score, then applies length-aware damping so a short
// query matched against a much longer candidate doesn't score as
// highly as an equal-length near-match.
func combinedScore(q, candidate string) float64 {
	weighted := smetrics.JaroWinkler(strings.ToLower(q), strings.ToLower(candidate), jaroWinklerBoostThreshold, jaroWinklerPrefixSize)
	tokenSet := tokenSetScore(q, candidate)

	score := 0.6*weighted + 0.4*tokenSet
	return dampByLength(q, candidate, score)
}

// tokenSetScore is a Dice coefficient over whitespace-delimited token
// sets: 2*|intersection| / (|A|+|B|), 1.0 for two empty sets.
func tokenSetScore(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1.0
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0.0
	}

	shared := 0
	for tok := range ta {
		if tb[tok] {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(ta)+len(tb))
}

func tokenSet(s string) map[string]bool {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

// dampByLength reduces score when the candidate is substantially
// longer than the query: a 3-letter query matching as a substring of
// a 12-letter word is a weaker signal than the raw ratio implies.
func dampByLength(q, candidate string, score float64) float64 {
	qLen := len([]rune(q))
	cLen := len([]rune(candidate))
	if qLen == 0 || cLen <= qLen {
		return score
	}
	ratio := float64(qLen) / float64(cLen)
	// Only damp when the candidate is more than double the query's
	// length; short queries against near-equal-length candidates are
	// left alone.
	if ratio >= 0.5 {
		return score
	}
	damped := score * (0.5 + 0.5*ratio)
	if damped > score {
		return score
	}
	return damped
}

// signatureBucket computes the same cheap grouping key the corpus
// index attaches to vocabulary entries: the sorted rune multiset of
// the lowercased word plus its length.
func signatureBucket(s string) string {
	return SignatureBucket(s)
}

// SignatureBucket is the exported form of the bucket key, used by
// internal/corpus when it populates Candidate.SignatureBucket so both
// sides of the gate compute the identical key: the sorted multiset of
// runes in the lowercased word (repeats kept, not deduplicated) plus
// its rune length, so anagrams of different lengths (e.g.
// "mississippi" and "imps") never collide into the same bucket.
func SignatureBucket(s string) string {
	lower := strings.ToLower(s)
	runes := []rune(lower)
	sorted := make([]rune, len(runes))
	copy(sorted, runes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return string(sorted) + "#" + strconv.Itoa(len(runes))
}
