package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aman-cerp/corpuscore/internal/model"
)

func candidates(words ...string) []Candidate {
	out := make([]Candidate, len(words))
	for i, w := range words {
		out[i] = Candidate{Word: w, Lemma: w, Language: "en", SignatureBucket: signatureBucket(w)}
	}
	return out
}

func TestRank_MisspellingMatchesIntendedWordFirst(t *testing.T) {
	results := Rank("helpp", candidates("help", "hello", "helicopter", "zebra"), 5, 0.5, Options{})

	assert.NotEmpty(t, results)
	assert.Equal(t, "help", results[0].Word)
	assert.GreaterOrEqual(t, results[0].Score, 0.8)
	assert.Equal(t, model.SearchMethodFuzzy, results[0].Method)
}

func TestRank_FiltersOutBelowMinScore(t *testing.T) {
	results := Rank("help", candidates("help", "zzzzzzzz"), 5, 0.9, Options{})

	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.9)
	}
	var words []string
	for _, r := range results {
		words = append(words, r.Word)
	}
	assert.NotContains(t, words, "zzzzzzzz")
}

func TestRank_BoundedByK(t *testing.T) {
	results := Rank("cat", candidates("cat", "cart", "cast", "cats", "bat"), 2, 0.0, Options{})
	assert.LessOrEqual(t, len(results), 2)
}

func TestRank_ExactMatchRanksFirst(t *testing.T) {
	results := Rank("ab", candidates("ab", "abc"), 5, 0.0, Options{})
	require := assert.New(t)
	require.True(len(results) >= 1)
	// exact match "ab" must score highest and come first
	require.Equal("ab", results[0].Word)
}

func TestRank_PreFilterGateExcludesWildlyDifferentLengths(t *testing.T) {
	long := "supercalifragilisticexpialidocious"
	results := Rank("cat", candidates("cat", long), 10, 0.0, Options{})

	var words []string
	for _, r := range results {
		words = append(words, r.Word)
	}
	assert.NotContains(t, words, long)
}

func TestRank_SignatureBucketAdmitsAnagram(t *testing.T) {
	opts := Options{MaxLengthDelta: 0}
	cands := []Candidate{
		{Word: "act", SignatureBucket: signatureBucket("act")},
	}
	results := Rank("cat", cands, 5, 0.0, opts)
	assert.Len(t, results, 1)
}

func TestSignatureBucket_DistinguishesRepeatedLetterDifferentLength(t *testing.T) {
	// "mississippi" and "imps" share the same unique-letter set
	// {i,m,p,s} but differ in length and repeat counts; deduplicating
	// runes collapses both to the same bucket, which would wrongly
	// admit "imps" as an anagram candidate for "mississippi".
	assert.NotEqual(t, SignatureBucket("mississippi"), SignatureBucket("imps"))
}

func TestSignatureBucket_TrueAnagramsShareBucket(t *testing.T) {
	assert.Equal(t, SignatureBucket("cat"), SignatureBucket("act"))
}

func TestTokenSetScore_IdenticalTokenSetsScoreOne(t *testing.T) {
	assert.Equal(t, 1.0, tokenSetScore("hello world", "world hello"))
}

func TestTokenSetScore_EmptyBothScoresOne(t *testing.T) {
	assert.Equal(t, 1.0, tokenSetScore("", ""))
}

func TestTokenSetScore_DisjointScoresZero(t *testing.T) {
	assert.Equal(t, 0.0, tokenSetScore("foo", "bar"))
}
