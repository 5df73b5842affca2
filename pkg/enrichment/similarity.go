package enrichment

import (
	"regexp"
	"strings"
)

var (
	parenthetical = regexp.MustCompile(`\([^)]*\)`)
	nameStrip     = regexp.MustCompile(`[^a-z0-9æøå\s-]`)
	wsRun         = regexp.MustCompile(`\s+`)
)

// stopwords are generic name tokens that carry no matching signal.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "of": {}, "in": {}, "to": {},
	"international": {}, "organization": {}, "organisasjon": {},
	"centre": {}, "center": {}, "fund": {}, "group": {}, "global": {},
	"world": {}, "united": {}, "nations": {},
}

// NormalizeName lowercases a name, drops parentheticals and punctuation,
// and collapses whitespace.
func NormalizeName(text string) string {
	text = strings.ToLower(text)
	text = strings.ReplaceAll(text, "&", " and ")
	text = parenthetical.ReplaceAllString(text, " ")
	text = nameStrip.ReplaceAllString(text, " ")
	return strings.TrimSpace(wsRun.ReplaceAllString(text, " "))
}

func tokenSet(text string) map[string]struct{} {
	tokens := map[string]struct{}{}
	for _, t := range strings.Fields(NormalizeName(text)) {
		if len(t) < 3 {
			continue
		}
		if _, stop := stopwords[t]; stop {
			continue
		}
		if isDigits(t) {
			continue
		}
		tokens[t] = struct{}{}
	}
	return tokens
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// Similarity scores two organization names in [0, 1]: a character-level
// sequence ratio weighted 0.65, a token Jaccard weighted 0.35, and a 0.1
// boost when one normalized name contains the other.
func Similarity(a, b string) float64 {
	aNorm := NormalizeName(a)
	bNorm := NormalizeName(b)
	if aNorm == "" || bNorm == "" {
		return 0
	}

	seq := sequenceRatio(aNorm, bNorm)

	aTokens := tokenSet(a)
	bTokens := tokenSet(b)
	jaccard := 0.0
	if len(aTokens) > 0 && len(bTokens) > 0 {
		intersection := 0
		for t := range aTokens {
			if _, ok := bTokens[t]; ok {
				intersection++
			}
		}
		union := len(aTokens) + len(bTokens) - intersection
		jaccard = float64(intersection) / float64(union)
	}

	score := seq*0.65 + jaccard*0.35
	if strings.Contains(aNorm, bNorm) || strings.Contains(bNorm, aNorm) {
		score += 0.1
	}
	if score > 1 {
		score = 1
	}
	return score
}

// sequenceRatio is 2*M/T over the total length T of both strings, where
// M is the length sum of the longest matching blocks found recursively.
func sequenceRatio(a, b string) float64 {
	ar := []rune(a)
	br := []rune(b)
	total := len(ar) + len(br)
	if total == 0 {
		return 1
	}
	matched := matchLen(ar, br, 0, len(ar), 0, len(br))
	return 2 * float64(matched) / float64(total)
}

func matchLen(a, b []rune, alo, ahi, blo, bhi int) int {
	i, j, size := longestMatch(a, b, alo, ahi, blo, bhi)
	if size == 0 {
		return 0
	}
	return size +
		matchLen(a, b, alo, i, blo, j) +
		matchLen(a, b, i+size, ahi, j+size, bhi)
}

func longestMatch(a, b []rune, alo, ahi, blo, bhi int) (int, int, int) {
	b2j := map[rune][]int{}
	for j := blo; j < bhi; j++ {
		b2j[b[j]] = append(b2j[b[j]], j)
	}

	besti, bestj, bestsize := alo, blo, 0
	j2len := map[int]int{}
	for i := alo; i < ahi; i++ {
		newj2len := map[int]int{}
		for _, j := range b2j[a[i]] {
			k := j2len[j-1] + 1
			newj2len[j] = k
			if k > bestsize {
				besti, bestj, bestsize = i-k+1, j-k+1, k
			}
		}
		j2len = newj2len
	}
	return besti, bestj, bestsize
}
