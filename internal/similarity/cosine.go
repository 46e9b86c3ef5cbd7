// Package similarity scores how well a set of per-note summaries agrees
// with their comprehensive summary (spec.md §4.G): term-frequency vectors
// over a CJK+English-aware tokenizer, compared by cosine similarity.
//
// No segmentation/NLP library appears anywhere in the example pack, so this
// is hand-rolled rather than imported — see DESIGN.md for the justification
// this package's presence as stdlib-only code requires.
package similarity

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Tokenize splits text into lowercase tokens. Runs of Latin letters/digits
// are kept as single tokens (word-level, the usual English unit); every CJK
// (Han/Hiragana/Katakana/Hangul) rune is emitted as its own token, since
// those scripts don't delimit words with spaces and single ideographs carry
// most of the lexical signal for a coarse similarity score.
func Tokenize(text string) []string {
	normalized := norm.NFC.String(text)
	var tokens []string
	var word strings.Builder

	flush := func() {
		if word.Len() > 0 {
			tokens = append(tokens, strings.ToLower(word.String()))
			word.Reset()
		}
	}

	for _, r := range normalized {
		switch {
		case isCJK(r):
			flush()
			tokens = append(tokens, strings.ToLower(string(r)))
		case unicode.IsLetter(r), unicode.IsDigit(r):
			word.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

// termVector builds a term-frequency vector from tokens.
func termVector(tokens []string) map[string]float64 {
	v := make(map[string]float64, len(tokens))
	for _, tok := range tokens {
		v[tok]++
	}
	return v
}

// Cosine returns the cosine similarity of a and b's token-frequency
// vectors, clamped to [0, 1]. Two empty texts are defined as similarity 0
// (no evidence of agreement, not perfect agreement).
func Cosine(a, b string) float64 {
	va := termVector(Tokenize(a))
	vb := termVector(Tokenize(b))
	if len(va) == 0 || len(vb) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for term, freqA := range va {
		normA += freqA * freqA
		if freqB, ok := vb[term]; ok {
			dot += freqA * freqB
		}
	}
	for _, freqB := range vb {
		normB += freqB * freqB
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}

	sim := dot / denom
	return clamp(sim, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
