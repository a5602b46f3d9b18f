// Package rank scores and orders retrieval candidates.
package rank

import (
	"math"
	"strings"
	"unicode"
)

// BM25Params control term saturation (k1) and length normalization (b).
type BM25Params struct {
	K1 float64
	B  float64
}

// DefaultBM25Params returns the conventional parameter values.
func DefaultBM25Params() BM25Params {
	return BM25Params{K1: 1.5, B: 0.75}
}

// stopwords contains common English words excluded from lexical scoring.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "do": true, "does": true, "did": true,
	"have": true, "has": true, "had": true, "be": true, "been": true,
	"being": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "can": true, "shall": true, "not": true,
	"no": true, "and": true, "or": true, "but": true, "if": true,
	"then": true, "than": true, "so": true, "as": true, "at": true,
	"by": true, "for": true, "from": true, "in": true, "into": true,
	"of": true, "on": true, "to": true, "with": true, "about": true,
	"up": true, "out": true, "it": true, "its": true, "this": true,
	"that": true, "what": true, "which": true, "who": true, "how": true,
	"when": true, "where": true, "why": true, "you": true, "me": true,
	"i": true, "my": true, "your": true, "we": true, "they": true,
	"he": true, "she": true, "her": true, "him": true, "us": true,
	"them": true,
}

// Tokenize splits text into lowercase alphanumeric tokens, dropping
// stopwords and single characters. Duplicates are preserved in order.
func Tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var tokens []string
	for _, w := range words {
		if len(w) < 2 || stopwords[w] {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}

// IsStopword reports whether w is on the stopword list.
func IsStopword(w string) bool {
	return stopwords[strings.ToLower(w)]
}

// BM25Scores scores each document against the query. Corpus statistics
// (document frequency, average length) are computed over just these
// documents, so scores are only comparable within one call.
func BM25Scores(query string, docs []string, params BM25Params) []float64 {
	scores := make([]float64, len(docs))
	if len(docs) == 0 {
		return scores
	}

	queryTerms := uniqueTerms(query)
	if len(queryTerms) == 0 {
		return scores
	}

	docFreqs := make([]map[string]int, len(docs))
	docLens := make([]int, len(docs))
	var totalLen int
	for i, doc := range docs {
		tokens := Tokenize(doc)
		freqs := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			freqs[tok]++
		}
		docFreqs[i] = freqs
		docLens[i] = len(tokens)
		totalLen += len(tokens)
	}

	avgLen := float64(totalLen) / float64(len(docs))
	if avgLen == 0 {
		return scores
	}

	n := float64(len(docs))
	for _, term := range queryTerms {
		df := 0
		for _, freqs := range docFreqs {
			if freqs[term] > 0 {
				df++
			}
		}
		if df == 0 {
			continue
		}

		idf := math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))
		for i, freqs := range docFreqs {
			tf := float64(freqs[term])
			if tf == 0 {
				continue
			}
			norm := params.K1 * (1 - params.B + params.B*float64(docLens[i])/avgLen)
			scores[i] += idf * tf * (params.K1 + 1) / (tf + norm)
		}
	}

	return scores
}

// uniqueTerms tokenizes text and deduplicates, preserving first-seen order.
func uniqueTerms(text string) []string {
	tokens := Tokenize(text)
	seen := make(map[string]bool, len(tokens))
	var terms []string
	for _, tok := range tokens {
		if seen[tok] {
			continue
		}
		seen[tok] = true
		terms = append(terms, tok)
	}
	return terms
}
