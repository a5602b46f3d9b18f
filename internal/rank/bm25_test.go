package rank

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty",
			input:    "",
			expected: nil,
		},
		{
			name:     "lowercases and strips punctuation",
			input:    "Vector, Database!",
			expected: []string{"vector", "database"},
		},
		{
			name:     "drops stopwords",
			input:    "the quick fox and the dog",
			expected: []string{"quick", "fox", "dog"},
		},
		{
			name:     "drops single characters",
			input:    "a b c query",
			expected: []string{"query"},
		},
		{
			name:     "keeps digits",
			input:    "retry after 500ms",
			expected: []string{"retry", "after", "500ms"},
		},
		{
			name:     "preserves duplicates",
			input:    "retry retry retry",
			expected: []string{"retry", "retry", "retry"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Tokenize(tt.input)
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("Tokenize(%q) = %v, expected %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestIsStopword(t *testing.T) {
	if !IsStopword("The") {
		t.Error("expected 'The' to be a stopword")
	}
	if IsStopword("database") {
		t.Error("expected 'database' not to be a stopword")
	}
}

func TestBM25Scores_TermFrequency(t *testing.T) {
	// Same-length documents, so only term frequency differs
	docs := []string{
		"apple pear pear",
		"apple apple pear",
	}
	scores := BM25Scores("apple", docs, DefaultBM25Params())

	if scores[1] <= scores[0] {
		t.Errorf("expected higher tf to score higher, got %v", scores)
	}
}

func TestBM25Scores_RareTermDiscriminates(t *testing.T) {
	docs := []string{
		"apple banana",
		"banana cherry",
	}
	scores := BM25Scores("cherry", docs, DefaultBM25Params())

	if scores[0] != 0 {
		t.Errorf("expected 0 for document without the term, got %f", scores[0])
	}
	if scores[1] <= 0 {
		t.Errorf("expected positive score for matching document, got %f", scores[1])
	}
}

func TestBM25Scores_LengthNormalization(t *testing.T) {
	docs := []string{
		"apple banana apple",
		"banana cherry",
		"apple",
	}

	// With b > 0 the short document with one occurrence beats the long
	// document with two
	scores := BM25Scores("apple", docs, DefaultBM25Params())
	if scores[2] <= scores[0] {
		t.Errorf("expected length normalization to favor short doc, got %v", scores)
	}

	// With b = 0 raw term frequency wins
	flat := BM25Scores("apple", docs, BM25Params{K1: 1.5, B: 0})
	if flat[0] <= flat[2] {
		t.Errorf("expected tf to dominate with b=0, got %v", flat)
	}
}

func TestBM25Scores_NonNegative(t *testing.T) {
	// A term present in every document must not go negative
	docs := []string{"apple one", "apple two", "apple three"}
	scores := BM25Scores("apple", docs, DefaultBM25Params())

	for i, s := range scores {
		if s < 0 {
			t.Errorf("score %d is negative: %f", i, s)
		}
		if s == 0 {
			t.Errorf("score %d should be positive for a matching doc", i)
		}
	}
}

func TestBM25Scores_EmptyInputs(t *testing.T) {
	if scores := BM25Scores("apple", nil, DefaultBM25Params()); len(scores) != 0 {
		t.Errorf("expected empty scores for no docs, got %v", scores)
	}

	scores := BM25Scores("", []string{"apple"}, DefaultBM25Params())
	if scores[0] != 0 {
		t.Errorf("expected 0 for empty query, got %f", scores[0])
	}

	scores = BM25Scores("the and of", []string{"apple"}, DefaultBM25Params())
	if scores[0] != 0 {
		t.Errorf("expected 0 for stopword-only query, got %f", scores[0])
	}
}

func TestBM25Scores_Deterministic(t *testing.T) {
	docs := []string{
		"vector database retries on failure",
		"the pool hands out connections",
		"retries use exponential backoff with jitter",
	}
	query := "vector database retries"

	first := BM25Scores(query, docs, DefaultBM25Params())
	second := BM25Scores(query, docs, DefaultBM25Params())

	if !reflect.DeepEqual(first, second) {
		t.Errorf("expected identical scores across calls, got %v vs %v", first, second)
	}
}
