// Package expand generates alternate phrasings of a retrieval query to
// broaden recall. Variants are embedded and fetched like the original
// query; merging the result sets happens in the retriever.
package expand

import (
	"fmt"
	"strings"

	"github.com/passagekit/passage/internal/rank"
)

// Strategy selects how query variants are generated.
type Strategy string

const (
	// StrategyNone disables expansion.
	StrategyNone Strategy = "none"
	// StrategySynonym substitutes known synonyms for content words.
	StrategySynonym Strategy = "synonym"
	// StrategyMultiQuery applies fixed rephrasing templates.
	StrategyMultiQuery Strategy = "multiquery"
)

// Config holds configuration for the query expander.
type Config struct {
	// Strategy selects the expansion technique. The strategies are
	// mutually exclusive; empty means none.
	Strategy Strategy

	// MaxVariants caps the number of generated variants, not counting
	// the original query. Defaults to 3.
	MaxVariants int

	// Synonyms overrides the built-in synonym table. Keys are lowercase
	// words, values their alternatives.
	Synonyms map[string][]string
}

// Expander produces alternate phrasings of a query.
type Expander struct {
	strategy Strategy
	max      int
	synonyms map[string][]string
}

// New creates an expander. An unknown strategy is an error.
func New(cfg Config) (*Expander, error) {
	strategy := cfg.Strategy
	switch strategy {
	case StrategyNone, StrategySynonym, StrategyMultiQuery:
	case "":
		strategy = StrategyNone
	default:
		return nil, fmt.Errorf("unknown expansion strategy: %q", cfg.Strategy)
	}

	max := cfg.MaxVariants
	if max <= 0 {
		max = 3
	}
	synonyms := cfg.Synonyms
	if synonyms == nil {
		synonyms = defaultSynonyms
	}
	return &Expander{strategy: strategy, max: max, synonyms: synonyms}, nil
}

// Enabled reports whether Expand can produce variants.
func (e *Expander) Enabled() bool {
	return e.strategy != StrategyNone
}

// Expand returns alternate phrasings of query, at most MaxVariants. The
// original query is not included, and variants that collapse back to it
// are dropped.
func (e *Expander) Expand(query string) []string {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	var variants []string
	switch e.strategy {
	case StrategySynonym:
		variants = e.synonymVariants(query)
	case StrategyMultiQuery:
		variants = e.templateVariants(query)
	default:
		return nil
	}
	return dedupe(query, variants, e.max)
}

// synonymVariants generates one variant per content word that has a
// known synonym, substituting only that word so each variant stays
// close to the original phrasing.
func (e *Expander) synonymVariants(query string) []string {
	words := strings.Fields(query)
	var variants []string
	for i, word := range words {
		lower := strings.ToLower(word)
		if rank.IsStopword(lower) {
			continue
		}
		alts, ok := e.synonyms[lower]
		if !ok || len(alts) == 0 {
			continue
		}
		replaced := make([]string, len(words))
		copy(replaced, words)
		replaced[i] = alts[0]
		variants = append(variants, strings.Join(replaced, " "))
	}
	return variants
}

// templateVariants rephrases the query as a question, a how-question
// and a bare keyword list.
func (e *Expander) templateVariants(query string) []string {
	variants := []string{
		fmt.Sprintf("what is %s?", query),
		fmt.Sprintf("how does %s work?", query),
	}
	if keywords := rank.Tokenize(query); len(keywords) > 0 {
		variants = append(variants, strings.Join(keywords, " "))
	}
	return variants
}

// dedupe drops duplicate variants and anything equal to the original
// query, capping the result at max.
func dedupe(original string, variants []string, max int) []string {
	seen := map[string]struct{}{strings.ToLower(original): {}}
	var out []string
	for _, v := range variants {
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
		if len(out) >= max {
			break
		}
	}
	return out
}
