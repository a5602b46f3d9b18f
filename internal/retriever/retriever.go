// Package retriever orchestrates the retrieval pipeline: embed the
// query, fetch candidates from the vector store, fuse dense and lexical
// scores, optionally expand the query and re-rank the shortlist, and
// enforce a token budget on the final ordered list.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/passagekit/passage/internal/embedder"
	"github.com/passagekit/passage/internal/expand"
	"github.com/passagekit/passage/internal/metrics"
	"github.com/passagekit/passage/internal/rank"
	"github.com/passagekit/passage/internal/reranker"
	"github.com/passagekit/passage/internal/tokens"
	"github.com/passagekit/passage/internal/vectorstore"
)

// Candidate is one retrieved passage with its scores. Score holds the
// ordering score: the fused score, or the cross-encoder score for
// re-ranked candidates.
type Candidate struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id,omitempty"`
	Content    string            `json:"content"`
	Score      float64           `json:"score"`
	TokenCount int               `json:"token_count"`
	Metadata   map[string]string `json:"metadata,omitempty"`

	DenseScore   float64 `json:"dense_score"`
	LexicalScore float64 `json:"lexical_score"`
	FusedScore   float64 `json:"fused_score"`
	RerankScore  float64 `json:"rerank_score,omitempty"`
}

// Result is an ordered retrieval with its token accounting.
type Result struct {
	Candidates  []Candidate `json:"candidates"`
	TotalTokens int         `json:"total_tokens"`
	TookMS      int64       `json:"took_ms"`
}

// Config holds the retriever defaults, read once at startup.
type Config struct {
	// Collection is the default collection to search.
	Collection string

	// TopK is how many candidates each store fetch returns.
	TopK int

	// FinalK caps the number of returned candidates.
	FinalK int

	// Budget is the token budget over returned content.
	Budget int

	// MinScore is an optional dense score threshold; 0 disables it.
	MinScore float32

	// RerankTopK is the size of the fused shortlist passed to the
	// re-ranker. Candidates beyond it keep their fused order.
	RerankTopK int

	Weights rank.FusionWeights
	BM25    rank.BM25Params
}

// Options override retrieval parameters per call; zero values fall back
// to the configured defaults.
type Options struct {
	Collection string
	TopK       int
	FinalK     int
	Budget     int

	// Filter restricts candidates to those whose payload matches every
	// key/value pair.
	Filter map[string]string
}

// Retriever runs the retrieval pipeline. Concurrent calls are
// independent; the pooled store underneath is the only shared state.
type Retriever struct {
	embedder embedder.Embedder
	store    vectorstore.VectorStore
	expander *expand.Expander
	reranker reranker.Reranker
	tokens   tokens.Counter
	cfg      Config
}

// Option is a functional option for configuring the Retriever.
type Option func(*Retriever)

// WithExpander enables query expansion.
func WithExpander(e *expand.Expander) Option {
	return func(r *Retriever) {
		r.expander = e
	}
}

// WithReranker enables cross-encoder re-ranking of the fused shortlist.
func WithReranker(rr reranker.Reranker) Option {
	return func(r *Retriever) {
		r.reranker = rr
	}
}

// WithTokenCounter overrides the token counter used for budgeting.
func WithTokenCounter(c tokens.Counter) Option {
	return func(r *Retriever) {
		r.tokens = c
	}
}

// New creates a Retriever. The embedder and store are required;
// expansion and re-ranking are optional.
func New(emb embedder.Embedder, store vectorstore.VectorStore, cfg Config, opts ...Option) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = 20
	}
	if cfg.FinalK <= 0 {
		cfg.FinalK = 5
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 2048
	}
	if cfg.RerankTopK <= 0 {
		cfg.RerankTopK = 20
	}
	if cfg.Weights.Dense <= 0 && cfg.Weights.Lexical <= 0 {
		cfg.Weights = rank.DefaultFusionWeights()
	}
	if cfg.BM25 == (rank.BM25Params{}) {
		cfg.BM25 = rank.DefaultBM25Params()
	}

	r := &Retriever{
		embedder: emb,
		store:    store,
		tokens:   tokens.Approx{},
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve runs the full pipeline for one query and returns the ordered,
// budgeted candidate list. There is no partial success: any stage
// failure fails the whole call with the originating stage identified.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) (*Result, error) {
	start := time.Now()
	result, err := r.retrieve(ctx, query, opts)
	metrics.ObserveRetrieval(time.Since(start))
	if err != nil {
		kind := KindStoreFailure
		var rerr *Error
		if errors.As(err, &rerr) {
			kind = rerr.Kind
		}
		metrics.IncRetrieval("error", string(kind))
		return nil, err
	}

	result.TookMS = time.Since(start).Milliseconds()
	metrics.IncRetrieval("ok", "")
	return result, nil
}

func (r *Retriever) retrieve(ctx context.Context, query string, opts Options) (*Result, error) {
	query = strings.TrimSpace(query)
	collection := opts.Collection
	if collection == "" {
		collection = r.cfg.Collection
	}
	topK := opts.TopK
	if topK == 0 {
		topK = r.cfg.TopK
	}
	finalK := opts.FinalK
	if finalK == 0 {
		finalK = r.cfg.FinalK
	}
	budget := opts.Budget
	if budget == 0 {
		budget = r.cfg.Budget
	}

	if query == "" {
		return nil, invalidf("query is required")
	}
	if collection == "" {
		return nil, invalidf("collection is required")
	}
	if topK < 0 {
		return nil, invalidf("top_k must be positive, got %d", topK)
	}
	if finalK < 0 {
		return nil, invalidf("final_k must be positive, got %d", finalK)
	}
	if budget < 0 {
		return nil, invalidf("token budget must be positive, got %d", budget)
	}
	for k, v := range opts.Filter {
		if k == "" {
			return nil, invalidf("filter keys cannot be empty")
		}
		if v == "" {
			return nil, invalidf("filter value for %q cannot be empty", k)
		}
	}

	// Step 1: Generate query variants if expansion is enabled
	queries := []string{query}
	if r.expander != nil && r.expander.Enabled() {
		expandStart := time.Now()
		queries = append(queries, r.expander.Expand(query)...)
		metrics.ObserveStage("expanding", time.Since(expandStart))
	}

	// Step 2: Embed all phrasings in one batch
	embedStart := time.Now()
	vectors, err := r.embedder.EmbedBatch(ctx, queries)
	metrics.ObserveStage("embedding", time.Since(embedStart))
	if err != nil {
		return nil, classify(StageEmbedding, err)
	}

	// Step 3: Fetch candidates for every phrasing concurrently
	fetchStart := time.Now()
	resultSets := make([][]vectorstore.SearchResult, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i := range queries {
		g.Go(func() error {
			results, err := r.store.Search(gctx, collection, vectors[i], topK, r.cfg.MinScore, opts.Filter)
			if err != nil {
				return err
			}
			resultSets[i] = results
			return nil
		})
	}
	err = g.Wait()
	metrics.ObserveStage("fetching", time.Since(fetchStart))
	if err != nil {
		return nil, classify(StageFetching, err)
	}

	candidates := mergeResults(resultSets)
	if len(candidates) == 0 {
		return &Result{Candidates: []Candidate{}}, nil
	}

	// Step 4: Fuse dense and lexical scores
	fuseStart := time.Now()
	contents := make([]string, len(candidates))
	dense := make([]float64, len(candidates))
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		contents[i], dense[i], ids[i] = c.Content, c.DenseScore, c.ID
	}
	lexical := rank.BM25Scores(query, contents, r.cfg.BM25)
	fused := rank.FuseScores(dense, lexical, r.cfg.Weights)
	order := rank.Ranking(ids, fused)

	ordered := make([]Candidate, len(order))
	for pos, idx := range order {
		c := candidates[idx]
		c.LexicalScore = lexical[idx]
		c.FusedScore = fused[idx]
		c.Score = fused[idx]
		ordered[pos] = c
	}
	candidates = ordered
	metrics.ObserveStage("fusing", time.Since(fuseStart))

	// Step 5: Re-rank the fused shortlist
	if r.reranker != nil {
		rerankStart := time.Now()
		err := r.rerank(ctx, query, candidates)
		metrics.ObserveStage("reranking", time.Since(rerankStart))
		if err != nil {
			return nil, classify(StageReranking, err)
		}
	}

	// Step 6: Enforce the token budget
	selected, total := r.applyBudget(candidates, finalK, budget)
	return &Result{Candidates: selected, TotalTokens: total}, nil
}

// rerank reorders the leading RerankTopK candidates in place by their
// cross-encoder scores; the remainder keeps its fused order after them.
func (r *Retriever) rerank(ctx context.Context, query string, candidates []Candidate) error {
	k := r.cfg.RerankTopK
	if k > len(candidates) {
		k = len(candidates)
	}
	if k == 0 {
		return nil
	}

	head := candidates[:k]
	docs := make([]string, k)
	for i, c := range head {
		docs[i] = c.Content
	}

	scores, err := r.reranker.Rerank(ctx, query, docs)
	if err != nil {
		return err
	}
	if len(scores) != k {
		return fmt.Errorf("re-ranker returned %d scores for %d documents", len(scores), k)
	}

	for i := range head {
		head[i].RerankScore = scores[i]
		head[i].Score = scores[i]
	}
	sort.SliceStable(head, func(i, j int) bool {
		if head[i].Score == head[j].Score {
			return head[i].ID < head[j].ID
		}
		return head[i].Score > head[j].Score
	})
	return nil
}

// applyBudget walks the ordered candidates, keeping ones that fit the
// remaining token budget until finalK are selected. A candidate that
// does not fit is skipped whole, never truncated; an empty selection is
// a valid outcome.
func (r *Retriever) applyBudget(candidates []Candidate, finalK, budget int) ([]Candidate, int) {
	selected := make([]Candidate, 0, finalK)
	total := 0
	for _, c := range candidates {
		if len(selected) == finalK {
			break
		}
		count := r.tokens.Count(c.Content)
		if total+count > budget {
			continue
		}
		c.TokenCount = count
		selected = append(selected, c)
		total += count
	}
	return selected, total
}

// mergeResults merges per-phrasing result sets by candidate ID, keeping
// the highest dense score seen for duplicates. First-seen order is
// preserved so fusion input is deterministic.
func mergeResults(resultSets [][]vectorstore.SearchResult) []Candidate {
	var merged []Candidate
	index := make(map[string]int)
	for _, results := range resultSets {
		for _, res := range results {
			if i, ok := index[res.ID]; ok {
				if float64(res.Score) > merged[i].DenseScore {
					merged[i].DenseScore = float64(res.Score)
				}
				continue
			}
			index[res.ID] = len(merged)
			merged = append(merged, Candidate{
				ID:         res.ID,
				DocumentID: res.DocumentID,
				Content:    res.Content,
				Metadata:   res.Metadata,
				DenseScore: float64(res.Score),
			})
		}
	}
	return merged
}
