package retriever

import (
	"errors"
	"fmt"

	"github.com/passagekit/passage/internal/embedder"
	"github.com/passagekit/passage/internal/vectorstore"
)

// Kind classifies retrieval failures so callers and dashboards can
// tell a bad request from a degraded dependency.
type Kind string

const (
	// KindInvalidInput marks unusable call parameters. Never retried.
	KindInvalidInput Kind = "invalid_input"
	// KindEmbeddingFailure marks an embedding model error.
	KindEmbeddingFailure Kind = "embedding_failure"
	// KindPoolExhausted marks an acquire timeout on the connection pool.
	KindPoolExhausted Kind = "pool_exhausted"
	// KindCircuitOpen marks a fail-fast rejection by the circuit breaker.
	KindCircuitOpen Kind = "circuit_open"
	// KindStoreFailure marks a store error that survived retries.
	KindStoreFailure Kind = "store_operation_failure"
	// KindRerankFailure marks a cross-encoder error. The call fails
	// rather than silently falling back to fused ordering.
	KindRerankFailure Kind = "rerank_failure"
)

// Stage identifies the pipeline stage a call failed in.
type Stage string

const (
	StageValidating Stage = "validating"
	StageExpanding  Stage = "expanding"
	StageEmbedding  Stage = "embedding"
	StageFetching   Stage = "fetching"
	StageFusing     Stage = "fusing"
	StageReranking  Stage = "reranking"
	StageBudgeting  Stage = "budgeting"
)

// Error is a classified retrieval failure carrying the originating
// stage. The wrapped error is for server-side logs; callers should
// only surface Kind and Stage.
type Error struct {
	Kind  Kind
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("retrieval failed at %s (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// invalidf builds an InvalidInput error from a format string.
func invalidf(format string, args ...any) *Error {
	return &Error{
		Kind:  KindInvalidInput,
		Stage: StageValidating,
		Err:   fmt.Errorf(format, args...),
	}
}

// classify wraps err with the taxonomy kind inferred from the sentinel
// errors of the lower layers, falling back to the stage's natural kind.
func classify(stage Stage, err error) *Error {
	kind := KindStoreFailure
	switch {
	case errors.Is(err, vectorstore.ErrCircuitOpen):
		kind = KindCircuitOpen
	case errors.Is(err, vectorstore.ErrPoolExhausted):
		kind = KindPoolExhausted
	case errors.Is(err, embedder.ErrTextTooLong), errors.Is(err, embedder.ErrNoInput):
		kind = KindInvalidInput
	default:
		switch stage {
		case StageEmbedding:
			kind = KindEmbeddingFailure
		case StageReranking:
			kind = KindRerankFailure
		}
	}
	return &Error{Kind: kind, Stage: stage, Err: err}
}
