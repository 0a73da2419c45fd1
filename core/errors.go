package core

import "errors"

// ErrEmptyScope is returned before any external call when the caller
// supplied no video identifiers.
var ErrEmptyScope = errors.New("at least one video id is required")

// EmbeddingError wraps a text embedding failure. Fatal to the retrieval
// call: without a query vector there is nothing to search.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string { return "embedding service: " + e.Err.Error() }
func (e *EmbeddingError) Unwrap() error { return e.Err }

// VisionError wraps an image captioning failure. The orchestrator absorbs
// it and degrades to text-only retrieval; it never reaches the caller.
type VisionError struct {
	Err error
}

func (e *VisionError) Error() string { return "vision service: " + e.Err.Error() }
func (e *VisionError) Unwrap() error { return e.Err }

// IndexError wraps a vector index failure. Propagated: a silently empty
// bundle would let the answering model respond with false confidence.
type IndexError struct {
	Op  string
	Err error
}

func (e *IndexError) Error() string { return "vector index " + e.Op + ": " + e.Err.Error() }
func (e *IndexError) Unwrap() error { return e.Err }
