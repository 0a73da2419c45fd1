package storage

import (
	"context"
	"fmt"
	"os"
	"strings"

	"videoAsk/config"
	"videoAsk/core"
)

// VectorIndex abstracts the per-modality similarity search backend.
// Results are ordered by descending similarity (1 - cosine distance),
// restricted to the given scope of video ids; limit is a strict upper
// bound and short results are normal. No deduplication or cross-modality
// logic happens here.
type VectorIndex interface {
	SearchTranscripts(ctx context.Context, vector []float32, scope []string, limit int) ([]core.TranscriptHit, error)
	SearchFrames(ctx context.Context, vector []float32, scope []string, limit int) ([]core.FrameHit, error)
}

// NewIndexFromEnv selects the backend via the STORE environment variable
// (pgvector, milvus, memory), falling back to the in-memory index when the
// configured backend cannot be initialized.
func NewIndexFromEnv() (VectorIndex, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Warning: Failed to load config (%v), using memory index\n", err)
		return NewMemoryIndex(), nil
	}

	storeKind := strings.ToLower(strings.TrimSpace(os.Getenv("STORE")))
	switch storeKind {
	case "pgvector":
		s, err := NewPgIndex(cfg.PostgresURL, cfg.EmbeddingDim)
		if err != nil {
			fmt.Printf("Warning: Failed to initialize PgVector index (%v), falling back to memory index\n", err)
			return NewMemoryIndex(), nil
		}
		return s, nil
	case "milvus":
		s, err := NewMilvusIndex(cfg.EmbeddingDim)
		if err != nil {
			fmt.Printf("Warning: Failed to initialize Milvus index (%v), falling back to memory index\n", err)
			return NewMemoryIndex(), nil
		}
		return s, nil
	default:
		return NewMemoryIndex(), nil
	}
}
