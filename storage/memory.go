package storage

import (
	"context"
	"math"
	"sort"
	"sync"

	"videoAsk/core"
)

// MemoryIndex keeps vectors in process memory. Fallback backend when no
// store is configured, and the index used by tests.
type MemoryIndex struct {
	mu          sync.RWMutex
	transcripts []memoryRecord[core.TranscriptHit]
	frames      []memoryRecord[core.FrameHit]
}

type memoryRecord[H any] struct {
	hit    H
	vector []float32
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

func (s *MemoryIndex) AddTranscript(hit core.TranscriptHit, vector []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts = append(s.transcripts, memoryRecord[core.TranscriptHit]{hit: hit, vector: vector})
}

func (s *MemoryIndex) AddFrame(hit core.FrameHit, vector []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, memoryRecord[core.FrameHit]{hit: hit, vector: vector})
}

func (s *MemoryIndex) SearchTranscripts(ctx context.Context, vector []float32, scope []string, limit int) ([]core.TranscriptHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inScope := scopeSet(scope)
	type scored struct {
		i     int
		score float64
	}
	scores := make([]scored, 0, len(s.transcripts))
	for i, rec := range s.transcripts {
		if _, ok := inScope[rec.hit.VideoID]; !ok {
			continue
		}
		scores = append(scores, scored{i, cosineSimilarity(vector, rec.vector)})
	}
	// 稳定排序保证同分时按插入顺序
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if limit > 0 && limit < len(scores) {
		scores = scores[:limit]
	}

	hits := make([]core.TranscriptHit, 0, len(scores))
	for _, sc := range scores {
		h := s.transcripts[sc.i].hit
		h.Similarity = sc.score
		hits = append(hits, h)
	}
	return hits, nil
}

func (s *MemoryIndex) SearchFrames(ctx context.Context, vector []float32, scope []string, limit int) ([]core.FrameHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inScope := scopeSet(scope)
	type scored struct {
		i     int
		score float64
	}
	scores := make([]scored, 0, len(s.frames))
	for i, rec := range s.frames {
		if _, ok := inScope[rec.hit.VideoID]; !ok {
			continue
		}
		scores = append(scores, scored{i, cosineSimilarity(vector, rec.vector)})
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if limit > 0 && limit < len(scores) {
		scores = scores[:limit]
	}

	hits := make([]core.FrameHit, 0, len(scores))
	for _, sc := range scores {
		h := s.frames[sc.i].hit
		h.Similarity = sc.score
		hits = append(hits, h)
	}
	return hits, nil
}

func scopeSet(scope []string) map[string]struct{} {
	set := make(map[string]struct{}, len(scope))
	for _, id := range scope {
		set[id] = struct{}{}
	}
	return set
}

// cosineSimilarity 即 1 - cosine_distance
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
