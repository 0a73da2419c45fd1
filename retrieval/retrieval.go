// Package retrieval turns a question (plus an optional reference image) and
// a set of target videos into a ranked, deduplicated, modality-balanced
// evidence bundle, and renders that bundle into the context format the
// answering model and the frontend renderer consume.
package retrieval

import (
	"context"
	"log"
	"sort"

	"golang.org/x/sync/errgroup"

	"videoAsk/core"
	"videoAsk/storage"
)

// DefaultLimit 默认检索条数
const DefaultLimit = 8

type Retriever struct {
	embed  storage.Embedder
	vision storage.VisionCaptioner
	index  storage.VectorIndex
}

func NewRetriever(embed storage.Embedder, vision storage.VisionCaptioner, index storage.VectorIndex) *Retriever {
	return &Retriever{embed: embed, vision: vision, index: index}
}

// Retrieve runs the multimodal retrieval for one question.
//
// Without an image: transcripts and frames are each searched with the full
// limit using the question vector. With an image: the image is captioned and
// the caption embedded, then the budget splits into transcripts-by-text
// (limit/2), frames-by-text (limit/4) and frames-by-caption (limit/4), all
// ceiling division; the two frame branches are merged, deduplicated by
// frame id keeping the best score, and truncated to limit/2.
//
// A captioning failure degrades to the text-only path; an embedding or
// index failure fails the call.
func (r *Retriever) Retrieve(ctx context.Context, question string, scope []string, imagePath string, limit int) (*core.EvidenceBundle, error) {
	if len(scope) == 0 {
		return nil, core.ErrEmptyScope
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	textVector, err := r.embed.Embed(ctx, question)
	if err != nil {
		return nil, err
	}

	imageCaption := ""
	if imagePath != "" && r.vision != nil {
		analysis, err := r.vision.Caption(ctx, imagePath)
		if err != nil {
			log.Printf("Warning: image analysis failed (%v), continuing with text-only retrieval", err)
		} else {
			imageCaption = analysis.Caption
		}
	}

	if imageCaption == "" {
		return r.retrieveText(ctx, textVector, scope, limit)
	}
	return r.retrieveMultimodal(ctx, textVector, imageCaption, scope, limit)
}

func (r *Retriever) retrieveText(ctx context.Context, textVector []float32, scope []string, limit int) (*core.EvidenceBundle, error) {
	var transcripts []core.TranscriptHit
	var frames []core.FrameHit

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		transcripts, err = r.index.SearchTranscripts(gctx, textVector, scope, limit)
		return err
	})
	g.Go(func() error {
		var err error
		frames, err = r.index.SearchFrames(gctx, textVector, scope, limit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &core.EvidenceBundle{Transcripts: transcripts, Frames: frames}, nil
}

func (r *Retriever) retrieveMultimodal(ctx context.Context, textVector []float32, imageCaption string, scope []string, limit int) (*core.EvidenceBundle, error) {
	imageVector, err := r.embed.Embed(ctx, imageCaption)
	if err != nil {
		return nil, err
	}

	// 转写始终占一半预算，视觉预算在问题文本与参考图之间平分
	transcriptQuota := ceilDiv(limit, 2)
	frameQuota := ceilDiv(limit, 4)

	var transcripts []core.TranscriptHit
	var textFrames, imageFrames []core.FrameHit

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		transcripts, err = r.index.SearchTranscripts(gctx, textVector, scope, transcriptQuota)
		return err
	})
	g.Go(func() error {
		var err error
		textFrames, err = r.index.SearchFrames(gctx, textVector, scope, frameQuota)
		return err
	})
	g.Go(func() error {
		var err error
		imageFrames, err = r.index.SearchFrames(gctx, imageVector, scope, frameQuota)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	frames := mergeFrames(textFrames, imageFrames, ceilDiv(limit, 2))
	return &core.EvidenceBundle{Transcripts: transcripts, Frames: frames, ImageCaption: imageCaption}, nil
}

// mergeFrames unions two frame result lists, deduplicates by frame id
// keeping the hit with the higher similarity, re-sorts by descending
// similarity and truncates to maxLen.
func mergeFrames(textFrames, imageFrames []core.FrameHit, maxLen int) []core.FrameHit {
	best := make(map[string]core.FrameHit, len(textFrames)+len(imageFrames))
	order := make([]string, 0, len(textFrames)+len(imageFrames))
	for _, f := range append(append([]core.FrameHit{}, textFrames...), imageFrames...) {
		cur, seen := best[f.FrameID]
		if !seen {
			order = append(order, f.FrameID)
			best[f.FrameID] = f
		} else if f.Similarity > cur.Similarity {
			best[f.FrameID] = f
		}
	}

	merged := make([]core.FrameHit, 0, len(order))
	for _, id := range order {
		merged = append(merged, best[id])
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Similarity > merged[j].Similarity })
	if maxLen < len(merged) {
		merged = merged[:maxLen]
	}
	return merged
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
