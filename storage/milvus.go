package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"videoAsk/core"
)

// MilvusIndex is the Milvus-backed similarity index, one collection per
// modality. Milvus COSINE scores are already similarities.
type MilvusIndex struct {
	mc             client.Client
	transcriptColl string
	frameColl      string
	dim            int
}

func NewMilvusIndex(dim int) (*MilvusIndex, error) {
	addr := os.Getenv("MILVUS_ADDR")
	if addr == "" {
		addr = "localhost:19530"
	}
	username := os.Getenv("MILVUS_USERNAME")
	password := os.Getenv("MILVUS_PASSWORD")
	apiKey := os.Getenv("MILVUS_API_KEY") // For Zilliz Cloud

	mc, err := client.NewClient(context.Background(), client.Config{Address: addr, Username: username, Password: password, APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("connect milvus: %w", err)
	}

	s := &MilvusIndex{mc: mc, transcriptColl: "transcript_segments", frameColl: "frame_captions", dim: dim}
	if err := s.ensureSchemaAndIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MilvusIndex) ensureSchemaAndIndex() error {
	ctx := context.Background()

	if err := s.ensureCollection(ctx, s.transcriptColl, func(schema *entity.Schema) {
		schema.WithField(entity.NewField().WithName("segment_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(128))
		schema.WithField(entity.NewField().WithName("t_start").WithDataType(entity.FieldTypeDouble))
		schema.WithField(entity.NewField().WithName("t_end").WithDataType(entity.FieldTypeDouble))
		schema.WithField(entity.NewField().WithName("text").WithDataType(entity.FieldTypeVarChar).WithMaxLength(4096))
	}); err != nil {
		return err
	}

	return s.ensureCollection(ctx, s.frameColl, func(schema *entity.Schema) {
		schema.WithField(entity.NewField().WithName("frame_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(256))
		schema.WithField(entity.NewField().WithName("caption").WithDataType(entity.FieldTypeVarChar).WithMaxLength(4096))
		schema.WithField(entity.NewField().WithName("entities").WithDataType(entity.FieldTypeVarChar).WithMaxLength(8192))
	})
}

func (s *MilvusIndex) ensureCollection(ctx context.Context, coll string, addFields func(*entity.Schema)) error {
	has, err := s.mc.HasCollection(ctx, coll)
	if err != nil {
		return err
	}
	if !has {
		schema := entity.NewSchema().WithName(coll)
		schema.WithField(entity.NewField().WithName("id").WithIsAutoID(true).WithIsPrimaryKey(true).WithDataType(entity.FieldTypeInt64))
		schema.WithField(entity.NewField().WithName("video_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(128))
		schema.WithField(entity.NewField().WithName("video_name").WithDataType(entity.FieldTypeVarChar).WithMaxLength(512))
		addFields(schema)
		schema.WithField(entity.NewField().WithName("vector").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(s.dim)))

		if err := s.mc.CreateCollection(ctx, schema, int32(2)); err != nil {
			return fmt.Errorf("create collection %s: %w", coll, err)
		}
	}
	idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 200)
	if err != nil {
		return fmt.Errorf("new hnsw index: %w", err)
	}
	if err := s.mc.CreateIndex(ctx, coll, "vector", idx, false, client.WithIndexName("idx_vector")); err != nil {
		return fmt.Errorf("create index on %s: %w", coll, err)
	}
	if err := s.mc.LoadCollection(ctx, coll, false); err != nil {
		return fmt.Errorf("load collection %s: %w", coll, err)
	}
	return nil
}

// scopeFilter builds a `video_id in [...]` expression.
func scopeFilter(scope []string) string {
	quoted := make([]string, 0, len(scope))
	for _, id := range scope {
		quoted = append(quoted, fmt.Sprintf("\"%s\"", strings.ReplaceAll(id, "\"", "\\\"")))
	}
	return fmt.Sprintf("video_id in [%s]", strings.Join(quoted, ", "))
}

func (s *MilvusIndex) search(ctx context.Context, coll string, vector []float32, scope []string, limit int, outputFields []string) ([]client.SearchResult, error) {
	sp, _ := entity.NewIndexHNSWSearchParam(74)
	res, err := s.mc.Search(ctx, coll, []string{}, scopeFilter(scope), outputFields,
		[]entity.Vector{entity.FloatVector(vector)}, "vector", entity.COSINE, limit, sp)
	if err != nil {
		return nil, &core.IndexError{Op: "search " + coll, Err: err}
	}
	return res, nil
}

func (s *MilvusIndex) SearchTranscripts(ctx context.Context, vector []float32, scope []string, limit int) ([]core.TranscriptHit, error) {
	res, err := s.search(ctx, s.transcriptColl, vector, scope, limit,
		[]string{"segment_id", "t_start", "t_end", "text", "video_id", "video_name"})
	if err != nil {
		return nil, err
	}

	var hits []core.TranscriptHit
	for _, r := range res {
		cols := map[string]entity.Column{}
		for _, c := range r.Fields {
			cols[c.Name()] = c
		}
		for i := 0; i < r.ResultCount; i++ {
			h := core.TranscriptHit{Similarity: float64(r.Scores[i])}
			h.ID = varcharAt(cols, "segment_id", i)
			h.Start = doubleAt(cols, "t_start", i)
			h.End = doubleAt(cols, "t_end", i)
			h.Text = varcharAt(cols, "text", i)
			h.VideoID = varcharAt(cols, "video_id", i)
			h.VideoName = varcharAt(cols, "video_name", i)
			hits = append(hits, h)
		}
	}
	return hits, nil
}

func (s *MilvusIndex) SearchFrames(ctx context.Context, vector []float32, scope []string, limit int) ([]core.FrameHit, error) {
	res, err := s.search(ctx, s.frameColl, vector, scope, limit,
		[]string{"frame_id", "caption", "entities", "video_id", "video_name"})
	if err != nil {
		return nil, err
	}

	var hits []core.FrameHit
	for _, r := range res {
		cols := map[string]entity.Column{}
		for _, c := range r.Fields {
			cols[c.Name()] = c
		}
		for i := 0; i < r.ResultCount; i++ {
			h := core.FrameHit{Similarity: float64(r.Scores[i])}
			h.FrameID = varcharAt(cols, "frame_id", i)
			h.ID = h.FrameID
			h.Caption = varcharAt(cols, "caption", i)
			h.VideoID = varcharAt(cols, "video_id", i)
			h.VideoName = varcharAt(cols, "video_name", i)
			if raw := varcharAt(cols, "entities", i); raw != "" {
				var entities core.VisionAnalysis
				if err := json.Unmarshal([]byte(raw), &entities); err == nil {
					h.Entities = &entities
				}
			}
			hits = append(hits, h)
		}
	}
	return hits, nil
}

func varcharAt(cols map[string]entity.Column, name string, i int) string {
	if c, ok := cols[name].(*entity.ColumnVarChar); ok {
		data := c.Data()
		if i < len(data) {
			return data[i]
		}
	}
	return ""
}

func doubleAt(cols map[string]entity.Column, name string, i int) float64 {
	if c, ok := cols[name].(*entity.ColumnDouble); ok {
		data := c.Data()
		if i < len(data) {
			return data[i]
		}
	}
	return 0
}

// ---------------- ingestion-side writes (driven by the external pipeline) ----------------

func (s *MilvusIndex) InsertTranscripts(ctx context.Context, videoID, videoName string, hits []core.TranscriptHit, vectors [][]float32) error {
	if len(hits) == 0 {
		return nil
	}
	n := len(hits)
	segmentIDs := make([]string, 0, n)
	videoIDs := make([]string, 0, n)
	videoNames := make([]string, 0, n)
	starts := make([]float64, 0, n)
	ends := make([]float64, 0, n)
	texts := make([]string, 0, n)
	for _, h := range hits {
		segmentIDs = append(segmentIDs, h.ID)
		videoIDs = append(videoIDs, videoID)
		videoNames = append(videoNames, videoName)
		starts = append(starts, h.Start)
		ends = append(ends, h.End)
		texts = append(texts, h.Text)
	}
	_, err := s.mc.Insert(ctx, s.transcriptColl, "",
		entity.NewColumnVarChar("segment_id", segmentIDs),
		entity.NewColumnVarChar("video_id", videoIDs),
		entity.NewColumnVarChar("video_name", videoNames),
		entity.NewColumnDouble("t_start", starts),
		entity.NewColumnDouble("t_end", ends),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnFloatVector("vector", s.dim, vectors),
	)
	if err != nil {
		return fmt.Errorf("insert transcripts: %w", err)
	}
	return nil
}

func (s *MilvusIndex) InsertFrames(ctx context.Context, videoID, videoName string, hits []core.FrameHit, vectors [][]float32) error {
	if len(hits) == 0 {
		return nil
	}
	n := len(hits)
	frameIDs := make([]string, 0, n)
	videoIDs := make([]string, 0, n)
	videoNames := make([]string, 0, n)
	captions := make([]string, 0, n)
	entities := make([]string, 0, n)
	for _, h := range hits {
		frameIDs = append(frameIDs, h.FrameID)
		videoIDs = append(videoIDs, videoID)
		videoNames = append(videoNames, videoName)
		captions = append(captions, h.Caption)
		raw := ""
		if h.Entities != nil {
			if b, err := json.Marshal(h.Entities); err == nil {
				raw = string(b)
			}
		}
		entities = append(entities, raw)
	}
	_, err := s.mc.Insert(ctx, s.frameColl, "",
		entity.NewColumnVarChar("frame_id", frameIDs),
		entity.NewColumnVarChar("video_id", videoIDs),
		entity.NewColumnVarChar("video_name", videoNames),
		entity.NewColumnVarChar("caption", captions),
		entity.NewColumnVarChar("entities", entities),
		entity.NewColumnFloatVector("vector", s.dim, vectors),
	)
	if err != nil {
		return fmt.Errorf("insert frames: %w", err)
	}
	return nil
}
