package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"videoAsk/core"
)

// PgIndex is the pgvector-backed similarity index. Uses a connection pool
// because concurrent /ask requests share one index.
type PgIndex struct {
	pool *pgxpool.Pool
	dim  int
}

func NewPgIndex(dbURL string, dim int) (*PgIndex, error) {
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PgIndex{pool: pool, dim: dim}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PgIndex) Close() { s.pool.Close() }

func (s *PgIndex) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector;"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS videos (
			id VARCHAR(255) PRIMARY KEY,
			original_name VARCHAR(500) NOT NULL,
			stored_path VARCHAR(1000),
			duration FLOAT,
			uploaded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS transcript_segments (
			id VARCHAR(255) PRIMARY KEY,
			video_id VARCHAR(255) NOT NULL,
			t_start FLOAT NOT NULL,
			t_end FLOAT NOT NULL,
			text TEXT NOT NULL,
			embedding vector(%d)
		);`, s.dim),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS frame_captions (
			id VARCHAR(255) PRIMARY KEY,
			video_id VARCHAR(255) NOT NULL,
			frame_id VARCHAR(255) UNIQUE NOT NULL,
			caption TEXT NOT NULL,
			entities JSONB,
			embedding vector(%d)
		);`, s.dim),
		"CREATE INDEX IF NOT EXISTS idx_transcript_segments_video_id ON transcript_segments(video_id);",
		"CREATE INDEX IF NOT EXISTS idx_frame_captions_video_id ON frame_captions(video_id);",
	}
	for _, q := range queries {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	// ivfflat 余弦索引，表为空时创建会退化为顺序扫描，无碍
	vectorIndexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_transcript_segments_embedding
		 ON transcript_segments USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);`,
		`CREATE INDEX IF NOT EXISTS idx_frame_captions_embedding
		 ON frame_captions USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);`,
	}
	for _, q := range vectorIndexes {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			fmt.Printf("Warning: failed to create vector index: %v\n", err)
		}
	}
	return nil
}

func (s *PgIndex) SearchTranscripts(ctx context.Context, vector []float32, scope []string, limit int) ([]core.TranscriptHit, error) {
	vec := pgvector.NewVector(vector)

	// 单视频时走等值过滤的快路径
	query := `
		SELECT ts.id, ts.text, ts.t_start, ts.t_end, ts.video_id, v.original_name,
		       1 - (ts.embedding <=> $1) AS similarity
		FROM transcript_segments ts
		JOIN videos v ON ts.video_id = v.id
		WHERE ts.video_id = ANY($2)
		ORDER BY ts.embedding <=> $1, ts.id
		LIMIT $3`
	args := []interface{}{vec, scope, limit}
	if len(scope) == 1 {
		query = `
		SELECT ts.id, ts.text, ts.t_start, ts.t_end, ts.video_id, v.original_name,
		       1 - (ts.embedding <=> $1) AS similarity
		FROM transcript_segments ts
		JOIN videos v ON ts.video_id = v.id
		WHERE ts.video_id = $2
		ORDER BY ts.embedding <=> $1, ts.id
		LIMIT $3`
		args = []interface{}{vec, scope[0], limit}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &core.IndexError{Op: "search transcripts", Err: err}
	}
	defer rows.Close()

	var hits []core.TranscriptHit
	for rows.Next() {
		var h core.TranscriptHit
		if err := rows.Scan(&h.ID, &h.Text, &h.Start, &h.End, &h.VideoID, &h.VideoName, &h.Similarity); err != nil {
			return nil, &core.IndexError{Op: "search transcripts", Err: err}
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.IndexError{Op: "search transcripts", Err: err}
	}
	return hits, nil
}

func (s *PgIndex) SearchFrames(ctx context.Context, vector []float32, scope []string, limit int) ([]core.FrameHit, error) {
	vec := pgvector.NewVector(vector)

	query := `
		SELECT fc.id, fc.frame_id, fc.caption, fc.entities, fc.video_id, v.original_name,
		       1 - (fc.embedding <=> $1) AS similarity
		FROM frame_captions fc
		JOIN videos v ON fc.video_id = v.id
		WHERE fc.video_id = ANY($2)
		ORDER BY fc.embedding <=> $1, fc.id
		LIMIT $3`
	args := []interface{}{vec, scope, limit}
	if len(scope) == 1 {
		query = `
		SELECT fc.id, fc.frame_id, fc.caption, fc.entities, fc.video_id, v.original_name,
		       1 - (fc.embedding <=> $1) AS similarity
		FROM frame_captions fc
		JOIN videos v ON fc.video_id = v.id
		WHERE fc.video_id = $2
		ORDER BY fc.embedding <=> $1, fc.id
		LIMIT $3`
		args = []interface{}{vec, scope[0], limit}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &core.IndexError{Op: "search frames", Err: err}
	}
	defer rows.Close()

	var hits []core.FrameHit
	for rows.Next() {
		var h core.FrameHit
		var entitiesJSON []byte
		if err := rows.Scan(&h.ID, &h.FrameID, &h.Caption, &entitiesJSON, &h.VideoID, &h.VideoName, &h.Similarity); err != nil {
			return nil, &core.IndexError{Op: "search frames", Err: err}
		}
		if len(entitiesJSON) > 0 {
			var entities core.VisionAnalysis
			if err := json.Unmarshal(entitiesJSON, &entities); err == nil {
				h.Entities = &entities
			}
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.IndexError{Op: "search frames", Err: err}
	}
	return hits, nil
}

// ---------------- ingestion-side writes (driven by the external pipeline) ----------------

func (s *PgIndex) UpsertVideo(ctx context.Context, videoID, originalName string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO videos (id, original_name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET original_name = EXCLUDED.original_name
	`, videoID, originalName)
	if err != nil {
		return fmt.Errorf("upsert video: %w", err)
	}
	return nil
}

func (s *PgIndex) UpsertTranscript(ctx context.Context, videoID string, start, end float64, text string, embedding []float32) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transcript_segments (id, video_id, t_start, t_end, text, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, core.NewID(), videoID, start, end, text, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("upsert transcript segment: %w", err)
	}
	return nil
}

func (s *PgIndex) UpsertFrame(ctx context.Context, videoID, frameID, caption string, entities *core.VisionAnalysis, embedding []float32) error {
	var entitiesJSON []byte
	if entities != nil {
		b, err := json.Marshal(entities)
		if err != nil {
			return fmt.Errorf("marshal entities: %w", err)
		}
		entitiesJSON = b
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO frame_captions (id, video_id, frame_id, caption, entities, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (frame_id) DO UPDATE SET
			caption = EXCLUDED.caption,
			entities = EXCLUDED.entities,
			embedding = EXCLUDED.embedding
	`, core.NewID(), videoID, frameID, caption, entitiesJSON, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("upsert frame caption: %w", err)
	}
	return nil
}
