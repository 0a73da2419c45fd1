package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"videoAsk/core"
	"videoAsk/retrieval"
	"videoAsk/storage"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func newTestHandlers() *AskHandlers {
	idx := storage.NewMemoryIndex()
	idx.AddTranscript(core.TranscriptHit{
		ID: "t1", Text: "first loosen the valve", Start: 5, End: 10,
		VideoID: "v1", VideoName: "pump.mp4",
	}, []float32{1, 0, 0})
	idx.AddFrame(core.FrameHit{
		ID: "f1", FrameID: "v1_frame_002", Caption: "a brass valve",
		VideoID: "v1", VideoName: "pump.mp4",
	}, []float32{0.9, 0.1, 0})
	idx.AddTranscript(core.TranscriptHit{
		ID: "t2", Text: "tighten it back", Start: 20, End: 25,
		VideoID: "v2", VideoName: "refit.mp4",
	}, []float32{0.8, 0.2, 0})

	r := retrieval.NewRetriever(stubEmbedder{}, nil, idx)
	return NewAskHandlers(r)
}

func postAsk(t *testing.T, h *AskHandlers, req core.AskRequest) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/ask", bytes.NewReader(body))
	h.AskHandler(w, r)
	return w
}

func TestAskHandlerMethodNotAllowed(t *testing.T) {
	h := newTestHandlers()
	w := httptest.NewRecorder()
	h.AskHandler(w, httptest.NewRequest(http.MethodGet, "/ask", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestAskHandlerValidation(t *testing.T) {
	h := newTestHandlers()

	w := postAsk(t, h, core.AskRequest{VideoIDs: []string{"v1"}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing question: expected 400, got %d", w.Code)
	}

	w = postAsk(t, h, core.AskRequest{Question: "how?"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty scope: expected 400, got %d", w.Code)
	}
}

func TestAskHandlerSingleVideo(t *testing.T) {
	h := newTestHandlers()
	w := postAsk(t, h, core.AskRequest{Question: "how do I loosen the valve?", VideoIDs: []string{"v1"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp core.AskResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer == "" {
		t.Error("expected a non-empty answer")
	}
	if !strings.Contains(resp.Context, "[0:05-0:10] first loosen the valve") {
		t.Errorf("single-video context missing bare timestamp marker, got:\n%s", resp.Context)
	}
	if strings.Contains(resp.Context, "**Video:") {
		t.Errorf("single-video context must not contain video blocks, got:\n%s", resp.Context)
	}
	for _, hit := range resp.Transcripts {
		if hit.VideoID != "v1" {
			t.Errorf("hit outside requested scope: %s", hit.VideoID)
		}
	}
}

func TestAskHandlerMultiVideo(t *testing.T) {
	h := newTestHandlers()
	w := postAsk(t, h, core.AskRequest{Question: "what about the valve?", VideoIDs: []string{"v1", "v2"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp core.AskResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.Contains(resp.Context, `**Video: "pump.mp4"**`) || !strings.Contains(resp.Context, `**Video: "refit.mp4"**`) {
		t.Errorf("multi-video context missing video blocks, got:\n%s", resp.Context)
	}
	if !strings.Contains(resp.Context, "[T: ") {
		t.Errorf("multi-video context must use T: markers, got:\n%s", resp.Context)
	}
}

func TestSynthesizeAnswerSimple(t *testing.T) {
	bundle := &core.EvidenceBundle{
		Transcripts: []core.TranscriptHit{{Start: 75, End: 98}},
		Frames:      []core.FrameHit{{FrameID: "v1_frame_007"}},
	}
	got := synthesizeAnswerSimple(bundle)
	if !strings.Contains(got, "[1:15-1:38]") {
		t.Errorf("fallback answer missing timestamps, got %q", got)
	}
	if !strings.Contains(got, "v1_frame_007") {
		t.Errorf("fallback answer missing frame reference, got %q", got)
	}
}
