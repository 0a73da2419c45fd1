package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"videoAsk/config"
	"videoAsk/core"
	"videoAsk/retrieval"
)

// AskHandlers 问答相关的HTTP处理器
type AskHandlers struct {
	retriever *retrieval.Retriever
}

// NewAskHandlers 创建问答处理器实例
func NewAskHandlers(r *retrieval.Retriever) *AskHandlers {
	return &AskHandlers{retriever: r}
}

const askSystemPrompt = `You are a helpful assistant for an instructional video. Answer based ONLY on the provided context.
Include timestamps like [T: 1:23-1:45] and frame references like [F: frame_003] when relevant.
If the context doesn't contain the answer, say so clearly.`

// AskHandler 处理 POST /ask：检索证据、拼装上下文并生成答案
func (h *AskHandlers) AskHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		core.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req core.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "question required"})
		return
	}

	bundle, err := h.retriever.Retrieve(r.Context(), req.Question, req.VideoIDs, req.ImagePath, req.TopK)
	if err != nil {
		if errors.Is(err, core.ErrEmptyScope) {
			core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "video_ids required"})
			return
		}
		// 不向调用方暴露内部错误细节
		log.Printf("retrieval failed: %v", err)
		core.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to process"})
		return
	}

	var contextStr string
	if len(req.VideoIDs) == 1 {
		contextStr = retrieval.FormatContext(bundle)
	} else {
		contextStr = retrieval.FormatContextMulti(bundle)
	}

	answer := synthesizeAnswer(r.Context(), req.Question, contextStr, bundle)

	core.WriteJSON(w, http.StatusOK, core.AskResponse{
		Question:    req.Question,
		Answer:      answer,
		Context:     contextStr,
		Transcripts: bundle.Transcripts,
		Frames:      bundle.Frames,
	})
}

// HealthHandler 健康检查
func (h *AskHandlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	core.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// synthesizeAnswer generates the answer from the assembled context. Falls
// back to a simple summary of the evidence when no chat API is configured
// or the call fails.
func synthesizeAnswer(ctx context.Context, question, contextStr string, bundle *core.EvidenceBundle) string {
	if len(bundle.Transcripts) == 0 && len(bundle.Frames) == 0 {
		return "No relevant segments found for this question."
	}

	cfg, err := config.LoadConfig()
	if err != nil || !cfg.HasValidAPI() {
		return synthesizeAnswerSimple(bundle)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	cli := openai.NewClientWithConfig(clientConfig)

	req := openai.ChatCompletionRequest{
		Model: cfg.ChatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: askSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: question},
			{
				Role:    openai.ChatMessageRoleAssistant,
				Content: fmt.Sprintf("Here's the relevant context from the video:\n\n%s\n\nNow I'll answer your question based on this context.", contextStr),
			},
		},
		MaxTokens:   1000,
		Temperature: 0.3,
	}

	resp, err := cli.CreateChatCompletion(ctx, req)
	if err != nil {
		log.Printf("Warning: LLM call failed (%v), falling back to simple synthesis", err)
		return synthesizeAnswerSimple(bundle)
	}
	if len(resp.Choices) == 0 {
		return synthesizeAnswerSimple(bundle)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content)
}

func synthesizeAnswerSimple(bundle *core.EvidenceBundle) string {
	var parts []string
	if len(bundle.Transcripts) > 0 {
		times := make([]string, 0, len(bundle.Transcripts))
		for _, t := range bundle.Transcripts {
			times = append(times, fmt.Sprintf("[%s-%s]", retrieval.FormatTime(t.Start), retrieval.FormatTime(t.End)))
		}
		parts = append(parts, "Relevant transcript segments: "+strings.Join(times, ", "))
	}
	if len(bundle.Frames) > 0 {
		refs := make([]string, 0, len(bundle.Frames))
		for _, f := range bundle.Frames {
			refs = append(refs, f.FrameID)
		}
		parts = append(parts, "Relevant frames: "+strings.Join(refs, ", "))
	}
	return strings.Join(parts, ". ") + "."
}
