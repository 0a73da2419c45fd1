package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"videoAsk/config"
	"videoAsk/core"
)

// VisionCaptioner describes a user-supplied reference image.
type VisionCaptioner interface {
	Caption(ctx context.Context, imagePath string) (*core.VisionAnalysis, error)
}

// OpenAIVision analyzes an image with a vision-capable chat model and
// returns the structured analysis. Failures are wrapped in VisionError so
// the orchestrator can degrade instead of failing the request.
type OpenAIVision struct {
	oa    *openai.Client
	model string
}

const visionPrompt = `Analyze this image and provide a detailed description. Focus on:
1. What is happening in the scene
2. Any controls, buttons, dials, or interfaces visible
3. Any text or labels that appear on screen
4. The overall context and setting

Respond with a JSON object with fields "caption" (string), "controls" (array of
{"label","kind","reading","units"} strings) and "text_on_screen" (array of
{"text","confidence"} where confidence is a number in [0,1]).
Be thorough and accurate in your analysis.`

func NewOpenAIVision() (*OpenAIVision, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &OpenAIVision{oa: OpenAIClient(), model: cfg.VisionModel}, nil
}

func (v *OpenAIVision) Caption(ctx context.Context, imagePath string) (*core.VisionAnalysis, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, &core.VisionError{Err: fmt.Errorf("read image: %w", err)}
	}
	b64 := base64.StdEncoding.EncodeToString(data)

	req := openai.ChatCompletionRequest{
		Model: v.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: visionPrompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: "data:image/jpeg;base64," + b64,
						},
					},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	}

	resp, err := v.oa.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, &core.VisionError{Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &core.VisionError{Err: fmt.Errorf("no response from vision API")}
	}

	var analysis core.VisionAnalysis
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &analysis); err != nil {
		return nil, &core.VisionError{Err: fmt.Errorf("parse vision response: %w", err)}
	}
	if analysis.Caption == "" {
		return nil, &core.VisionError{Err: fmt.Errorf("vision response missing caption")}
	}
	return &analysis, nil
}
