// Package models adapts chat providers to the model.LLM interface.
package models

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"runtime"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

// openaiModel wraps an OpenAI-compatible chat client.
type openaiModel struct {
	client             *openai.Client
	name               string
	versionHeaderValue string
}

// NewOpenAIModel creates a model backed by the OpenAI API.
func NewOpenAIModel(ctx context.Context, modelName string, cfg *genai.ClientConfig) (model.LLM, error) {
	return newCompatModel(modelName, cfg, "")
}

// NewGrokModel creates a model backed by x.ai's OpenAI-compatible endpoint
// (e.g. "grok-4-fast").
func NewGrokModel(ctx context.Context, modelName string, cfg *genai.ClientConfig) (model.LLM, error) {
	return newCompatModel(modelName, cfg, "https://api.x.ai/v1")
}

func newCompatModel(modelName string, cfg *genai.ClientConfig, baseURL string) (model.LLM, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if modelName == "" {
		return nil, fmt.Errorf("model name cannot be empty")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)

	// Create the UA header once, when the model is created.
	headerValue := fmt.Sprintf("duet-go/%s go/%s",
		"1.0.0", strings.TrimPrefix(runtime.Version(), "go"))

	return &openaiModel{
		name:               modelName,
		client:             &client,
		versionHeaderValue: headerValue,
	}, nil
}

func (m *openaiModel) Name() string {
	return m.name
}

// GenerateContent issues one chat completion. The session loop drives turns
// itself, so only the non-streaming path is implemented; a stream request
// still yields exactly one final response.
func (m *openaiModel) GenerateContent(ctx context.Context, req *model.LLMRequest, stream bool) iter.Seq2[*model.LLMResponse, error] {
	m.maybeAppendUserContent(req)

	return func(yield func(*model.LLMResponse, error) bool) {
		resp, err := m.generate(ctx, req)
		yield(resp, err)
	}
}

func (m *openaiModel) generate(ctx context.Context, req *model.LLMRequest) (*model.LLMResponse, error) {
	params := buildParams(req, m.name)

	resp, err := m.client.Chat.Completions.New(ctx, *params,
		option.WithHeader("user-agent", m.versionHeaderValue))
	if err != nil {
		slog.Error("failed to call llm API", "model", m.name, "error", err.Error())
		return nil, fmt.Errorf("failed to call chat API: %w", err)
	}

	if resp == nil || len(resp.Choices) == 0 {
		return &model.LLMResponse{}, nil
	}

	message := resp.Choices[0].Message
	content := &genai.Content{
		Role:  string(message.Role),
		Parts: []*genai.Part{},
	}
	if message.Content != "" {
		content.Parts = append(content.Parts, &genai.Part{Text: message.Content})
	}

	return &model.LLMResponse{Content: content, TurnComplete: true}, nil
}

// maybeAppendUserContent keeps the transcript valid for providers that
// require the last message to be a user turn.
func (m *openaiModel) maybeAppendUserContent(req *model.LLMRequest) {
	if len(req.Contents) == 0 {
		req.Contents = append(req.Contents, genai.NewContentFromText("Handle the requests as specified in the System Instruction.", "user"))
	}

	if last := req.Contents[len(req.Contents)-1]; last != nil && last.Role != "user" {
		req.Contents = append(req.Contents, genai.NewContentFromText("Continue the conversation as instructed.", "user"))
	}
}

// buildParams converts an ADK request to OpenAI chat parameters.
func buildParams(req *model.LLMRequest, fallbackModel string) *openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model: req.Model,
	}
	if req.Model == "" {
		params.Model = fallbackModel
	}

	messages := convertContentsToMessages(req.Contents)
	if len(messages) > 0 {
		params.Messages = messages
	}

	if req.Config != nil {
		if req.Config.Temperature != nil {
			params.Temperature = openai.Float(float64(*req.Config.Temperature))
		}
		if req.Config.MaxOutputTokens > 0 {
			params.MaxTokens = openai.Int(int64(req.Config.MaxOutputTokens))
		}
		if req.Config.TopP != nil {
			params.TopP = openai.Float(float64(*req.Config.TopP))
		}
	}

	return &params
}

// convertContentsToMessages converts genai contents to OpenAI messages.
func convertContentsToMessages(contents []*genai.Content) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	for _, content := range contents {
		var sb strings.Builder
		for _, part := range content.Parts {
			if part != nil && part.Text != "" {
				sb.WriteString(part.Text)
			}
		}
		textContent := sb.String()

		switch content.Role {
		case "user":
			messages = append(messages, openai.UserMessage(textContent))
		case "model", "assistant":
			messages = append(messages, openai.AssistantMessage(textContent))
		case "system":
			messages = append(messages, openai.SystemMessage(textContent))
		default:
			messages = append(messages, openai.UserMessage(textContent))
		}
	}
	return messages
}
