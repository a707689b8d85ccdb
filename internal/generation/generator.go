// Package generation wraps the model boundary with per-call timeouts and
// error classification.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"github.com/easeaico/project-duet/internal/types"
)

// Generator produces one reply for a prompt. Implementations classify
// provider failures into the shared error taxonomy so callers can pick
// fallback versus circuit-breaker handling.
type Generator interface {
	Generate(ctx context.Context, instruction string, contents []*genai.Content) (string, error)
}

// LLMGenerator adapts a model.LLM with a per-call timeout.
type LLMGenerator struct {
	llm     model.LLM
	timeout time.Duration
}

// NewLLMGenerator returns a Generator over the given model.
func NewLLMGenerator(llm model.LLM, timeout time.Duration) *LLMGenerator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LLMGenerator{llm: llm, timeout: timeout}
}

// Generate issues one generation call. The context carries the per-call
// timeout; an expired deadline surfaces as ErrGenerationTimeout and quota
// rejections as ErrGenerationQuota.
func (g *LLMGenerator) Generate(ctx context.Context, instruction string, contents []*genai.Content) (string, error) {
	if g.llm == nil {
		return "", fmt.Errorf("generator not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req := &model.LLMRequest{}
	if instruction != "" {
		req.Contents = append(req.Contents, genai.NewContentFromText(instruction, "system"))
	}
	req.Contents = append(req.Contents, contents...)

	seq := g.llm.GenerateContent(ctx, req, false)
	var resp *model.LLMResponse
	var err error
	seq(func(r *model.LLMResponse, e error) bool {
		resp = r
		err = e
		return false
	})
	if err != nil {
		return "", classify(err)
	}

	text := strings.TrimSpace(extractText(resp))
	if text == "" {
		return "", fmt.Errorf("empty generation response")
	}
	return text, nil
}

// classify maps provider errors onto the shared taxonomy.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", types.ErrGenerationTimeout, err)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "deadline"), strings.Contains(msg, "timeout"):
		return fmt.Errorf("%w: %v", types.ErrGenerationTimeout, err)
	case strings.Contains(msg, "quota"), strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"), strings.Contains(msg, "too many"):
		return fmt.Errorf("%w: %v", types.ErrGenerationQuota, err)
	}
	return err
}

func extractText(resp *model.LLMResponse) string {
	if resp == nil || resp.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}
