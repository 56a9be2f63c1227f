package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mohammad-safakhou/pharmaverse/config"
	"github.com/mohammad-safakhou/pharmaverse/internal/budget"
)

// Prompt is one request to the text completion service.
type Prompt struct {
	System string
	User   string
}

// TextCompleter returns the completion text for a prompt pair.
type TextCompleter interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// OpenAIProvider talks to any OpenAI-compatible /chat/completions endpoint (Groq by default).
type OpenAIProvider struct {
	config config.LLMConfig
	client *http.Client
}

func NewOpenAIProvider(cfg config.LLMConfig) *OpenAIProvider {
	return &OpenAIProvider{config: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (p *OpenAIProvider) Complete(ctx context.Context, prompt Prompt) (string, error) {
	if p.config.APIKey == "" {
		return "", fmt.Errorf("llm api key not configured")
	}
	mon := budget.FromContext(ctx)
	if err := mon.Allow(); err != nil {
		return "", err
	}
	type chatMsg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	type chatReq struct {
		Model       string    `json:"model"`
		Messages    []chatMsg `json:"messages"`
		Temperature float64   `json:"temperature"`
		MaxTokens   int       `json:"max_tokens,omitempty"`
	}
	msgs := make([]chatMsg, 0, 2)
	if strings.TrimSpace(prompt.System) != "" {
		msgs = append(msgs, chatMsg{Role: "system", Content: prompt.System})
	}
	msgs = append(msgs, chatMsg{Role: "user", Content: prompt.User})

	body, err := json.Marshal(chatReq{
		Model:       p.config.Model,
		Messages:    msgs,
		Temperature: p.config.Temperature,
		MaxTokens:   p.config.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("llm status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int64 `json:"prompt_tokens"`
			CompletionTokens int64 `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("no choices")
	}
	recordTokens(ctx, p.config.Model, out.Usage.PromptTokens, out.Usage.CompletionTokens)
	mon.Add(out.Usage.PromptTokens + out.Usage.CompletionTokens)
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
