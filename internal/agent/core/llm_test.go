package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohammad-safakhou/pharmaverse/config"
	"github.com/mohammad-safakhou/pharmaverse/internal/budget"
)

func TestOpenAIProviderSendsSystemAndUser(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  hello  "}}],"usage":{"prompt_tokens":3,"completion_tokens":1}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(config.LLMConfig{BaseURL: srv.URL, APIKey: "key", Model: "llama-3.1-8b-instant", Timeout: time.Second})
	out, err := p.Complete(context.Background(), Prompt{System: "be brief", User: "hi"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out != "hello" {
		t.Fatalf("expected trimmed content, got %q", out)
	}
	if got.Model != "llama-3.1-8b-instant" || len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "hi" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestOpenAIProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(config.LLMConfig{BaseURL: srv.URL, APIKey: "key", Timeout: time.Second})
	if _, err := p.Complete(context.Background(), Prompt{User: "hi"}); err == nil {
		t.Fatalf("expected status error")
	}
	noKey := NewOpenAIProvider(config.LLMConfig{BaseURL: srv.URL})
	if _, err := noKey.Complete(context.Background(), Prompt{User: "hi"}); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestOpenAIProviderHonorsRunBudget(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}],"usage":{"prompt_tokens":600,"completion_tokens":500}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(config.LLMConfig{BaseURL: srv.URL, APIKey: "key", Timeout: time.Second})
	mon := budget.NewMonitor(budget.Limits{MaxTokens: 1000})
	ctx := budget.WithMonitor(context.Background(), mon)
	if _, err := p.Complete(ctx, Prompt{User: "first"}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	_, err := p.Complete(ctx, Prompt{User: "second"})
	var exceeded budget.ErrExceeded
	if !errors.As(err, &exceeded) || exceeded.Kind != budget.KindTokens {
		t.Fatalf("expected token budget error, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("refused call must not reach the service, got %d requests", hits)
	}
	if calls, tokens := mon.Usage(); calls != 1 || tokens != 1100 {
		t.Fatalf("unexpected usage %d calls / %d tokens", calls, tokens)
	}
}
