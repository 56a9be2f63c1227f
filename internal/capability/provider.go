package capability

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Provider fetches a structured payload from one capability endpoint.
type Provider interface {
	Fetch(ctx context.Context, endpoint string, params map[string]string) (map[string]any, error)
}

// HTTPProvider calls capability endpoints relative to a base URL with GET query parameters.
type HTTPProvider struct {
	baseURL string
	http    *HTTPClient
}

func NewHTTPProvider(baseURL string, client *HTTPClient) *HTTPProvider {
	if client == nil {
		client = NewHTTPClient(0, 2, 0)
	}
	return &HTTPProvider{baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

func (p *HTTPProvider) Fetch(ctx context.Context, endpoint string, params map[string]string) (map[string]any, error) {
	q := url.Values{}
	for k, v := range params {
		if strings.TrimSpace(v) != "" {
			q.Set(k, v)
		}
	}
	target := p.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	if enc := q.Encode(); enc != "" {
		target += "?" + enc
	}
	var out any
	if err := p.http.DoJSON(ctx, http.MethodGet, target, nil, nil, &out); err != nil {
		return nil, fmt.Errorf("capability %s: %w", endpoint, err)
	}
	switch v := out.(type) {
	case map[string]any:
		return v, nil
	case nil:
		return map[string]any{}, nil
	default:
		return map[string]any{"items": v}, nil
	}
}
