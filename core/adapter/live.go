package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/retailmesh/agentcore/core/contract"
)

const maxAdapterResponseBytes = 4 << 20

// Live reaches a real domain service over REST. The core treats the
// payloads as opaque bytes; field semantics belong to the domain service.
type Live struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ contractx.DomainAdapter = (*Live)(nil)

func NewLive(cfg Config) (*Live, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("live adapter url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid adapter url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Live{
		baseURL:    baseURL,
		token:      strings.TrimSpace(cfg.Token),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (l *Live) Connect(ctx context.Context) error {
	_, err := l.do(ctx, http.MethodGet, "/v1/health", nil)
	return err
}

func (l *Live) Fetch(ctx context.Context, query string) ([]byte, error) {
	return l.do(ctx, http.MethodGet, "/v1/records?q="+url.QueryEscape(query), nil)
}

func (l *Live) Upsert(ctx context.Context, payload []byte) error {
	_, err := l.do(ctx, http.MethodPut, "/v1/records", payload)
	return err
}

func (l *Live) Delete(ctx context.Context, id string) error {
	_, err := l.do(ctx, http.MethodDelete, "/v1/records/"+url.PathEscape(id), nil)
	return err
}

func (l *Live) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, l.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build adapter request: %w", err)
	}
	if l.token != "" {
		req.Header.Set("Authorization", "Bearer "+l.token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute adapter request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxAdapterResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read adapter response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, contractx.ErrNotFound
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return nil, fmt.Errorf("adapter status=%d body=%s", resp.StatusCode, string(raw))
	}
	return raw, nil
}
