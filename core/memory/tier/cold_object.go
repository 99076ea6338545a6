package tier

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/retailmesh/agentcore/core/contract"
)

const maxColdResponseBytes = 32 << 20

// ObjectColdConfig configures the REST object-store cold tier.
type ObjectColdConfig struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// ObjectCold archives blobs in a content-addressed object store over REST.
// Blobs are written under their SHA-256 digest and never mutated; each
// logical key has a latest-pointer document that moves on overwrite, so an
// overwrite is a new version rather than a mutation.
type ObjectCold struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// ObjectColdOption customizes ObjectCold.
type ObjectColdOption func(*ObjectCold)

func WithColdHTTPClient(client *http.Client) ObjectColdOption {
	return func(c *ObjectCold) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewObjectCold(cfg ObjectColdConfig, opts ...ObjectColdOption) (*ObjectCold, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("cold store url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid cold store url: %w", err)
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("cold store token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &ObjectCold{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type latestPointer struct {
	Digest    string    `json:"digest"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *ObjectCold) Put(ctx context.Context, key string, value []byte) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("%w: cold key is empty", contractx.ErrValidation)
	}

	sum := sha256.Sum256(value)
	digest := hex.EncodeToString(sum[:])

	// Blob write is idempotent: same content, same digest, same object.
	if err := c.do(ctx, http.MethodPut, "/v1/objects/"+digest, value, nil); err != nil {
		return "", err
	}

	pointer, err := json.Marshal(latestPointer{Digest: digest, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return "", fmt.Errorf("marshal latest pointer: %w", err)
	}
	if err := c.do(ctx, http.MethodPut, "/v1/latest/"+url.PathEscape(key), pointer, nil); err != nil {
		return "", err
	}
	return digest, nil
}

func (c *ObjectCold) Get(ctx context.Context, key string) ([]byte, error) {
	var raw []byte
	err := c.do(ctx, http.MethodGet, "/v1/latest/"+url.PathEscape(key), nil, &raw)
	if err != nil {
		return nil, err
	}

	var pointer latestPointer
	if err := json.Unmarshal(raw, &pointer); err != nil {
		return nil, fmt.Errorf("decode latest pointer: %w", err)
	}
	if strings.TrimSpace(pointer.Digest) == "" {
		return nil, contractx.ErrNotFound
	}

	var blob []byte
	if err := c.do(ctx, http.MethodGet, "/v1/objects/"+pointer.Digest, nil, &blob); err != nil {
		return nil, err
	}
	return blob, nil
}

// Delete removes the latest pointer only. Archived blobs stay immutable
// and reachable by digest.
func (c *ObjectCold) Delete(ctx context.Context, key string) error {
	err := c.do(ctx, http.MethodDelete, "/v1/latest/"+url.PathEscape(key), nil, nil)
	if errors.Is(err, contractx.ErrNotFound) {
		return nil
	}
	return err
}

func (c *ObjectCold) do(ctx context.Context, method, path string, body []byte, out *[]byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build cold request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: cold %s %s: %v", contractx.ErrTierUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxColdResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read cold response: %v", contractx.ErrTierUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return contractx.ErrNotFound
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: cold status=%d", contractx.ErrTierUnavailable, resp.StatusCode)
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return fmt.Errorf("cold store status=%d body=%s", resp.StatusCode, string(raw))
	}

	if out != nil {
		*out = raw
	}
	return nil
}
