package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lensai/lensai-stack/common/signing"
)

type IngestClient struct {
	baseURL string
	client  *http.Client
	signer  *signing.BodySigner
	token   string
}

type Option func(*IngestClient)

// WithHMAC signs every request body with secret.
func WithHMAC(secret string) Option {
	return func(c *IngestClient) {
		c.signer = signing.NewBodySigner(secret)
	}
}

// WithBearerToken sends token in the Authorization header.
func WithBearerToken(token string) Option {
	return func(c *IngestClient) {
		c.token = token
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *IngestClient) {
		c.client = hc
	}
}

func NewIngestClient(baseURL string, opts ...Option) *IngestClient {
	c := &IngestClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Response is the ingest service's answer to one submission.
type Response struct {
	Status int
	Body   string
}

// OK reports whether the event was accepted.
func (r *Response) OK() bool {
	return r.Status == http.StatusOK
}

// Send posts body as-is. Only transport failures are returned as errors;
// rejections are reported through Response.
func (c *IngestClient) Send(ctx context.Context, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.signer != nil:
		req.Header.Set("Authorization", c.signer.AuthorizationHeader(body))
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &Response{Status: resp.StatusCode, Body: string(respBody)}, nil
}

// SendEvent marshals event and posts it.
func (c *IngestClient) SendEvent(ctx context.Context, event interface{}) (*Response, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return c.Send(ctx, body)
}

// Health checks /healthz.
func (c *IngestClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}
	return nil
}
