// Package ner provides a client for an external named-entity recognition
// service. The enrichment pipeline treats location-labelled spans as
// candidate municipality mentions alongside its own automaton matches.
package ner

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Entity is one span reported by the service. Start and end are rune
// offsets into the analyzed text.
type Entity struct {
	Label string  `json:"label"`
	Text  string  `json:"text"`
	Start int     `json:"start"`
	End   int     `json:"end"`
	Score float64 `json:"score"`
}

// locationLabels are the tags treated as place mentions across the models
// commonly deployed behind the service.
var locationLabels = map[string]bool{
	"LOC":   true,
	"GPE":   true,
	"LOCAL": true,
}

// IsLocation reports whether the entity's label marks a place mention.
func (e Entity) IsLocation() bool {
	return locationLabels[e.Label]
}

// Engine analyzes text for named entities.
type Engine interface {
	Analyze(ctx context.Context, text string) ([]Entity, error)
}

// Option configures the HTTP engine.
type Option func(*httpEngine)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(e *httpEngine) {
		e.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(e *httpEngine) {
		e.http = hc
	}
}

type httpEngine struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates an Engine backed by an HTTP NER service.
func NewClient(baseURL, apiKey string, opts ...Option) Engine {
	e := &httpEngine{
		apiKey:  apiKey,
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type analyzeRequest struct {
	Text string `json:"text"`
}

type analyzeResponse struct {
	Entities []Entity `json:"entities"`
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo executes the request with exponential backoff on transient
// failures, rebuilding the body for each attempt.
func (e *httpEngine) retryDo(ctx context.Context, url string, payload []byte) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, 0, eris.Wrap(err, "ner: create request")
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if e.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+e.apiKey)
		}

		resp, err := e.http.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "ner: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("ner: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

func (e *httpEngine) Analyze(ctx context.Context, text string) ([]Entity, error) {
	payload, err := json.Marshal(analyzeRequest{Text: text})
	if err != nil {
		return nil, eris.Wrap(err, "ner: marshal request")
	}

	body, statusCode, err := e.retryDo(ctx, e.baseURL+"/analyze", payload)
	if err != nil {
		return nil, eris.Wrap(err, "ner: request failed")
	}
	if statusCode != http.StatusOK {
		return nil, eris.Errorf("ner: unexpected status %d: %s", statusCode, string(body))
	}

	var result analyzeResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "ner: unmarshal response")
	}
	return result.Entities, nil
}

// Noop is an Engine that reports no entities; used when no NER service is
// configured.
type Noop struct{}

func (Noop) Analyze(context.Context, string) ([]Entity, error) {
	return nil, nil
}
