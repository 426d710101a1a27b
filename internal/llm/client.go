// Package llm is a small client for the Gemini generateContent and
// batchEmbedContents REST endpoints.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultEndpoint       = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel          = "gemini-2.5-flash"
	DefaultEmbeddingModel = "text-embedding-004"

	// maxBatch is the API limit on requests per batchEmbedContents call.
	maxBatch = 100
)

var (
	ErrMissingAPIKey = errors.New("llm: missing API key")
	ErrEmptyResponse = errors.New("llm: empty response")
)

// APIError is a non-2xx reply.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("llm: http %d", e.StatusCode)
	}
	return fmt.Sprintf("llm: http %d: %s", e.StatusCode, e.Message)
}

// Config configures Client. Zero fields take the defaults.
type Config struct {
	Endpoint       string
	APIKey         string
	Model          string
	EmbeddingModel string
	Temperature    float64
	// RequestsPerSecond throttles outgoing calls; 0 disables throttling.
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// Client implements rag.Embedder, rag.Generator and local.Completer.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.2
	}
	c := &Client{cfg: cfg, http: cfg.HTTPClient}
	if c.http == nil {
		c.http = &http.Client{Timeout: 120 * time.Second}
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c, nil
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

// Generate sends a single-turn prompt and returns the concatenated text parts
// of the first candidate.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"contents": []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		"generationConfig": map[string]any{
			"temperature": c.cfg.Temperature,
		},
	}
	var out struct {
		Candidates []struct {
			Content content `json:"content"`
		} `json:"candidates"`
	}
	if err := c.post(ctx, "models/"+c.cfg.Model+":generateContent", payload, &out); err != nil {
		return "", err
	}
	if len(out.Candidates) == 0 {
		return "", ErrEmptyResponse
	}
	var b strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	if b.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}

// Embed returns one vector per text, batching requests as the API requires.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	model := "models/" + c.cfg.EmbeddingModel
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := min(start+maxBatch, len(texts))
		reqs := make([]map[string]any, 0, end-start)
		for _, t := range texts[start:end] {
			reqs = append(reqs, map[string]any{
				"model":   model,
				"content": content{Parts: []part{{Text: t}}},
			})
		}
		var out struct {
			Embeddings []struct {
				Values []float32 `json:"values"`
			} `json:"embeddings"`
		}
		if err := c.post(ctx, model+":batchEmbedContents", map[string]any{"requests": reqs}, &out); err != nil {
			return nil, err
		}
		if len(out.Embeddings) != end-start {
			return nil, fmt.Errorf("llm: expected %d embeddings, got %d", end-start, len(out.Embeddings))
		}
		for _, e := range out.Embeddings {
			vectors = append(vectors, e.Values)
		}
	}
	return vectors, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+"/"+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func errorMessage(body io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(body, 4096))
	var env struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &env) == nil && env.Error.Message != "" {
		return env.Error.Message
	}
	return strings.TrimSpace(string(raw))
}
