package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Client talks to an OpenAI-compatible embeddings endpoint.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

func NewFromEnv() *Client {
	base := os.Getenv("COURSERAG_OPENAI_BASE_URL")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	model := os.Getenv("COURSERAG_EMBEDDING_MODEL")
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		apiKey:  os.Getenv("COURSERAG_OPENAI_API_KEY"),
		model:   model,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Model returns the configured embedding model id.
func (c *Client) Model() string { return c.model }

// Embeddings implements llm.Embedder using an OpenAI-compatible API.
func (c *Client) Embeddings(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	if model == "" {
		model = c.model
	}
	b, _ := json.Marshal(map[string]any{"model": model, "input": inputs})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embeddings http %d: %s", resp.StatusCode, string(data))
	}
	var out struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	res := make([][]float32, 0, len(out.Data))
	for _, d := range out.Data {
		res = append(res, d.Embedding)
	}
	return res, nil
}
