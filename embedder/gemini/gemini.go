// Package gemini implements vesper.Embedder against the Gemini embedding
// API. It is adapted from the teacher's chat provider's embedding
// support, stripped of chat/streaming/tool-calling — this package only
// ever calls the embedContent endpoint.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/oculusnoob/vesper-memory"
)

var baseURL = "https://generativelanguage.googleapis.com/v1beta"

// Embedder implements vesper.Embedder against a Gemini embedding model.
type Embedder struct {
	apiKey     string
	model      string
	dims       int
	httpClient *http.Client
}

// New builds an Embedder for model (e.g. "text-embedding-004") producing
// dims-dimensional vectors.
func New(apiKey, model string, dims int) *Embedder {
	return &Embedder{apiKey: apiKey, model: model, dims: dims, httpClient: &http.Client{}}
}

var _ vesper.Embedder = (*Embedder)(nil)

// Dim returns the configured embedding dimensionality.
func (e *Embedder) Dim() int { return e.dims }

type embedValues struct {
	Values []float64 `json:"values"`
}

type embedResponse struct {
	Embedding *embedValues `json:"embedding"`
}

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds each text sequentially against the embedContent
// endpoint and returns one vector per input, in order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	url := fmt.Sprintf("%s/models/%s:embedContent?key=%s", baseURL, e.model, e.apiKey)

	vecs := make([][]float32, 0, len(texts))
	for _, text := range texts {
		body := map[string]any{
			"content":              map[string]any{"parts": []map[string]any{{"text": text}}},
			"outputDimensionality": e.dims,
		}
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, &vesper.UpstreamError{Collaborator: "gemini-embedder", Err: fmt.Errorf("marshal embed body: %w", err)}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
		if err != nil {
			return nil, &vesper.UpstreamError{Collaborator: "gemini-embedder", Err: fmt.Errorf("create embed request: %w", err)}
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := e.httpClient.Do(httpReq)
		if err != nil {
			return nil, &vesper.UpstreamError{Collaborator: "gemini-embedder", Err: fmt.Errorf("embed request failed: %w", err)}
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, &vesper.UpstreamError{Collaborator: "gemini-embedder", Err: fmt.Errorf("read embed response: %w", err)}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &vesper.UpstreamError{Collaborator: "gemini-embedder", Err: fmt.Errorf("status %d: %s", resp.StatusCode, respBody)}
		}

		var parsed embedResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return nil, &vesper.UpstreamError{Collaborator: "gemini-embedder", Err: fmt.Errorf("parse embed response: %w", err)}
		}
		if parsed.Embedding == nil {
			return nil, &vesper.UpstreamError{Collaborator: "gemini-embedder", Err: fmt.Errorf("missing embedding.values in response")}
		}

		vec := make([]float32, len(parsed.Embedding.Values))
		for i, v := range parsed.Embedding.Values {
			vec[i] = float32(v)
		}
		if len(vec) != e.dims {
			return nil, &vesper.IntegrityError{Message: fmt.Sprintf("gemini returned %d dims, expected %d", len(vec), e.dims)}
		}
		vecs = append(vecs, vec)
	}
	return vecs, nil
}
