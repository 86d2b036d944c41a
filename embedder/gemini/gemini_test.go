package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func withTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	orig := baseURL
	baseURL = server.URL
	t.Cleanup(func() { baseURL = orig })
	return server
}

func TestEmbedReturnsVector(t *testing.T) {
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"embedding": map[string]any{"values": []float64{0.1, 0.2, 0.3}},
		})
	})

	e := New("key", "text-embedding-004", 3)
	vec, err := e.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("len(vec) = %d, want 3", len(vec))
	}
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	calls := 0
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]any{
			"embedding": map[string]any{"values": []float64{float64(calls), 0, 0}},
		})
	})

	e := New("key", "text-embedding-004", 3)
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("len(vecs) = %d, want 3", len(vecs))
	}
	for i, v := range vecs {
		if int(v[0]) != i+1 {
			t.Errorf("vecs[%d][0] = %v, want %d (order must be preserved)", i, v[0], i+1)
		}
	}
}

func TestEmbedFailsOnDimensionMismatch(t *testing.T) {
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"embedding": map[string]any{"values": []float64{0.1, 0.2}},
		})
	})

	e := New("key", "text-embedding-004", 3)
	if _, err := e.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected error when provider returns fewer dims than configured")
	}
}

func TestEmbedPropagatesHTTPErrors(t *testing.T) {
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	})

	e := New("key", "text-embedding-004", 3)
	if _, err := e.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected error on non-2xx response")
	}
}
