package vesper

import "context"

// Embedder is the external collaborator the core calls through for
// text-to-vector embedding (C9). The embedding model itself is
// deliberately out of scope — implementations wrap a concrete provider
// (see embedder/gemini) or a test fake.
type Embedder interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one embedding vector per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dim returns the fixed embedding dimensionality D this Embedder
	// produces.
	Dim() int
}
