package vesper

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Embedding is a packed little-endian f32[D] blob, the on-disk
// representation every store uses for embedding columns (§9 "Embedding
// blobs"). Use EncodeEmbedding/DecodeEmbedding to convert to/from
// []float32; never hand-roll the byte layout elsewhere.
type Embedding []byte

// EncodeEmbedding packs a []float32 vector into its little-endian byte
// representation.
func EncodeEmbedding(vec []float32) Embedding {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeEmbedding unpacks a little-endian f32[D] blob into a []float32.
// It validates that len(blob) == dim*4 and fails fast on mismatch — this
// is a security invariant (§9): a mis-sized blob would silently corrupt
// the vector space if decoded anyway.
func DecodeEmbedding(blob Embedding, dim int) ([]float32, error) {
	if dim <= 0 {
		return nil, &IntegrityError{Message: "embedding dimension must be positive"}
	}
	want := dim * 4
	if len(blob) != want {
		return nil, &IntegrityError{
			Message: fmt.Sprintf("embedding blob length %d does not match expected %d (dim=%d)", len(blob), want, dim),
		}
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}

// CosineSimilarity computes the cosine similarity of two vectors. It
// returns 0 when the vectors differ in length or either has zero norm —
// the explicit zero-norm guard §4.3 requires, instead of NaN or a panic.
// Results lie in [-1, 1].
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	sim := dot / denom
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return sim
}

// SubtractVectors computes a - b elementwise, used to derive a skill
// relational vector (emb(b) - emb(a)), both when persisting relational
// vectors and during analogical search, where AddVectors then builds
// the target (emb(source) + rel). Returns nil if the vectors differ in
// length.
func SubtractVectors(a, b []float32) []float32 {
	if len(a) != len(b) {
		return nil
	}
	out := make([]float32, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}

// AddVectors computes a + b elementwise. Returns nil if the vectors
// differ in length.
func AddVectors(a, b []float32) []float32 {
	if len(a) != len(b) {
		return nil
	}
	out := make([]float32, len(a))
	for i := range a {
		out[i] = a[i] + b[i]
	}
	return out
}
