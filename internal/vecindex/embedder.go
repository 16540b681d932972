package vecindex

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"math"
)

// Embedder produces unit-normalized vectors from text. ModelID tags
// stored vectors so a model swap invalidates them without a wipe.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	ModelID() string
	Dimension() int
}

// HashEmbedder is a deterministic signed-bucket embedder that needs no
// external API. Retrieval quality is rough but the geometry is sound,
// which makes it the default for local runs and tests.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a hash embedder with the given dimension.
func NewHashEmbedder(dim int) *HashEmbedder {
	return &HashEmbedder{dim: dim}
}

func (e *HashEmbedder) ModelID() string { return "hash-v1" }

func (e *HashEmbedder) Dimension() int { return e.dim }

func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return e.embedText(text), nil
}

func (e *HashEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		vecs[i] = e.embedText(t)
	}
	return vecs, nil
}

func (e *HashEmbedder) embedText(text string) []float32 {
	vec := make([]float32, e.dim)
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return vec
	}
	for _, tok := range tokens {
		h := sha1.Sum([]byte(tok))
		idx := binary.LittleEndian.Uint32(h[:4]) % uint32(e.dim)
		sign := float32(1)
		if h[4]&1 == 1 {
			sign = -1
		}
		vec[idx] += sign
	}
	Normalize(vec)
	return vec
}

// Dot computes the dot product of two equal-length vectors. Stored
// vectors are unit-normalized, so this is cosine similarity.
func Dot(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Normalize L2-normalizes a vector in place. A zero vector is left as is.
func Normalize(vec []float32) {
	var sum float32
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(float64(sum)))
	for i := range vec {
		vec[i] /= norm
	}
}

// EncodeVector serializes a float32 vector to little-endian bytes for
// BLOB storage.
func EncodeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeVector deserializes little-endian bytes to a float32 vector.
// Returns nil for malformed input.
func DecodeVector(data []byte) []float32 {
	if len(data)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec
}

// tokenize lowercases and splits on non-alphanumeric bytes.
func tokenize(text string) []string {
	var tokens []string
	tok := make([]byte, 0, 32)
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c >= 'a' && c <= 'z' || c >= '0' && c <= '9':
			tok = append(tok, c)
		case c >= 'A' && c <= 'Z':
			tok = append(tok, c+32)
		default:
			if len(tok) > 0 {
				tokens = append(tokens, string(tok))
				tok = tok[:0]
			}
		}
	}
	if len(tok) > 0 {
		tokens = append(tokens, string(tok))
	}
	return tokens
}
