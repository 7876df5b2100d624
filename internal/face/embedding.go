// Package face provides embedding validation and similarity utilities shared
// between the enrollment and matching paths. Stored templates and match
// queries must go through the same preprocessing so their vectors stay
// comparable.
package face

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidEmbedding is returned by Preprocess when the vector fails
// validation. Callers use it to distinguish malformed client input from
// infrastructure failures.
var ErrInvalidEmbedding = errors.New("invalid embedding")

// EmbeddingDim is the fixed dimension for face embeddings (128 for MobileFaceNet).
const EmbeddingDim = 128

// PayloadType identifies the embedding format produced by the mobile client.
const PayloadType = "EMBEDDING_V1"

// l2NormTolerance accounts for floating point drift between the client that
// produced the embedding and this server. A vector within this tolerance of
// unit length is treated as already normalized.
const l2NormTolerance = 0.1

// Stats describes a validated embedding.
type Stats struct {
	Dimensions   int     `json:"dimensions"`
	L2Norm       float64 `json:"l2_norm"`
	IsNormalized bool    `json:"is_normalized"`
	MinValue     float64 `json:"min_value"`
	MaxValue     float64 `json:"max_value"`
	MeanValue    float64 `json:"mean_value"`
}

// ValidationResult holds the outcome of Validate.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
	Stats    Stats
}

// L2Norm computes the Euclidean length of an embedding vector.
func L2Norm(embedding []float32) float64 {
	var sumSquares float64
	for _, v := range embedding {
		sumSquares += float64(v) * float64(v)
	}
	return math.Sqrt(sumSquares)
}

// Normalize scales an embedding to unit length. A zero vector is returned
// unchanged since it cannot be normalized.
func Normalize(embedding []float32) []float32 {
	norm := L2Norm(embedding)
	if norm == 0 {
		return embedding
	}
	out := make([]float32, len(embedding))
	for i, v := range embedding {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

// IsNormalized reports whether the embedding is already unit length within
// tolerance.
func IsNormalized(embedding []float32) bool {
	return math.Abs(L2Norm(embedding)-1.0) < l2NormTolerance
}

// Validate checks embedding shape and content. Dimension mismatches and
// non-finite values are errors; an off-unit norm or unusual value range is
// only a warning because Preprocess can fix the former.
func Validate(embedding []float32) ValidationResult {
	var errs, warnings []string

	if len(embedding) != EmbeddingDim {
		errs = append(errs, fmt.Sprintf("expected %d dimensions, got %d", EmbeddingDim, len(embedding)))
	}

	minV := math.Inf(1)
	maxV := math.Inf(-1)
	var sum float64
	hasInvalid := false
	for _, v := range embedding {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			hasInvalid = true
			continue
		}
		minV = math.Min(minV, f)
		maxV = math.Max(maxV, f)
		sum += f
	}
	if hasInvalid {
		errs = append(errs, "embedding contains NaN or Infinity values")
	}
	if len(embedding) == 0 {
		minV, maxV = 0, 0
	}

	norm := L2Norm(embedding)
	normalized := math.Abs(norm-1.0) < l2NormTolerance
	if !normalized {
		warnings = append(warnings, fmt.Sprintf("embedding not L2 normalized (norm=%.4f, expected ~1.0)", norm))
	}
	if math.Abs(minV) > 1 || math.Abs(maxV) > 1 {
		warnings = append(warnings, fmt.Sprintf("unusual value range: [%.4f, %.4f]", minV, maxV))
	}

	mean := 0.0
	if len(embedding) > 0 {
		mean = sum / float64(len(embedding))
	}

	return ValidationResult{
		Valid:    len(errs) == 0,
		Errors:   errs,
		Warnings: warnings,
		Stats: Stats{
			Dimensions:   len(embedding),
			L2Norm:       norm,
			IsNormalized: normalized,
			MinValue:     minV,
			MaxValue:     maxV,
			MeanValue:    mean,
		},
	}
}

// Preprocess validates the embedding and normalizes it if needed. The result
// is idempotent: preprocessing an already-preprocessed vector returns the
// same vector. Used identically on enrollment and on every match query.
func Preprocess(embedding []float32) ([]float32, error) {
	result := Validate(embedding)
	if !result.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEmbedding, result.Errors)
	}
	if !result.Stats.IsNormalized {
		return Normalize(embedding), nil
	}
	return embedding, nil
}

// CosineSimilarity computes the cosine similarity of two vectors, clamped to
// [-1, 1] to absorb floating point error. For two unit vectors this equals
// their dot product.
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
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return sim
}

// CosineDistance converts similarity to the distance used by pgvector's <=>
// operator: distance = 1 - similarity.
func CosineDistance(a, b []float32) float64 {
	return 1 - CosineSimilarity(a, b)
}
