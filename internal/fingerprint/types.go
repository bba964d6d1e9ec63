package fingerprint

import "math"

// ImageInfo describes a single image file and its perceptual hashes
type ImageInfo struct {
	Path   string `json:"path"`
	Width  int    `json:"width"`
	Height int    `json:"height"`

	// Perceptual hashes (computed)
	PHash string `json:"phash"`
	DHash string `json:"dhash"`

	// For internal use (comparison)
	PHashBits uint64 `json:"-"`
	DHashBits uint64 `json:"-"`

	Error string `json:"error,omitempty"`
}

// ImageInfoBatch represents multiple images for batch output
type ImageInfoBatch struct {
	Images []ImageInfo `json:"images"`
	Count  int         `json:"count"`
}

// Features holds the two embedding vectors computed for one image.
// Semantic comes from a vision-language model (CLIP), Visual from the
// penultimate layer of an image classifier (ResNet).
type Features struct {
	Semantic []float32
	Visual   []float32
	Model    string // semantic model name reported by the server
}

// CosineSimilarity computes the cosine similarity between two embedding vectors
// Returns a value between -1 and 1, where 1 means identical.
// Mismatched, empty, or zero vectors return 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors
	return max(-1, min(1, similarity))
}

// CosineDistance is 1 - CosineSimilarity, in [0, 2]
func CosineDistance(a, b []float32) float64 {
	return 1 - CosineSimilarity(a, b)
}
