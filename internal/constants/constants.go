// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Similarity threshold defaults (the "default" preset)
const (
	// DefaultPHashThreshold is the maximum Hamming distance between two 64-bit
	// perceptual hashes for a pair to be considered at all
	DefaultPHashThreshold = 30

	// DefaultSemanticThreshold is the cosine similarity the semantic (CLIP)
	// embeddings must exceed
	DefaultSemanticThreshold = 0.85

	// DefaultVisualThreshold is the cosine similarity the visual-feature
	// (ResNet) embeddings must exceed
	DefaultVisualThreshold = 0.85

	// DefaultTextThreshold is the minimum extracted-text similarity ratio
	DefaultTextThreshold = 0.7

	// DefaultMinGroupSize is the smallest group that is reported
	DefaultMinGroupSize = 2

	// MaxHashDistance is the number of bits in a perceptual hash
	MaxHashDistance = 64
)

// Scale reducer constants
const (
	// DefaultClusterTrigger is the image count above which the scale reducer runs
	DefaultClusterTrigger = 200

	// ReducerComponents is the number of principal components kept before clustering
	ReducerComponents = 50

	// ReducerImagesPerCluster controls the target cluster count (n / ReducerImagesPerCluster)
	ReducerImagesPerCluster = 20

	// ReducerMaxClusters caps the target cluster count
	ReducerMaxClusters = 50

	// ReducerSeed makes clustering reproducible between runs
	ReducerSeed = 42

	// ReducerMaxIterations bounds Lloyd iterations
	ReducerMaxIterations = 300

	// ReducerTolerance stops Lloyd iterations once centroids move less than this
	ReducerTolerance = 1e-4
)

// Processing constants
const (
	// DefaultWorkers is the default comparison concurrency width
	DefaultWorkers = 8

	// MinWorkers and MaxWorkers bound any caller-supplied concurrency width
	MinWorkers = 1
	MaxWorkers = 64

	// MaxImageSize is the maximum dimension (width or height) sent to remote models
	MaxImageSize = 1920

	// OCRImageSize is the maximum dimension sent to vision-LLM text extractors
	OCRImageSize = 1600

	// DefaultOCRLanguage is the tesseract language hint used for the heritage corpus
	DefaultOCRLanguage = "chi_sim"
)

// Match command constants
const (
	// DefaultMatchCandidates is the number of nearest neighbours pulled from the
	// HNSW index before full evaluation (0 evaluates the whole folder)
	DefaultMatchCandidates = 100

	// HNSWMaxNeighbors is the M parameter of the HNSW graph
	HNSWMaxNeighbors = 16
)

// Web constants
const (
	// EventChannelBuffer is the buffer size of SSE listener channels
	EventChannelBuffer = 100

	// MaxStoredRuns is the number of finished runs kept in memory by the API server
	MaxStoredRuns = 50
)

// SupportedExtensions lists the file extensions scanned in an image folder
var SupportedExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff", ".webp", ".gif"}
