package database

import (
	"cmp"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/photo-dedup/internal/constants"
	"github.com/kozaktomas/photo-dedup/internal/fingerprint"
)

// HNSWIndex wraps an HNSW graph over semantic embeddings keyed by image path.
// The match command uses it to pre-select candidates for a query image.
type HNSWIndex struct {
	graph      *hnsw.Graph[string]
	savedGraph *hnsw.SavedGraph[string] // set when loaded from disk
	dim        int
	digest     string
	mu         sync.RWMutex
}

// IndexedVector is one entry to index.
type IndexedVector struct {
	Key    string
	Vector []float32
}

// VectorsDigest fingerprints the entries Build would index: their keys and
// vector values, in any order. A saved index is current only while the
// digest of the folder's vectors still equals the one in its metadata.
func VectorsDigest(items []IndexedVector) string {
	indexable := make([]IndexedVector, 0, len(items))
	for _, it := range items {
		if len(it.Vector) > 0 {
			indexable = append(indexable, it)
		}
	}
	slices.SortFunc(indexable, func(a, b IndexedVector) int { return cmp.Compare(a.Key, b.Key) })

	h := sha256.New()
	buf := make([]byte, 4)
	for _, it := range indexable {
		h.Write([]byte(it.Key))
		h.Write([]byte{0})
		for _, v := range it.Vector {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
			h.Write(buf)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NewHNSWIndex creates a new empty HNSW index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = constants.HNSWMaxNeighbors
	g.Ml = 1.0 / float64(constants.HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index contents. Entries without a vector are skipped;
// all other vectors must share one dimension.
func (h *HNSWIndex) Build(items []IndexedVector) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	g := newGraph()
	dim := 0
	for _, it := range items {
		if len(it.Vector) == 0 {
			continue
		}
		if dim == 0 {
			dim = len(it.Vector)
		} else if len(it.Vector) != dim {
			return fmt.Errorf("vector for %s has dimension %d, index has %d", it.Key, len(it.Vector), dim)
		}
		g.Add(hnsw.MakeNode(it.Key, it.Vector))
	}

	h.graph = g
	h.savedGraph = nil
	h.dim = dim
	h.digest = VectorsDigest(items)
	return nil
}

func (h *HNSWIndex) active() *hnsw.Graph[string] {
	if h.savedGraph != nil {
		return h.savedGraph.Graph
	}
	return h.graph
}

// Search finds the k nearest neighbors to the query embedding.
// Returns keys and their cosine distances, nearest first.
func (h *HNSWIndex) Search(query []float32, k int) ([]string, []float64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	g := h.active()
	if g == nil {
		return nil, nil, errors.New("index not initialized")
	}
	if g.Len() == 0 || k <= 0 {
		return nil, nil, nil
	}
	if h.dim != 0 && len(query) != h.dim {
		return nil, nil, fmt.Errorf("query has dimension %d, index has %d", len(query), h.dim)
	}

	neighbors := g.Search(query, k)
	keys := make([]string, len(neighbors))
	distances := make([]float64, len(neighbors))
	for i, n := range neighbors {
		keys[i] = n.Key
		distances[i] = fingerprint.CosineDistance(query, n.Value)
	}
	return keys, distances, nil
}

// Count returns the number of indexed vectors.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if g := h.active(); g != nil {
		return g.Len()
	}
	return 0
}

// HNSWIndexMetadata is written next to a saved graph as <path>.meta.
type HNSWIndexMetadata struct {
	Count     int       `json:"count"`
	Dim       int       `json:"dim"`
	Digest    string    `json:"digest"`
	BuildTime time.Time `json:"build_time"`
	Version   int       `json:"version"`
}

const hnswMetadataVersion = 2

// Save persists the index to path and its metadata to path.meta.
func (h *HNSWIndex) Save(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	g := h.active()
	if g == nil {
		return errors.New("index not initialized")
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	defer f.Close()

	if err := g.Export(f); err != nil {
		return fmt.Errorf("exporting HNSW graph: %w", err)
	}

	metadata := HNSWIndexMetadata{
		Count:     g.Len(),
		Dim:       h.dim,
		Digest:    h.digest,
		BuildTime: time.Now(),
		Version:   hnswMetadataVersion,
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", data, 0o600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// LoadHNSWMetadata reads the metadata saved next to an index.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata
	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	if metadata.Version != hnswMetadataVersion {
		return metadata, fmt.Errorf("unsupported index metadata version %d", metadata.Version)
	}
	return metadata, nil
}

// Load replaces the index with the graph saved at path.
func (h *HNSWIndex) Load(path string) error {
	metadata, err := LoadHNSWMetadata(path)
	if err != nil {
		return err
	}
	saved, err := hnsw.LoadSavedGraph[string](path)
	if err != nil {
		return fmt.Errorf("failed to load HNSW index: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.savedGraph = saved
	h.graph = nil
	h.dim = metadata.Dim
	h.digest = metadata.Digest
	return nil
}
