package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/kozaktomas/photo-dedup/internal/database"
)

const statsCacheTTL = 30 * time.Second

// cacheCounts holds the cached store counts with expiry
type cacheCounts struct {
	mu        sync.RWMutex
	features  int
	texts     int
	expiresAt time.Time
}

func (c *cacheCounts) get() (features, texts int, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if time.Now().After(c.expiresAt) {
		return 0, 0, false
	}
	return c.features, c.texts, true
}

func (c *cacheCounts) set(features, texts int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.features = features
	c.texts = texts
	c.expiresAt = time.Now().Add(statsCacheTTL)
}

func (c *cacheCounts) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expiresAt = time.Time{}
}

// StatsHandler handles statistics endpoints
type StatsHandler struct {
	features database.FeatureStore
	texts    database.TextStore
	runs     *RunManager
	logger   *slog.Logger
	cache    cacheCounts
}

// NewStatsHandler creates a new stats handler. Nil stores are reported as empty.
func NewStatsHandler(features database.FeatureStore, texts database.TextStore, runs *RunManager, logger *slog.Logger) *StatsHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &StatsHandler{
		features: features,
		texts:    texts,
		runs:     runs,
		logger:   logger,
	}
}

// InvalidateCache clears the cached counts so the next request queries the stores
func (h *StatsHandler) InvalidateCache() {
	h.cache.invalidate()
}

// StatsResponse represents the statistics response
type StatsResponse struct {
	CachedFeatures int               `json:"cached_features"`
	CachedTexts    int               `json:"cached_texts"`
	Runs           map[RunStatus]int `json:"runs"`
	GroupsFound    int               `json:"groups_found"`
	ImagesGrouped  int               `json:"images_grouped"`
}

// storeCounts queries the stores; a failing store counts as empty.
func (h *StatsHandler) storeCounts(ctx context.Context) (features, texts int) {
	if h.features != nil {
		n, err := h.features.CountFeatures(ctx)
		if err != nil {
			h.logger.Warn("counting cached features failed", "error", err)
		}
		features = n
	}
	if h.texts != nil {
		n, err := h.texts.CountTexts(ctx)
		if err != nil {
			h.logger.Warn("counting cached texts failed", "error", err)
		}
		texts = n
	}
	return features, texts
}

// Get returns cache sizes and a summary of the runs held in memory
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	features, texts, ok := h.cache.get()
	if !ok {
		features, texts = h.storeCounts(r.Context())
		h.cache.set(features, texts)
	}

	stats := StatsResponse{
		CachedFeatures: features,
		CachedTexts:    texts,
		Runs:           map[RunStatus]int{},
	}
	if h.runs != nil {
		for _, run := range h.runs.ListRuns() {
			stats.Runs[run.Status]++
			if run.Status != RunStatusCompleted {
				continue
			}
			// ListRuns drops reports
			if full := h.runs.GetRun(run.ID); full != nil {
				if report := full.Snapshot().Report; report != nil {
					stats.GroupsFound += report.Stats.Groups
					stats.ImagesGrouped += report.Stats.Grouped
				}
			}
		}
	}

	respondJSON(w, http.StatusOK, stats)
}
