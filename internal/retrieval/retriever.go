// Package retrieval wraps the vector index with filtering, deduplication,
// recency boosting, multi-query combination, and context expansion.
package retrieval

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

// Config holds the retrieval heuristics. Zero values take the defaults.
type Config struct {
	// DefaultTopK is the result count when a request does not set one.
	DefaultTopK int
	// MaxTopK caps the result count a request may ask for.
	MaxTopK int
	// DedupWindow groups chunks of one document whose positions fall within
	// the same window; near-adjacent hits collapse to the highest-ranked.
	DedupWindow int
	// RecencyHalfLifeDays controls the exponential age decay of the boost.
	RecencyHalfLifeDays float64
	// RecencyFactor is the maximum fraction of the raw score the boost may
	// subtract for a brand-new document.
	RecencyFactor float64
	// DominanceMargin caps the absolute boost delta. Two results whose raw
	// score gap exceeds the margin can never swap order under boosting.
	DominanceMargin float64
}

// DefaultConfig mirrors the documented heuristics.
var DefaultConfig = Config{
	DefaultTopK:         5,
	MaxTopK:             100,
	DedupWindow:         3,
	RecencyHalfLifeDays: 30,
	RecencyFactor:       0.1,
	DominanceMargin:     0.05,
}

// Options selects the strategies for one retrieval call.
type Options struct {
	TopK             int
	ScoreCeiling     *float64
	ScoreFloor       *float64
	AllowedDocuments []string
	AllowedSources   []string
	Deduplicate      bool
	BoostRecent      bool
	ContextWindow    int
	// CombineMethod and Weights apply to multi-query retrieval only.
	CombineMethod models.CombineMethod
	Weights       []float64
}

// Retriever runs multi-strategy similarity retrieval over the index.
type Retriever struct {
	index  *vector.Index
	cfg    Config
	logger *zap.Logger // optional; when set, logs debug events
}

// New creates a retriever over idx. The logger may be nil.
func New(idx *vector.Index, cfg Config, logger *zap.Logger) *Retriever {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = DefaultConfig.DefaultTopK
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = DefaultConfig.MaxTopK
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = DefaultConfig.DedupWindow
	}
	if cfg.RecencyHalfLifeDays <= 0 {
		cfg.RecencyHalfLifeDays = DefaultConfig.RecencyHalfLifeDays
	}
	if cfg.RecencyFactor <= 0 {
		cfg.RecencyFactor = DefaultConfig.RecencyFactor
	}
	if cfg.DominanceMargin <= 0 {
		cfg.DominanceMargin = DefaultConfig.DominanceMargin
	}
	return &Retriever{index: idx, cfg: cfg, logger: logger}
}

// Retrieve runs a single-vector search with the configured strategies applied
// in order: score filtering, deduplication, recency boosting, top-k cut,
// context expansion.
func (r *Retriever) Retrieve(query []float32, opts Options) ([]*models.SearchResult, error) {
	k := r.clampTopK(opts.TopK)
	// Overfetch so dedup and boosting still have k candidates to choose from.
	results, err := r.index.Search(query, k*3, vector.SearchOptions{
		ScoreCeiling:     opts.ScoreCeiling,
		ScoreFloor:       opts.ScoreFloor,
		AllowedDocuments: opts.AllowedDocuments,
		AllowedSources:   opts.AllowedSources,
	})
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}
	if opts.Deduplicate {
		results = r.deduplicate(results)
	}
	if opts.BoostRecent {
		results = r.boostRecent(results)
	}
	if len(results) > k {
		results = results[:k]
	}
	rerank(results)
	if opts.ContextWindow > 0 {
		if err := r.expandContext(results, opts.ContextWindow); err != nil {
			return nil, err
		}
	}
	if r.logger != nil {
		r.logger.Debug("retrieve", zap.Int("k", k), zap.Int("results", len(results)))
	}
	return results, nil
}

// deduplicate keeps only the highest-ranked result among chunks of the same
// document within one position window, or with near-identical text. It never
// grows the set and never removes the top result.
func (r *Retriever) deduplicate(results []*models.SearchResult) []*models.SearchResult {
	seenWindow := make(map[string]bool)
	seenText := make(map[string]bool)
	kept := results[:0]
	for _, res := range results {
		windowKey := fmt.Sprintf("%s_%d", res.Chunk.DocumentID, res.Chunk.Position/r.cfg.DedupWindow)
		textKey := normalizeText(res.Chunk.Text)
		if seenWindow[windowKey] || seenText[textKey] {
			continue
		}
		seenWindow[windowKey] = true
		seenText[textKey] = true
		kept = append(kept, res)
	}
	return kept
}

// boostRecent subtracts a recency-dependent delta from each raw score so
// newer documents rank better at equal similarity, then re-sorts. The delta
// is capped by DominanceMargin, so a pair with a raw gap above the margin
// keeps its relative order.
func (r *Retriever) boostRecent(results []*models.SearchResult) []*models.SearchResult {
	now := time.Now()
	for _, res := range results {
		doc, err := r.index.Document(res.Chunk.DocumentID)
		if err != nil {
			continue
		}
		ageDays := now.Sub(doc.CreatedAt).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		delta := res.Score * r.cfg.RecencyFactor * math.Exp(-ageDays/r.cfg.RecencyHalfLifeDays)
		if delta > r.cfg.DominanceMargin {
			delta = r.cfg.DominanceMargin
		}
		res.Score -= delta
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score < results[j].Score })
	return results
}

// expandContext attaches up to window neighboring chunks per side to each
// result, in document order.
func (r *Retriever) expandContext(results []*models.SearchResult, window int) error {
	for _, res := range results {
		neighbors, err := r.index.Neighbors(res.Chunk.ID, window)
		if err != nil {
			return fmt.Errorf("expand context: %w", err)
		}
		res.Context = neighbors
	}
	return nil
}

// clampTopK applies the configured default and ceiling to a requested k.
func (r *Retriever) clampTopK(k int) int {
	if k <= 0 {
		return r.cfg.DefaultTopK
	}
	if k > r.cfg.MaxTopK {
		return r.cfg.MaxTopK
	}
	return k
}

// rerank reassigns 1-based ranks and tiers after filtering or boosting.
func rerank(results []*models.SearchResult) {
	for i, res := range results {
		res.Rank = i + 1
		res.Tier = models.TierForScore(res.Score)
	}
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
