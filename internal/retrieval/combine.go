package retrieval

import (
	"fmt"
	"sort"

	"github.com/hyperjump/kotae/internal/models"
)

// MultiRetrieve runs one search per query vector (e.g. paraphrases of the
// same question), combines per-chunk scores with the selected method, and
// re-ranks the union by combined score. Weights pair with query vectors by
// position for the weighted method; missing weights default to 1.
func (r *Retriever) MultiRetrieve(queries [][]float32, opts Options) ([]*models.SearchResult, error) {
	if len(queries) == 0 {
		return nil, fmt.Errorf("no query vectors provided")
	}
	if len(queries) == 1 {
		return r.Retrieve(queries[0], opts)
	}
	k := r.clampTopK(opts.TopK)

	type combined struct {
		result  *models.SearchResult
		scores  []float64
		weights []float64
	}
	byChunk := make(map[string]*combined)

	perQuery := opts
	perQuery.TopK = k * 2
	perQuery.ContextWindow = 0 // expansion happens once, after combining
	for qi, query := range queries {
		results, err := r.Retrieve(query, perQuery)
		if err != nil {
			return nil, fmt.Errorf("query %d: %w", qi, err)
		}
		weight := 1.0
		if qi < len(opts.Weights) {
			weight = opts.Weights[qi]
		}
		for _, res := range results {
			c, ok := byChunk[res.Chunk.ID]
			if !ok {
				c = &combined{result: res}
				byChunk[res.Chunk.ID] = c
			}
			c.scores = append(c.scores, res.Score)
			c.weights = append(c.weights, weight)
		}
	}

	union := make([]*models.SearchResult, 0, len(byChunk))
	for _, c := range byChunk {
		c.result.Score = combineScores(c.scores, c.weights, opts.CombineMethod)
		union = append(union, c.result)
	}
	sort.Slice(union, func(i, j int) bool { return union[i].Score < union[j].Score })
	if len(union) > k {
		union = union[:k]
	}
	rerank(union)
	if opts.ContextWindow > 0 {
		if err := r.expandContext(union, opts.ContextWindow); err != nil {
			return nil, err
		}
	}
	return union, nil
}

// combineScores merges the per-query scores of one chunk. Distances combine
// so that lower stays better under every method.
func combineScores(scores, weights []float64, method models.CombineMethod) float64 {
	switch method {
	case models.CombineMin:
		min := scores[0]
		for _, s := range scores[1:] {
			if s < min {
				min = s
			}
		}
		return min
	case models.CombineMax:
		max := scores[0]
		for _, s := range scores[1:] {
			if s > max {
				max = s
			}
		}
		return max
	case models.CombineWeighted:
		var sum, weightSum float64
		for i, s := range scores {
			sum += s * weights[i]
			weightSum += weights[i]
		}
		if weightSum == 0 {
			weightSum = float64(len(scores))
		}
		return sum / weightSum
	default: // average
		var sum float64
		for _, s := range scores {
			sum += s
		}
		return sum / float64(len(scores))
	}
}
