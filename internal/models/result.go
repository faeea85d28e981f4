package models

// RelevanceTier is a coarse bucket derived from a raw distance score.
type RelevanceTier string

const (
	TierHigh    RelevanceTier = "high"
	TierMedium  RelevanceTier = "medium"
	TierLow     RelevanceTier = "low"
	TierVeryLow RelevanceTier = "very_low"
)

// Tier boundaries on squared-L2 distance (lower = more similar).
// Scores below TierHighMax are high, below TierMediumMax medium,
// below TierLowMax low, and everything else very_low.
const (
	TierHighMax   = 0.3
	TierMediumMax = 0.6
	TierLowMax    = 0.9
)

// TierForScore maps a raw distance to its relevance tier.
func TierForScore(score float64) RelevanceTier {
	switch {
	case score < TierHighMax:
		return TierHigh
	case score < TierMediumMax:
		return TierMedium
	case score < TierLowMax:
		return TierLow
	default:
		return TierVeryLow
	}
}

// SearchResult is a single retrieval hit. Score is a distance (lower = better);
// Rank is 1-based ascending distance.
type SearchResult struct {
	Chunk   *Chunk        `json:"chunk"`
	Score   float64       `json:"score"`
	Rank    int           `json:"rank"`
	Tier    RelevanceTier `json:"tier"`
	Context []*Chunk      `json:"context,omitempty"`
}
