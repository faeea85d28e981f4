package models

import "fmt"

// CombineMethod selects how per-query scores are merged in multi-query retrieval.
type CombineMethod string

const (
	CombineAverage  CombineMethod = "average"
	CombineMin      CombineMethod = "min"
	CombineMax      CombineMethod = "max"
	CombineWeighted CombineMethod = "weighted"
)

// QueryRequest is a batch of questions with shared retrieval options.
type QueryRequest struct {
	Questions        []string      `json:"questions"`
	TopK             int           `json:"top_k,omitempty"`
	ScoreCeiling     *float64      `json:"score_ceiling,omitempty"`
	ScoreFloor       *float64      `json:"score_floor,omitempty"`
	AllowedDocuments []string      `json:"allowed_documents,omitempty"`
	AllowedSources   []string      `json:"allowed_sources,omitempty"`
	Deduplicate      bool          `json:"deduplicate,omitempty"`
	BoostRecent      bool          `json:"boost_recent,omitempty"`
	ContextWindow    int           `json:"context_window,omitempty"`
	CombineMethod    CombineMethod `json:"combine_method,omitempty"`
	// Weights pair with Questions by position for the weighted combine method.
	Weights []float64 `json:"weights,omitempty"`
}

// Validate ensures the request has questions and normalizes negative limits.
// A zero TopK means "use the configured default"; the retrieval layer applies
// the default and the configured ceiling.
func (q *QueryRequest) Validate() error {
	if len(q.Questions) == 0 {
		return fmt.Errorf("at least one question is required")
	}
	for i, question := range q.Questions {
		if question == "" {
			return fmt.Errorf("question %d is empty", i)
		}
	}
	if q.TopK < 0 {
		q.TopK = 0
	}
	if q.ContextWindow < 0 {
		q.ContextWindow = 0
	}
	return nil
}

// Answer is one slot of a query response. Exactly one of Answer or Error is
// meaningful; Error is set when that question's retrieval or generation failed.
type Answer struct {
	Question string          `json:"question"`
	Answer   string          `json:"answer,omitempty"`
	Error    string          `json:"error,omitempty"`
	Results  []*SearchResult `json:"results,omitempty"`
}

// QueryResponse holds one answer slot per input question, in input order.
type QueryResponse struct {
	Answers   []*Answer `json:"answers"`
	QueryTime int64     `json:"query_time_ms"`
}

// IngestRequest is the payload for ingesting pre-extracted plain text.
type IngestRequest struct {
	Text        string `json:"text"`
	SourceLabel string `json:"source_label"`
}

// Validate ensures the ingest request carries text.
func (r *IngestRequest) Validate() error {
	if r.Text == "" {
		return fmt.Errorf("text cannot be empty")
	}
	if r.SourceLabel == "" {
		r.SourceLabel = "inline"
	}
	return nil
}
