// Package cli provides CLI output helpers for Kotae.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat maps a flag value onto an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch s {
	case "", "text":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteAnswers writes a query response to w in the given format.
func WriteAnswers(w io.Writer, response *models.QueryResponse, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	}
	fmt.Fprintf(w, "\nAnswered %d question(s) in %dms\n", len(response.Answers), response.QueryTime)
	for i, ans := range response.Answers {
		fmt.Fprintf(w, "\n─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Q%d: %s\n", i+1, ans.Question)
		if ans.Error != "" {
			fmt.Fprintf(w, "Error: %s\n", ans.Error)
			continue
		}
		fmt.Fprintf(w, "\n%s\n", ans.Answer)
		if len(ans.Results) > 0 {
			fmt.Fprintf(w, "\nSources:\n")
			for _, res := range ans.Results {
				writeOneResult(w, res)
			}
		}
	}
	return nil
}

// WriteSearchResults writes retrieval results to w in the given format.
func WriteSearchResults(w io.Writer, results []*models.SearchResult, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	fmt.Fprintf(w, "\nFound %d result(s)\n\n", len(results))
	for _, res := range results {
		writeOneResult(w, res)
	}
	return nil
}

func writeOneResult(w io.Writer, res *models.SearchResult) {
	fmt.Fprintf(w, "  %d. [%s] score %.4f  %s (chunk %d)\n",
		res.Rank, res.Tier, res.Score, res.Chunk.DocumentID, res.Chunk.Position)
	fmt.Fprintf(w, "     %s\n", utils.Truncate(res.Chunk.Text, 200))
}
