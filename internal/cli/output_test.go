package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func sampleResponse() *models.QueryResponse {
	return &models.QueryResponse{
		QueryTime: 42,
		Answers: []*models.Answer{
			{
				Question: "What is the grace period?",
				Answer:   "Thirty days.",
				Results: []*models.SearchResult{
					{
						Chunk: &models.Chunk{ID: "doc-1_0", DocumentID: "doc-1", Position: 0, Text: "The grace period is thirty days."},
						Score: 0.12, Rank: 1, Tier: models.TierHigh,
					},
				},
			},
			{Question: "Broken one", Error: "provider error (auth): bad key"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"json", OutputJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteAnswers_text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAnswers(&buf, sampleResponse(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Q1: What is the grace period?", "Thirty days.", "Sources:", "Error: provider error (auth): bad key"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteAnswers_json(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAnswers(&buf, sampleResponse(), OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.QueryResponse
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(decoded.Answers) != 2 || decoded.Answers[0].Answer != "Thirty days." {
		t.Errorf("unexpected decoded response: %+v", decoded)
	}
}

func TestWriteSearchResults_text(t *testing.T) {
	results := []*models.SearchResult{
		{Chunk: &models.Chunk{DocumentID: "doc-1", Position: 2, Text: strings.Repeat("long text ", 40)}, Score: 0.5, Rank: 1, Tier: models.TierMedium},
	}
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, results, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "Found 1 result(s)") || !strings.Contains(out, "[medium]") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "...") {
		t.Error("long chunk text should be truncated")
	}
}
