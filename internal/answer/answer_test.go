package answer

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/provider"
	"github.com/hyperjump/kotae/internal/retrieval"
	"github.com/hyperjump/kotae/internal/vector"
)

// fakeEmbedder maps texts to fixed vectors, defaulting to the zero corner.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = []float32{0, 0}
		}
	}
	return out, nil
}

type fakeGenerator struct {
	err      error
	lastCtx  string
	answerFn func(question string) string
}

func (f *fakeGenerator) Generate(_ context.Context, question, docContext string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.lastCtx = docContext
	if f.answerFn != nil {
		return f.answerFn(question), nil
	}
	return "answer to " + question, nil
}

func newTestOrchestrator(t *testing.T, emb provider.Embedder, gen provider.Generator) *Orchestrator {
	t.Helper()
	idx := vector.New()
	_, err := idx.Add("doc-1", [][]float32{{0, 0}, {10, 10}}, []string{
		"The grace period is thirty days.",
		"Claims must be filed within ninety days.",
	}, "policy.txt")
	if err != nil {
		t.Fatalf("seed index: %v", err)
	}
	retriever := retrieval.New(idx, retrieval.DefaultConfig, nil)
	cfg := DefaultConfig
	cfg.Retry.Attempts = 1
	return New(emb, gen, retriever, cfg, nil)
}

func TestAsk_OrderedAnswers(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"first":  {0, 0},
		"second": {10, 10},
	}}
	gen := &fakeGenerator{}
	orch := newTestOrchestrator(t, emb, gen)

	resp, err := orch.Ask(context.Background(), &models.QueryRequest{
		Questions: []string{"first", "second"},
	})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if len(resp.Answers) != 2 {
		t.Fatalf("expected 2 answer slots, got %d", len(resp.Answers))
	}
	for i, want := range []string{"first", "second"} {
		if resp.Answers[i].Question != want {
			t.Errorf("slot %d: question = %q, want %q", i, resp.Answers[i].Question, want)
		}
		if resp.Answers[i].Error != "" {
			t.Errorf("slot %d: unexpected error %q", i, resp.Answers[i].Error)
		}
		if resp.Answers[i].Answer == "" {
			t.Errorf("slot %d: empty answer", i)
		}
		if len(resp.Answers[i].Results) == 0 {
			t.Errorf("slot %d: no retrieval results attached", i)
		}
	}
}

func TestAsk_GenerationFailureIsolatedPerQuestion(t *testing.T) {
	emb := &fakeEmbedder{}
	calls := 0
	gen := &fakeGenerator{answerFn: func(q string) string { return "ok" }}
	orch := newTestOrchestrator(t, emb, gen)

	// Fail only the first generation call via a wrapping generator.
	failing := generatorFunc(func(ctx context.Context, q, c string) (string, error) {
		calls++
		if calls == 1 {
			return "", &provider.Error{Kind: provider.KindMalformed, Err: fmt.Errorf("bad prompt")}
		}
		return gen.Generate(ctx, q, c)
	})
	orch.generator = failing

	resp, err := orch.Ask(context.Background(), &models.QueryRequest{
		Questions: []string{"broken", "fine"},
	})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if resp.Answers[0].Error == "" {
		t.Error("expected error slot for failing question")
	}
	if resp.Answers[0].Answer != "" {
		t.Errorf("failing slot should carry no answer, got %q", resp.Answers[0].Answer)
	}
	if resp.Answers[1].Error != "" || resp.Answers[1].Answer != "ok" {
		t.Errorf("second slot = %+v, want clean answer", resp.Answers[1])
	}
}

type generatorFunc func(ctx context.Context, question, context string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, question, docContext string) (string, error) {
	return f(ctx, question, docContext)
}

func TestAsk_EmbedFailureFillsErrorSlot(t *testing.T) {
	emb := &fakeEmbedder{err: &provider.Error{Kind: provider.KindAuth, Err: fmt.Errorf("bad key")}}
	orch := newTestOrchestrator(t, emb, &fakeGenerator{})

	resp, err := orch.Ask(context.Background(), &models.QueryRequest{Questions: []string{"q"}})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !strings.Contains(resp.Answers[0].Error, "auth") {
		t.Errorf("error slot = %q, want auth failure", resp.Answers[0].Error)
	}
}

func TestAsk_CancelledContextFillsRemainingSlots(t *testing.T) {
	emb := &fakeEmbedder{}
	orch := newTestOrchestrator(t, emb, &fakeGenerator{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp, err := orch.Ask(ctx, &models.QueryRequest{Questions: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	for i, ans := range resp.Answers {
		if ans.Error == "" {
			t.Errorf("slot %d: expected cancellation error", i)
		}
	}
}

func TestAsk_ValidatesRequest(t *testing.T) {
	orch := newTestOrchestrator(t, &fakeEmbedder{}, &fakeGenerator{})
	if _, err := orch.Ask(context.Background(), &models.QueryRequest{}); err == nil {
		t.Fatal("expected validation error for empty question list")
	}
}

func TestSearch_CombinesParaphrases(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"near zero": {0.1, 0.1},
		"near ten":  {9.9, 9.9},
	}}
	orch := newTestOrchestrator(t, emb, &fakeGenerator{})

	results, err := orch.Search(context.Background(), &models.QueryRequest{
		Questions:     []string{"near zero", "near ten"},
		TopK:          2,
		CombineMethod: models.CombineMin,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected union of both chunks, got %d results", len(results))
	}
	if results[0].Rank != 1 || results[1].Rank != 2 {
		t.Errorf("ranks = %d,%d, want 1,2", results[0].Rank, results[1].Rank)
	}
}

func TestComposeContext(t *testing.T) {
	t.Run("empty results", func(t *testing.T) {
		got := ComposeContext(nil, 3)
		if !strings.Contains(got, "No relevant context") {
			t.Errorf("got %q", got)
		}
	})

	t.Run("tags and order", func(t *testing.T) {
		results := []*models.SearchResult{
			{Chunk: &models.Chunk{Text: "most relevant"}, Score: 0.1},
			{Chunk: &models.Chunk{Text: "less relevant"}, Score: 0.5},
		}
		got := ComposeContext(results, 3)
		if !strings.HasPrefix(got, "[Relevance: 0.100] most relevant") {
			t.Errorf("context does not lead with best chunk: %q", got)
		}
		if !strings.Contains(got, "\n\n[Relevance: 0.500] less relevant") {
			t.Errorf("missing second chunk block: %q", got)
		}
	})

	t.Run("limit caps chunks", func(t *testing.T) {
		results := []*models.SearchResult{
			{Chunk: &models.Chunk{Text: "a"}, Score: 0.1},
			{Chunk: &models.Chunk{Text: "b"}, Score: 0.2},
			{Chunk: &models.Chunk{Text: "c"}, Score: 0.3},
		}
		got := ComposeContext(results, 2)
		if strings.Contains(got, "c") {
			t.Errorf("third chunk should be cut: %q", got)
		}
	})

	t.Run("expanded context replaces chunk text", func(t *testing.T) {
		results := []*models.SearchResult{{
			Chunk: &models.Chunk{Text: "middle"},
			Score: 0.2,
			Context: []*models.Chunk{
				{Text: "before"}, {Text: "middle"}, {Text: "after"},
			},
		}}
		got := ComposeContext(results, 1)
		if !strings.Contains(got, "before middle after") {
			t.Errorf("expanded context not joined in order: %q", got)
		}
	})
}
