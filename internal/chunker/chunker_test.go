package chunker

import (
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/token"
)

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func TestSplit_Empty(t *testing.T) {
	c := New(DefaultConfig, nil)
	for _, in := range []string{"", "   ", "\n\n\t  \n"} {
		passages, err := c.Split(in)
		if err != nil {
			t.Fatalf("Split(%q) error = %v", in, err)
		}
		if len(passages) != 0 {
			t.Errorf("Split(%q) = %d passages, want 0", in, len(passages))
		}
	}
}

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	c := New(Config{MinTokens: 10, TargetTokens: 30, MaxTokens: 50}, nil)
	passages, err := c.Split("The sky is blue. Grass is green.")
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(passages) != 1 {
		t.Fatalf("got %d passages, want 1", len(passages))
	}
	p := passages[0]
	if p.Truncated {
		t.Error("short text should not be truncated")
	}
	if p.WordCount != 7 {
		t.Errorf("WordCount = %d, want 7", p.WordCount)
	}
	if p.TokenCount > 50 {
		t.Errorf("TokenCount = %d exceeds ceiling", p.TokenCount)
	}
}

func TestSplit_CoverageAndCeiling(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("Alpha beta gamma delta epsilon zeta eta theta. ")
		if i%5 == 4 {
			b.WriteString("\n\n")
		}
	}
	text := b.String()
	cfg := Config{MinTokens: 8, TargetTokens: 24, MaxTokens: 32}
	c := New(cfg, nil)
	passages, err := c.Split(text)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(passages) < 2 {
		t.Fatalf("expected multiple passages, got %d", len(passages))
	}
	var joined []string
	for i, p := range passages {
		if p.TokenCount > cfg.MaxTokens {
			t.Errorf("passage %d TokenCount = %d exceeds MaxTokens %d", i, p.TokenCount, cfg.MaxTokens)
		}
		joined = append(joined, p.Text)
	}
	if normalize(strings.Join(joined, " ")) != normalize(text) {
		t.Error("concatenated passages do not recover the input text")
	}
}

func TestSplit_MergesSmallSentences(t *testing.T) {
	// Ten 4-token sentences with a 20-token target should not become ten chunks.
	text := strings.TrimSpace(strings.Repeat("One two three four. ", 10))
	c := New(Config{MinTokens: 5, TargetTokens: 20, MaxTokens: 25}, nil)
	passages, err := c.Split(text)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(passages) >= 10 {
		t.Errorf("got %d passages, expected merging below 10", len(passages))
	}
	for i, p := range passages {
		if p.TokenCount > 25 {
			t.Errorf("passage %d TokenCount = %d exceeds ceiling", i, p.TokenCount)
		}
	}
}

func TestSplit_HardTruncation(t *testing.T) {
	// One unbroken CJK run: the estimator counts one token per rune, so a
	// 100-rune run cannot fit a 20-token ceiling without a character cut.
	text := strings.Repeat("語", 100)
	c := New(Config{MinTokens: 2, TargetTokens: 10, MaxTokens: 20}, nil)
	passages, err := c.Split(text)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(passages) == 0 {
		t.Fatal("expected passages")
	}
	sawTruncated := false
	total := 0
	for i, p := range passages {
		if p.TokenCount > 20 {
			t.Errorf("passage %d TokenCount = %d exceeds ceiling", i, p.TokenCount)
		}
		if p.Truncated {
			sawTruncated = true
		}
		total += len([]rune(strings.ReplaceAll(p.Text, " ", "")))
	}
	if !sawTruncated {
		t.Error("expected at least one truncated passage")
	}
	if total != 100 {
		t.Errorf("recovered %d runes, want 100", total)
	}
}

func TestSplit_CounterUnavailable(t *testing.T) {
	c := New(DefaultConfig, token.CounterFunc(func(string) (int, error) {
		return 0, token.ErrUnavailable
	}))
	_, err := c.Split("some text")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "chunking") {
		t.Errorf("error = %v, want chunking wrap", err)
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("First one. Second one! Third? Last without end")
	if len(got) != 4 {
		t.Fatalf("got %d sentences: %v", len(got), got)
	}
	if got[0] != "First one." || got[3] != "Last without end" {
		t.Errorf("unexpected sentences: %v", got)
	}
}
