// Package chunker splits raw text into token-bounded passages for embedding.
package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hyperjump/kotae/internal/token"
)

// Config bounds passage sizes in tokens. MaxTokens is a hard ceiling (it
// bounds what the embedding provider accepts); TargetTokens is the greedy
// merge preference; MinTokens is a best-effort lower bound for long inputs.
type Config struct {
	MinTokens    int
	TargetTokens int
	MaxTokens    int
}

// DefaultConfig is tuned for typical embedding providers.
var DefaultConfig = Config{
	MinTokens:    64,
	TargetTokens: 256,
	MaxTokens:    512,
}

// Passage is one chunk of the input text with its size metadata.
type Passage struct {
	Text       string
	TokenCount int
	WordCount  int
	// Truncated marks passages produced by a hard character-level cut of an
	// unbroken run that exceeded MaxTokens on its own.
	Truncated bool
}

// Chunker splits text on decreasing granularity: paragraphs, then sentences,
// then words, then a character-level cut as a last resort. Splitting only
// descends to a finer granularity when a segment still exceeds MaxTokens.
type Chunker struct {
	cfg     Config
	counter token.Counter
}

// New creates a chunker. A nil counter falls back to the heuristic estimator.
func New(cfg Config, counter token.Counter) *Chunker {
	if counter == nil {
		counter = token.Estimator{}
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig.MaxTokens
	}
	if cfg.TargetTokens <= 0 || cfg.TargetTokens > cfg.MaxTokens {
		cfg.TargetTokens = cfg.MaxTokens
	}
	if cfg.MinTokens < 0 {
		cfg.MinTokens = 0
	}
	return &Chunker{cfg: cfg, counter: counter}
}

var paragraphRe = regexp.MustCompile(`\n\s*\n`)

// Split produces ordered passages covering the whole input. Empty or
// whitespace-only input yields zero passages and no error. It fails only
// when the token counter itself is unavailable.
func (c *Chunker) Split(text string) ([]Passage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	segments, err := c.segment(text)
	if err != nil {
		return nil, fmt.Errorf("chunking: %w", err)
	}
	passages := c.merge(segments)
	return passages, nil
}

// segment holds an atomic unit after recursive splitting, already within MaxTokens.
type segment struct {
	text      string
	tokens    int
	truncated bool
}

func (c *Chunker) segment(text string) ([]segment, error) {
	var out []segment
	for _, para := range splitParagraphs(text) {
		n, err := c.counter.Count(para)
		if err != nil {
			return nil, err
		}
		if n <= c.cfg.MaxTokens {
			out = append(out, segment{text: para, tokens: n})
			continue
		}
		segs, err := c.segmentSentences(para)
		if err != nil {
			return nil, err
		}
		out = append(out, segs...)
	}
	return out, nil
}

func (c *Chunker) segmentSentences(text string) ([]segment, error) {
	var out []segment
	for _, sent := range splitSentences(text) {
		n, err := c.counter.Count(sent)
		if err != nil {
			return nil, err
		}
		if n <= c.cfg.MaxTokens {
			out = append(out, segment{text: sent, tokens: n})
			continue
		}
		segs, err := c.segmentWords(sent)
		if err != nil {
			return nil, err
		}
		out = append(out, segs...)
	}
	return out, nil
}

func (c *Chunker) segmentWords(text string) ([]segment, error) {
	var out []segment
	for _, word := range strings.Fields(text) {
		n, err := c.counter.Count(word)
		if err != nil {
			return nil, err
		}
		if n <= c.cfg.MaxTokens {
			out = append(out, segment{text: word, tokens: n})
			continue
		}
		segs, err := c.hardCut(word)
		if err != nil {
			return nil, err
		}
		out = append(out, segs...)
	}
	return out, nil
}

// hardCut splits a single over-budget run at the character level into rune
// prefixes within MaxTokens, each flagged Truncated.
func (c *Chunker) hardCut(text string) ([]segment, error) {
	var out []segment
	runes := []rune(text)
	for len(runes) > 0 {
		cut := len(runes)
		n, err := c.counter.Count(string(runes[:cut]))
		if err != nil {
			return nil, err
		}
		for n > c.cfg.MaxTokens && cut > 1 {
			// Halve until within budget; token counts grow monotonically
			// with prefix length for any reasonable tokenizer.
			cut /= 2
			n, err = c.counter.Count(string(runes[:cut]))
			if err != nil {
				return nil, err
			}
		}
		out = append(out, segment{text: string(runes[:cut]), tokens: n, truncated: true})
		runes = runes[cut:]
	}
	return out, nil
}

// merge greedily joins consecutive small segments up to TargetTokens so that
// short sentences do not each become a tiny chunk.
func (c *Chunker) merge(segments []segment) []Passage {
	var passages []Passage
	var cur segment
	flush := func() {
		if cur.text == "" {
			return
		}
		passages = append(passages, Passage{
			Text:       cur.text,
			TokenCount: cur.tokens,
			WordCount:  len(strings.Fields(cur.text)),
			Truncated:  cur.truncated,
		})
		cur = segment{}
	}
	for _, seg := range segments {
		if cur.text == "" {
			cur = seg
			continue
		}
		combined := cur.tokens + seg.tokens
		// Merge while under target, or while the current chunk is still
		// below the minimum and the ceiling allows it.
		if combined <= c.cfg.TargetTokens || (cur.tokens < c.cfg.MinTokens && combined <= c.cfg.MaxTokens) {
			cur.text = cur.text + " " + seg.text
			cur.tokens = combined
			cur.truncated = cur.truncated || seg.truncated
			continue
		}
		flush()
		cur = seg
	}
	flush()
	// Fold an undersized tail into its predecessor when the ceiling allows.
	if n := len(passages); n >= 2 && passages[n-1].TokenCount < c.cfg.MinTokens {
		prev, last := passages[n-2], passages[n-1]
		if prev.TokenCount+last.TokenCount <= c.cfg.MaxTokens {
			merged := Passage{
				Text:       prev.Text + " " + last.Text,
				TokenCount: prev.TokenCount + last.TokenCount,
				WordCount:  prev.WordCount + last.WordCount,
				Truncated:  prev.Truncated || last.Truncated,
			}
			passages = append(passages[:n-2], merged)
		}
	}
	return passages
}

func splitParagraphs(text string) []string {
	var out []string
	for _, p := range paragraphRe.Split(text, -1) {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences splits on sentence-ending punctuation followed by whitespace.
func splitSentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		// Consume a run of closing punctuation (e.g. "...", '?!', quotes).
		j := i + 1
		for j < len(runes) && (runes[j] == '.' || runes[j] == '!' || runes[j] == '?' || runes[j] == '"' || runes[j] == '\'' || runes[j] == ')') {
			j++
		}
		if j < len(runes) && isSpace(runes[j]) {
			s := strings.TrimSpace(string(runes[start:j]))
			if s != "" {
				out = append(out, s)
			}
			start = j
			i = j
		}
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		out = append(out, tail)
	}
	return out
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}
