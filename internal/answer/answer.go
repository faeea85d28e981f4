// Package answer drives embed → retrieve → generate for incoming questions.
package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/provider"
	"github.com/hyperjump/kotae/internal/retrieval"
)

// Config bounds the answer pipeline.
type Config struct {
	// Retry is the per-call retry policy for the embedding and generation providers.
	Retry provider.RetryPolicy
	// ContextChunks caps how many retrieved chunks feed the generator.
	ContextChunks int
}

// DefaultConfig matches the upstream behavior of feeding the top matches only.
var DefaultConfig = Config{
	Retry:         provider.DefaultRetryPolicy,
	ContextChunks: 3,
}

// Orchestrator answers questions against the indexed corpus. Questions in one
// request are answered in input order, one slot each; a failing question
// yields an error slot without blocking the others.
type Orchestrator struct {
	embedder  provider.Embedder
	generator provider.Generator
	retriever *retrieval.Retriever
	cfg       Config
	logger    *zap.Logger // optional; when set, logs debug events
}

// New creates an orchestrator. The logger may be nil.
func New(embedder provider.Embedder, generator provider.Generator, retriever *retrieval.Retriever, cfg Config, logger *zap.Logger) *Orchestrator {
	if cfg.ContextChunks <= 0 {
		cfg.ContextChunks = DefaultConfig.ContextChunks
	}
	return &Orchestrator{embedder: embedder, generator: generator, retriever: retriever, cfg: cfg, logger: logger}
}

// Ask answers every question in the request. The returned slice always has
// one slot per question, in input order. Retrieval is read-only, so
// cancellation mid-request cannot corrupt the index; remaining questions get
// error slots.
func (o *Orchestrator) Ask(ctx context.Context, req *models.QueryRequest) (*models.QueryResponse, error) {
	startTime := time.Now()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	opts := retrievalOptions(req)
	answers := make([]*models.Answer, len(req.Questions))
	for i, question := range req.Questions {
		if ctx.Err() != nil {
			answers[i] = &models.Answer{Question: question, Error: ctx.Err().Error()}
			continue
		}
		answers[i] = o.answerOne(ctx, question, opts)
	}
	return &models.QueryResponse{
		Answers:   answers,
		QueryTime: time.Since(startTime).Milliseconds(),
	}, nil
}

func (o *Orchestrator) answerOne(ctx context.Context, question string, opts retrieval.Options) *models.Answer {
	ans := &models.Answer{Question: question}
	results, err := o.retrieve(ctx, question, opts)
	if err != nil {
		ans.Error = err.Error()
		return ans
	}
	ans.Results = results

	docContext := ComposeContext(results, o.cfg.ContextChunks)
	var generated string
	err = provider.WithRetry(ctx, o.cfg.Retry, o.logger, func(callCtx context.Context) error {
		var genErr error
		generated, genErr = o.generator.Generate(callCtx, question, docContext)
		return genErr
	})
	if err != nil {
		ans.Error = err.Error()
		return ans
	}
	ans.Answer = generated
	if o.logger != nil {
		o.logger.Debug("question answered",
			zap.String("question", question),
			zap.Int("results", len(results)))
	}
	return ans
}

func (o *Orchestrator) retrieve(ctx context.Context, question string, opts retrieval.Options) ([]*models.SearchResult, error) {
	var vectors [][]float32
	err := provider.WithRetry(ctx, o.cfg.Retry, o.logger, func(callCtx context.Context) error {
		var embedErr error
		vectors, embedErr = o.embedder.Embed(callCtx, []string{question})
		return embedErr
	})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed question: got %d vectors for one text", len(vectors))
	}
	return o.retriever.Retrieve(vectors[0], opts)
}

// Search embeds one or more question paraphrases and retrieves without
// generation. Multiple paraphrases are combined per the request's method.
func (o *Orchestrator) Search(ctx context.Context, req *models.QueryRequest) ([]*models.SearchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var vectors [][]float32
	err := provider.WithRetry(ctx, o.cfg.Retry, o.logger, func(callCtx context.Context) error {
		var embedErr error
		vectors, embedErr = o.embedder.Embed(callCtx, req.Questions)
		return embedErr
	})
	if err != nil {
		return nil, fmt.Errorf("embed queries: %w", err)
	}
	return o.retriever.MultiRetrieve(vectors, retrievalOptions(req))
}

// ComposeContext joins the top retrieved chunks highest relevance first, each
// tagged with its score. Expanded context replaces the bare chunk text when
// present.
func ComposeContext(results []*models.SearchResult, limit int) string {
	if len(results) == 0 {
		return "No relevant context found in the indexed documents."
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	parts := make([]string, 0, len(results))
	for _, res := range results {
		text := res.Chunk.Text
		if len(res.Context) > 0 {
			joined := make([]string, 0, len(res.Context))
			for _, ch := range res.Context {
				joined = append(joined, ch.Text)
			}
			text = strings.Join(joined, " ")
		}
		parts = append(parts, fmt.Sprintf("[Relevance: %.3f] %s", res.Score, text))
	}
	return strings.Join(parts, "\n\n")
}

func retrievalOptions(req *models.QueryRequest) retrieval.Options {
	return retrieval.Options{
		TopK:             req.TopK,
		ScoreCeiling:     req.ScoreCeiling,
		ScoreFloor:       req.ScoreFloor,
		AllowedDocuments: req.AllowedDocuments,
		AllowedSources:   req.AllowedSources,
		Deduplicate:      req.Deduplicate,
		BoostRecent:      req.BoostRecent,
		ContextWindow:    req.ContextWindow,
		CombineMethod:    req.CombineMethod,
		Weights:          req.Weights,
	}
}
