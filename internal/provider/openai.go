package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperjump/kotae/pkg/utils"
)

const answerSystemPrompt = `You are a document analysis assistant. Answer the user's question using only the information in the provided document context. Be precise and concise. If the context does not contain enough information to answer, say so clearly.`

// OpenAIConfig configures the OpenAI-compatible client. BaseURL allows
// pointing at any compatible endpoint; empty uses the official API.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	EmbeddingModel string
	ChatModel      string
	MaxTokens      int
	Temperature    float32
}

// OpenAIClient implements Embedder and Generator against an
// OpenAI-compatible API.
type OpenAIClient struct {
	client *openai.Client
	cfg    OpenAIConfig
}

var _ Embedder = (*OpenAIClient)(nil)
var _ Generator = (*OpenAIClient)(nil)

// NewOpenAIClient creates a client. The API key is required.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("provider: API key not set")
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = string(openai.SmallEmbedding3)
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = openai.GPT4oMini
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(clientCfg), cfg: cfg}, nil
}

// Embed generates one embedding per text in a single API call.
func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, &Error{Kind: KindMalformed, Err: errors.New("no texts to embed")}
	}
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.cfg.EmbeddingModel),
		Input: texts,
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, &Error{Kind: KindMalformed, Err: fmt.Errorf("got %d embeddings for %d texts", len(resp.Data), len(texts))}
	}
	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		// Unit norm keeps squared-distance tiers comparable across models.
		utils.NormalizeL2(vec)
		vectors[i] = vec
	}
	return vectors, nil
}

// Generate answers a question from retrieved document context.
func (c *OpenAIClient) Generate(ctx context.Context, question, docContext string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.ChatModel,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: answerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("QUESTION:\n%s\n\nDOCUMENT CONTEXT:\n%s", question, docContext)},
		},
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Kind: KindMalformed, Err: errors.New("no completion choices returned")}
	}
	return resp.Choices[0].Message.Content, nil
}

// classify maps transport and API errors onto the provider error taxonomy.
// Server-side and network failures count as timeouts, which are retryable.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &Error{Kind: KindAuth, Err: err}
		case http.StatusTooManyRequests:
			return &Error{Kind: KindRateLimit, Err: err}
		case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
			return &Error{Kind: KindMalformed, Err: err}
		default:
			return &Error{Kind: KindTimeout, Err: err}
		}
	}
	return &Error{Kind: KindTimeout, Err: err}
}
