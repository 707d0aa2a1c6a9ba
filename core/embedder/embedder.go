package embedder

import (
	"context"
	"time"

	"github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/gogf/gf/v2/frame/g"

	"github.com/Malowking/textverse/core/config"
	"github.com/Malowking/textverse/core/errors"
)

// NewEmbedder builds the embedding provider selected by conf.Provider.
func NewEmbedder(ctx context.Context, conf *config.EmbeddingConfig, apiKey string) (embedding.Embedder, error) {
	if conf == nil {
		return nil, errors.New(errors.ErrModelConfigInvalid, "embedding config cannot be nil")
	}
	timeout := time.Duration(conf.TimeoutSec) * time.Second

	switch conf.Provider {
	case "", config.ProviderHuggingFace:
		return NewHFEmbedder(ctx, conf.BaseURL, conf.Model, apiKey, conf.Dimensions, timeout)
	case config.ProviderOpenAI:
		ecfg := &openai.EmbeddingConfig{
			APIKey:  apiKey,
			BaseURL: conf.BaseURL,
			Model:   conf.Model,
			Timeout: timeout,
		}
		if conf.Dimensions > 0 {
			dims := conf.Dimensions
			ecfg.Dimensions = &dims
		}
		emb, err := openai.NewEmbedder(ctx, ecfg)
		if err != nil {
			return nil, errors.Wrap(errors.ErrModelConfigInvalid, err, "create openai embedder")
		}
		g.Log().Debugf(ctx, "OpenAI-compatible embedder ready: model=%s baseURL=%s", conf.Model, conf.BaseURL)
		return emb, nil
	default:
		return nil, errors.Newf(errors.ErrModelConfigInvalid, "unsupported embedding provider: %s", conf.Provider)
	}
}

// EmbedQuery embeds a single text and checks the provider returned exactly one vector.
func EmbedQuery(ctx context.Context, emb embedding.Embedder, text string) ([]float64, error) {
	vectors, err := emb.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, errors.Wrap(errors.ErrEmbeddingFailed, err, "embed query")
	}
	if len(vectors) != 1 {
		return nil, errors.Newf(errors.ErrEmbeddingFailed, "invalid return length of vector, got=%d, expected=1", len(vectors))
	}
	return vectors[0], nil
}
