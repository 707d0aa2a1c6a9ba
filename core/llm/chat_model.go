package llm

import (
	"context"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino-ext/components/model/qwen"
	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/gogf/gf/v2/frame/g"

	"github.com/Malowking/textverse/core/common"
	"github.com/Malowking/textverse/core/config"
	"github.com/Malowking/textverse/core/errors"
)

// GenerationParams returns the request fields the OpenAI schema has no slot for.
// Text-generation-inference backends read them from the request body.
func GenerationParams(conf *config.ChatConfig) map[string]any {
	extra := map[string]any{}
	if conf.TopK > 0 {
		extra["top_k"] = conf.TopK
	}
	if conf.RepetitionPenalty > 0 {
		extra["repetition_penalty"] = conf.RepetitionPenalty
	}
	return extra
}

// OpenAIConfig maps the chat section onto the eino-ext OpenAI client config.
func OpenAIConfig(conf *config.ChatConfig, apiKey string) *openai.ChatModelConfig {
	return &openai.ChatModelConfig{
		APIKey:      apiKey,
		BaseURL:     conf.BaseURL,
		Model:       conf.Model,
		Timeout:     time.Duration(conf.TimeoutSec) * time.Second,
		MaxTokens:   common.Of(conf.MaxTokens),
		Temperature: common.Of(conf.Temperature),
		ExtraFields: GenerationParams(conf),
	}
}

// NewChatModel builds the LLM client selected by conf.Provider. The client is
// created once at startup and shared by all requests.
func NewChatModel(ctx context.Context, conf *config.ChatConfig, apiKey string) (einoModel.BaseChatModel, error) {
	if conf == nil {
		return nil, errors.New(errors.ErrModelConfigInvalid, "chat config cannot be nil")
	}
	if conf.Model == "" {
		return nil, errors.New(errors.ErrModelNotConfigured, "chat.model is not set")
	}

	switch conf.Provider {
	case "", config.ProviderOpenAI:
		cm, err := openai.NewChatModel(ctx, OpenAIConfig(conf, apiKey))
		if err != nil {
			return nil, errors.Wrap(errors.ErrModelConfigInvalid, err, "create openai chat model")
		}
		g.Log().Infof(ctx, "Chat model ready: %s via %s (maxTokens=%d, temperature=%.2f, top_k=%d, repetition_penalty=%.2f)",
			conf.Model, conf.BaseURL, conf.MaxTokens, conf.Temperature, conf.TopK, conf.RepetitionPenalty)
		return cm, nil
	case config.ProviderQwen:
		cm, err := qwen.NewChatModel(ctx, &qwen.ChatModelConfig{
			APIKey:      apiKey,
			BaseURL:     conf.BaseURL,
			Model:       conf.Model,
			Timeout:     time.Duration(conf.TimeoutSec) * time.Second,
			MaxTokens:   common.Of(conf.MaxTokens),
			Temperature: common.Of(conf.Temperature),
		})
		if err != nil {
			return nil, errors.Wrap(errors.ErrModelConfigInvalid, err, "create qwen chat model")
		}
		g.Log().Infof(ctx, "Chat model ready: %s via DashScope (maxTokens=%d, temperature=%.2f)", conf.Model, conf.MaxTokens, conf.Temperature)
		return cm, nil
	default:
		return nil, errors.Newf(errors.ErrModelConfigInvalid, "unsupported chat provider: %s", conf.Provider)
	}
}
