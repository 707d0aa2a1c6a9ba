package embedder

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/gogf/gf/v2/net/gclient"
	"github.com/gogf/gf/v2/text/gstr"

	"github.com/Malowking/textverse/core/errors"
)

// HFEmbedder calls the Hugging Face feature-extraction pipeline of a
// sentence-transformers model and returns one pooled vector per input.
type HFEmbedder struct {
	model      string
	baseURL    string
	dimensions int
	client     *gclient.Client
}

type featureExtractionRequest struct {
	Inputs []string `json:"inputs"`
}

type hfErrorResponse struct {
	Error string `json:"error"`
}

// NewHFEmbedder creates the default embedding provider.
func NewHFEmbedder(ctx context.Context, baseURL, model, apiKey string, dimensions int, timeout time.Duration) (*HFEmbedder, error) {
	if baseURL == "" {
		return nil, errors.New(errors.ErrModelConfigInvalid, "embedding baseURL is required")
	}
	if model == "" {
		return nil, errors.New(errors.ErrModelConfigInvalid, "embedding model is required")
	}

	client := g.Client()
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	if apiKey != "" {
		client.SetHeader("Authorization", "Bearer "+apiKey)
	}

	g.Log().Debugf(ctx, "Hugging Face embedder ready: model=%s", model)
	return &HFEmbedder{
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		dimensions: dimensions,
		client:     client,
	}, nil
}

func (e *HFEmbedder) endpoint(model string) string {
	return e.baseURL + "/" + model + "/pipeline/feature-extraction"
}

// EmbedStrings 实现字符串数组的向量化
func (e *HFEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}
	options := embedding.GetCommonOptions(&embedding.Options{Model: &e.model}, opts...)
	model := e.model
	if options.Model != nil && *options.Model != "" {
		model = *options.Model
	}

	body, err := sonic.Marshal(featureExtractionRequest{Inputs: texts})
	if err != nil {
		return nil, errors.Wrap(errors.ErrEmbeddingFailed, err, "marshal feature-extraction request")
	}

	resp, err := e.client.ContentJson().Post(ctx, e.endpoint(model), body)
	if err != nil {
		return nil, errors.Wrap(errors.ErrEmbeddingFailed, err, "send feature-extraction request")
	}
	defer resp.Close()

	data := resp.ReadAll()
	if resp.StatusCode != http.StatusOK {
		var errResp hfErrorResponse
		if err = sonic.Unmarshal(data, &errResp); err == nil && errResp.Error != "" {
			return nil, errors.Newf(errors.ErrEmbeddingFailed, "HTTP %d: %s", resp.StatusCode, errResp.Error)
		}
		return nil, errors.Newf(errors.ErrEmbeddingFailed, "HTTP %d: %s", resp.StatusCode, gstr.StrLimitRune(string(data), 200))
	}

	var vectors [][]float64
	if err = sonic.Unmarshal(data, &vectors); err != nil {
		return nil, errors.Wrap(errors.ErrEmbeddingFailed, err, "decode feature-extraction response, expected one vector per input")
	}
	if len(vectors) != len(texts) {
		return nil, errors.Newf(errors.ErrEmbeddingFailed, "expected %d vectors, got %d", len(texts), len(vectors))
	}
	if e.dimensions > 0 {
		for i, v := range vectors {
			if len(v) != e.dimensions {
				return nil, errors.Newf(errors.ErrEmbeddingFailed, "vector %d has dimension %d, expected %d", i, len(v), e.dimensions)
			}
		}
	}
	return vectors, nil
}

func (e *HFEmbedder) GetType() string {
	return "HuggingFace"
}
