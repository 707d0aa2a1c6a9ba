package retriever

import (
	"context"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/gogf/gf/v2/frame/g"

	"github.com/Malowking/textverse/core/embedder"
	"github.com/Malowking/textverse/core/errors"
	"github.com/Malowking/textverse/core/vector_store"
)

// Config 检索器配置
type Config struct {
	Embedder       embedding.Embedder
	VectorStore    vector_store.VectorStore
	TopK           int     // 默认返回结果数量
	ScoreThreshold float64 // 0 disables filtering
}

// Retriever embeds the query with the embedder the index was built with and
// returns the nearest chunks, most relevant first.
type Retriever struct {
	embedder       embedding.Embedder
	store          vector_store.VectorStore
	topK           int
	scoreThreshold float64
}

var _ retriever.Retriever = (*Retriever)(nil)

// NewRetriever 创建检索器
func NewRetriever(conf *Config) (*Retriever, error) {
	if conf == nil {
		return nil, errors.New(errors.ErrInvalidParameter, "retriever config cannot be nil")
	}
	if conf.Embedder == nil {
		return nil, errors.New(errors.ErrInvalidParameter, "retriever needs an embedder")
	}
	if conf.VectorStore == nil {
		return nil, errors.New(errors.ErrInvalidParameter, "retriever needs a vector store")
	}
	topK := conf.TopK
	if topK <= 0 {
		topK = 4
	}
	return &Retriever{
		embedder:       conf.Embedder,
		store:          conf.VectorStore,
		topK:           topK,
		scoreThreshold: conf.ScoreThreshold,
	}, nil
}

// Retrieve 执行检索
func (r *Retriever) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	topK := r.topK
	threshold := r.scoreThreshold
	options := retriever.GetCommonOptions(&retriever.Options{
		TopK:           &topK,
		ScoreThreshold: &threshold,
		Embedding:      r.embedder,
	}, opts...)

	emb := r.embedder
	if options.Embedding != nil {
		emb = options.Embedding
	}
	if options.TopK != nil && *options.TopK > 0 {
		topK = *options.TopK
	}
	if options.ScoreThreshold != nil {
		threshold = *options.ScoreThreshold
	}

	vector, err := embedder.EmbedQuery(ctx, emb, query)
	if err != nil {
		return nil, err
	}

	docs, err := r.store.Search(ctx, vector, topK)
	if err != nil {
		return nil, errors.Wrap(errors.ErrRetrievalFailed, err, "vector search")
	}

	if threshold > 0 {
		kept := docs[:0]
		for _, doc := range docs {
			if doc.Score() >= threshold {
				kept = append(kept, doc)
			}
		}
		docs = kept
	}

	g.Log().Debugf(ctx, "Retrieved %d chunks (topK=%d, threshold=%.3f)", len(docs), topK, threshold)
	return docs, nil
}

func (r *Retriever) GetType() string {
	return "VectorIndex"
}
