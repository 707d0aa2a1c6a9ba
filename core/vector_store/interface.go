package vector_store

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/schema"
	"github.com/gogf/gf/v2/frame/g"

	"github.com/Malowking/textverse/core/config"
)

// VectorStoreType 向量数据库类型
type VectorStoreType string

const (
	VectorStoreTypeLocal      VectorStoreType = "local"
	VectorStoreTypeMilvus     VectorStoreType = "milvus"
	VectorStoreTypePostgreSQL VectorStoreType = "pgvector"
)

// Distance metrics understood by every backend.
const (
	MetricL2     = "L2"
	MetricCosine = "COSINE"
	MetricIP     = "IP"
)

// VectorStoreConfig 向量数据库配置
type VectorStoreConfig struct {
	Type VectorStoreType

	// Path is the index directory of the local store.
	Path string
	// EmbeddingModel is stamped into new indexes and checked when opening a local one.
	EmbeddingModel string
	Dimension      int
	Metric         string

	// Create makes the store writable and creates it when absent. Serving never sets it.
	Create bool

	Milvus   config.MilvusConfig
	Postgres config.PostgresConfig
}

// VectorStore 向量数据库接口
type VectorStore interface {
	// Search returns up to topK chunks nearest to vector, most relevant first.
	// Each document carries its relevance in Score().
	Search(ctx context.Context, vector []float64, topK int) ([]*schema.Document, error)

	// Upsert stores chunks with their vectors; used by the offline indexer only.
	Upsert(ctx context.Context, docs []*schema.Document, vectors [][]float64) error

	// DeleteBySource removes every chunk whose _source metadata equals source.
	// The indexer calls it before storing a source again.
	DeleteBySource(ctx context.Context, source string) error

	// Flush persists pending writes.
	Flush(ctx context.Context) error

	Close(ctx context.Context) error
}

// FromConfig maps the index section of the application config onto a store config.
func FromConfig(c *config.Config) *VectorStoreConfig {
	return &VectorStoreConfig{
		Type:           VectorStoreType(c.Index.Type),
		Path:           c.Index.Path,
		EmbeddingModel: c.Embedding.Model,
		Dimension:      c.Embedding.Dimensions,
		Metric:         c.Index.Metric,
		Milvus:         c.Milvus,
		Postgres:       c.Postgres,
	}
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

// distanceToScore turns an L2 distance into a similarity in (0, 1].
func distanceToScore(d float64) float64 {
	return 1 / (1 + d)
}

// decodeMetadata decodes a stored metadata column. Unreadable metadata is
// logged and dropped; the chunk itself is still returned.
func decodeMetadata(ctx context.Context, id string, raw []byte) map[string]any {
	meta := map[string]any{}
	if len(raw) == 0 {
		return meta
	}
	if err := sonic.Unmarshal(raw, &meta); err != nil {
		g.Log().Warningf(ctx, "Ignoring unreadable metadata of chunk %s: %v", id, err)
		return map[string]any{}
	}
	if meta == nil {
		meta = map[string]any{}
	}
	return meta
}
