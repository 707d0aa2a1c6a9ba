package vector_store

import (
	"context"
	"fmt"

	"github.com/Malowking/textverse/core/errors"
)

// NewVectorStore 根据配置创建向量存储实例
func NewVectorStore(ctx context.Context, config *VectorStoreConfig) (VectorStore, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	switch config.Type {
	case VectorStoreTypeLocal, "":
		if config.Create {
			return CreateLocalIndex(config.Path, config.EmbeddingModel, config.Dimension, config.Metric)
		}
		idx, err := OpenLocalIndex(config.Path)
		if err != nil {
			return nil, err
		}
		if err = idx.CheckBinding(config.EmbeddingModel, config.Dimension); err != nil {
			return nil, err
		}
		return idx, nil
	case VectorStoreTypeMilvus:
		return InitializeMilvusStore(ctx, config)
	case VectorStoreTypePostgreSQL:
		return InitializePostgresStore(ctx, config)
	default:
		return nil, errors.Newf(errors.ErrVectorStoreInit, "unsupported vector store type: %s", config.Type)
	}
}
