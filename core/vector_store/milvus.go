package vector_store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/schema"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/Malowking/textverse/core/common"
	"github.com/Malowking/textverse/core/errors"
)

const (
	milvusFieldID       = "id"
	milvusFieldText     = "text"
	milvusFieldVector   = "vector"
	milvusFieldMetadata = "metadata"
)

// MilvusStore Milvus向量数据库实现
type MilvusStore struct {
	client     *milvusclient.Client
	collection string
	dimension  int
	metric     entity.MetricType
}

// InitializeMilvusStore connects to Milvus and makes sure the collection is
// present and loaded. The collection is created only when config.Create is set.
func InitializeMilvusStore(ctx context.Context, config *VectorStoreConfig) (VectorStore, error) {
	address := config.Milvus.Address
	database := config.Milvus.Database
	if address == "" {
		return nil, errors.New(errors.ErrVectorStoreInit, "milvus.address is required")
	}

	g.Log().Infof(ctx, "Connecting to Milvus at: %s, database: %s", address, database)

	client, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address: address,
		DBName:  database,
	})
	if err != nil {
		return nil, errors.Wrapf(errors.ErrVectorStoreInit, err, "create milvus client (address: %s, database: %s)", address, database)
	}

	store, err := NewMilvusStore(client, config)
	if err != nil {
		_ = client.Close(ctx)
		return nil, err
	}
	if err = store.ensureCollection(ctx, config.Create); err != nil {
		_ = client.Close(ctx)
		return nil, err
	}
	return store, nil
}

// NewMilvusStore 创建Milvus向量存储实例
func NewMilvusStore(client *milvusclient.Client, config *VectorStoreConfig) (*MilvusStore, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if client == nil {
		return nil, fmt.Errorf("milvus client cannot be nil")
	}
	if config.Milvus.Collection == "" {
		return nil, fmt.Errorf("milvus collection name cannot be empty")
	}
	return &MilvusStore{
		client:     client,
		collection: config.Milvus.Collection,
		dimension:  config.Dimension,
		metric:     milvusMetric(config.Metric),
	}, nil
}

func milvusMetric(metric string) entity.MetricType {
	switch metric {
	case MetricCosine:
		return entity.COSINE
	case MetricIP:
		return entity.IP
	default:
		return entity.L2
	}
}

func (m *MilvusStore) ensureCollection(ctx context.Context, create bool) error {
	has, err := m.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(m.collection))
	if err != nil {
		return errors.Wrapf(errors.ErrVectorStoreInit, err, "check collection %s", m.collection)
	}
	if !has {
		if !create {
			return errors.Newf(errors.ErrIndexLoadFailed, "milvus collection %s does not exist", m.collection)
		}
		if err = m.createCollection(ctx); err != nil {
			return err
		}
	}

	_, err = m.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(m.collection))
	if err != nil {
		return errors.Wrapf(errors.ErrIndexLoadFailed, err, "load collection %s", m.collection)
	}
	return nil
}

func (m *MilvusStore) createCollection(ctx context.Context) error {
	if m.dimension <= 0 {
		return errors.New(errors.ErrVectorStoreInit, "embedding.dimensions is required to create a milvus collection")
	}
	collSchema := &entity.Schema{
		CollectionName: m.collection,
		Description:    "document chunks and their embeddings",
		AutoID:         false,
		Fields: []*entity.Field{
			{
				Name:       milvusFieldID,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
				PrimaryKey: true,
			},
			{
				Name:       milvusFieldText,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "65535"},
			},
			{
				Name:       milvusFieldVector,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(m.dimension)},
			},
			{
				Name:     milvusFieldMetadata,
				DataType: entity.FieldTypeJSON,
			},
		},
	}

	err := m.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(m.collection, collSchema).WithIndexOptions(
		milvusclient.NewCreateIndexOption(m.collection, milvusFieldVector, index.NewHNSWIndex(m.metric, 64, 128))))
	if err != nil {
		return errors.Wrapf(errors.ErrVectorStoreInit, err, "create collection %s", m.collection)
	}
	g.Log().Infof(context.Background(), "Created Milvus collection %s (dim=%d)", m.collection, m.dimension)
	return nil
}

func (m *MilvusStore) Search(ctx context.Context, vector []float64, topK int) ([]*schema.Document, error) {
	if topK <= 0 {
		return nil, errors.Newf(errors.ErrVectorSearch, "topK must be positive, got %d", topK)
	}
	searchOpt := milvusclient.NewSearchOption(m.collection, topK, []entity.Vector{entity.FloatVector(toFloat32(vector))}).
		WithANNSField(milvusFieldVector).
		WithOutputFields(milvusFieldID, milvusFieldText, milvusFieldMetadata).
		WithConsistencyLevel(entity.ClBounded)

	results, err := m.client.Search(ctx, searchOpt)
	if err != nil {
		return nil, errors.Wrap(errors.ErrVectorSearch, err, "milvus search")
	}
	if len(results) == 0 {
		return []*schema.Document{}, nil
	}
	return m.convertResultsToDocuments(ctx, results[0].Fields, results[0].Scores)
}

// convertResultsToDocuments 转换搜索结果为文档
func (m *MilvusStore) convertResultsToDocuments(ctx context.Context, columns []column.Column, scores []float32) ([]*schema.Document, error) {
	if len(columns) == 0 {
		return []*schema.Document{}, nil
	}

	numDocs := columns[0].Len()
	result := make([]*schema.Document, numDocs)
	for i := range result {
		result[i] = &schema.Document{MetaData: make(map[string]any)}
		if i < len(scores) {
			s := float64(scores[i])
			if m.metric == entity.L2 {
				s = distanceToScore(s)
			}
			result[i].WithScore(s)
		}
	}

	for _, col := range columns {
		for i := 0; i < col.Len() && i < numDocs; i++ {
			val, err := col.Get(i)
			if err != nil {
				return nil, errors.Wrapf(errors.ErrVectorSearch, err, "read column %s", col.Name())
			}
			switch col.Name() {
			case milvusFieldID:
				if s, ok := val.(string); ok {
					result[i].ID = s
				}
			case milvusFieldText:
				if s, ok := val.(string); ok {
					result[i].Content = s
				}
			case milvusFieldMetadata:
				var raw []byte
				switch v := val.(type) {
				case []byte:
					raw = v
				case string:
					raw = []byte(v)
				}
				if len(raw) == 0 {
					continue
				}
				for k, v := range decodeMetadata(ctx, result[i].ID, raw) {
					result[i].MetaData[k] = v
				}
			}
		}
	}
	return result, nil
}

func (m *MilvusStore) Upsert(ctx context.Context, docs []*schema.Document, vectors [][]float64) error {
	if len(docs) != len(vectors) {
		return errors.Newf(errors.ErrVectorInsert, "got %d documents and %d vectors", len(docs), len(vectors))
	}
	if len(docs) == 0 {
		return nil
	}

	ids := make([]string, len(docs))
	texts := make([]string, len(docs))
	vecs := make([][]float32, len(docs))
	metas := make([][]byte, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
		texts[i] = doc.Content
		vecs[i] = toFloat32(vectors[i])
		b, err := sonic.Marshal(doc.MetaData)
		if err != nil {
			return errors.Wrapf(errors.ErrVectorInsert, err, "encode metadata of %s", doc.ID)
		}
		metas[i] = b
	}

	dim := len(vecs[0])
	columns := []column.Column{
		column.NewColumnVarChar(milvusFieldID, ids),
		column.NewColumnVarChar(milvusFieldText, texts),
		column.NewColumnFloatVector(milvusFieldVector, dim, vecs),
		column.NewColumnJSONBytes(milvusFieldMetadata, metas),
	}
	if _, err := m.client.Upsert(ctx, milvusclient.NewColumnBasedInsertOption(m.collection, columns...)); err != nil {
		return errors.Wrapf(errors.ErrVectorInsert, err, "upsert %d chunks into %s", len(docs), m.collection)
	}
	return nil
}

func (m *MilvusStore) DeleteBySource(ctx context.Context, source string) error {
	expr := fmt.Sprintf(`%s["%s"] == %s`, milvusFieldMetadata, common.MetaSource, strconv.Quote(source))
	if _, err := m.client.Delete(ctx, milvusclient.NewDeleteOption(m.collection).WithExpr(expr)); err != nil {
		return errors.Wrapf(errors.ErrVectorInsert, err, "delete chunks of %s from %s", source, m.collection)
	}
	return nil
}

// Flush is a no-op: Milvus seals inserted segments on its own schedule.
func (m *MilvusStore) Flush(ctx context.Context) error {
	return nil
}

func (m *MilvusStore) Close(ctx context.Context) error {
	return m.client.Close(ctx)
}
