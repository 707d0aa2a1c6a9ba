package indexer

import (
	"context"
	"sort"

	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/google/uuid"

	"github.com/Malowking/textverse/core/common"
	"github.com/Malowking/textverse/core/errors"
	"github.com/Malowking/textverse/core/vector_store"
)

// Config 索引流程配置
type Config struct {
	Loader      document.Loader
	Transformer document.Transformer
	Embedder    embedding.Embedder
	VectorStore vector_store.VectorStore
	BatchSize   int
	Concurrency int
}

// Result summarizes one Index run.
type Result struct {
	Sources int
	Skipped int
	Chunks  int
}

// Indexer loads, splits, embeds and stores documents.
type Indexer struct {
	store    vector_store.VectorStore
	runnable compose.Runnable[document.Source, []string]
}

// storeIndexer is the eino indexer node: it embeds chunks and upserts them.
type storeIndexer struct {
	embedder    embedding.Embedder
	store       vector_store.VectorStore
	batchSize   int
	concurrency int
}

var _ indexer.Indexer = (*storeIndexer)(nil)

func (s *storeIndexer) Store(ctx context.Context, docs []*schema.Document, opts ...indexer.Option) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	emb := s.embedder
	if o := indexer.GetCommonOptions(&indexer.Options{}, opts...); o.Embedding != nil {
		emb = o.Embedding
	}

	vectors, err := embedChunks(ctx, emb, docs, s.batchSize, s.concurrency)
	if err != nil {
		return nil, err
	}
	// 先删除同一来源的旧分块，再写入新分块
	for _, source := range sourcesOf(docs) {
		if err := s.store.DeleteBySource(ctx, source); err != nil {
			return nil, errors.Wrapf(errors.ErrVectorInsert, err, "replace chunks of %s", source)
		}
	}
	if err := s.store.Upsert(ctx, docs, vectors); err != nil {
		return nil, errors.Wrap(errors.ErrVectorInsert, err, "upsert chunks")
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}

// sourcesOf returns the distinct _source values of docs in first-seen order.
func sourcesOf(docs []*schema.Document) []string {
	seen := make(map[string]bool)
	var sources []string
	for _, d := range docs {
		source, _ := d.MetaData[common.MetaSource].(string)
		if source == "" || seen[source] {
			continue
		}
		seen[source] = true
		sources = append(sources, source)
	}
	return sources
}

// assignIDs derives chunk ids from source and content, so indexing the same
// text again overwrites the stored chunk instead of adding a copy.
func assignIDs(ctx context.Context, chunks []*schema.Document) ([]*schema.Document, error) {
	for i, chunk := range chunks {
		if chunk.MetaData == nil {
			chunk.MetaData = make(map[string]any)
		}
		source, _ := chunk.MetaData[common.MetaSource].(string)
		chunk.MetaData[common.MetaChunkIndex] = i
		chunk.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(source+"#"+chunk.Content)).String()
	}
	return chunks, nil
}

// New 构建索引流程: Loader -> Transformer -> AssignIDs -> Indexer
func New(ctx context.Context, conf *Config) (*Indexer, error) {
	if conf == nil || conf.Loader == nil || conf.Transformer == nil || conf.Embedder == nil || conf.VectorStore == nil {
		return nil, errors.New(errors.ErrInvalidParameter, "indexer needs a loader, transformer, embedder and vector store")
	}

	const (
		nodeLoader      = "Loader"
		nodeTransformer = "DocumentTransformer"
		nodeAssignIDs   = "AssignIDs"
		nodeIndexer     = "Indexer"
	)

	gr := compose.NewGraph[document.Source, []string]()
	_ = gr.AddLoaderNode(nodeLoader, conf.Loader)
	_ = gr.AddDocumentTransformerNode(nodeTransformer, conf.Transformer)
	_ = gr.AddLambdaNode(nodeAssignIDs, compose.InvokableLambda(assignIDs))
	_ = gr.AddIndexerNode(nodeIndexer, &storeIndexer{
		embedder:    conf.Embedder,
		store:       conf.VectorStore,
		batchSize:   conf.BatchSize,
		concurrency: conf.Concurrency,
	})
	_ = gr.AddEdge(compose.START, nodeLoader)
	_ = gr.AddEdge(nodeLoader, nodeTransformer)
	_ = gr.AddEdge(nodeTransformer, nodeAssignIDs)
	_ = gr.AddEdge(nodeAssignIDs, nodeIndexer)
	_ = gr.AddEdge(nodeIndexer, compose.END)

	r, err := gr.Compile(ctx, compose.WithGraphName("indexer"))
	if err != nil {
		return nil, errors.Wrap(errors.ErrIndexingFailed, err, "compile indexer graph")
	}
	return &Indexer{store: conf.VectorStore, runnable: r}, nil
}

// Index indexes every source and flushes the store once at the end. A source
// that fails to load or parse is skipped; embedding or storage failures abort.
func (x *Indexer) Index(ctx context.Context, sources []string) (*Result, error) {
	var uris []string
	for _, src := range sources {
		expanded, err := ExpandSource(ctx, src)
		if err != nil {
			return nil, err
		}
		uris = append(uris, expanded...)
	}
	sort.Strings(uris)

	res := &Result{}
	for _, uri := range uris {
		ids, err := x.runnable.Invoke(ctx, document.Source{URI: uri})
		if err != nil {
			if errors.Is(err, errors.ErrEmbeddingFailed) || errors.Is(err, errors.ErrVectorInsert) {
				return res, err
			}
			g.Log().Warningf(ctx, "Skipping %s: %v", uri, err)
			res.Skipped++
			continue
		}
		if len(ids) == 0 {
			// 来源已无内容，清理其旧分块
			if err = x.store.DeleteBySource(ctx, uri); err != nil {
				return res, errors.Wrapf(errors.ErrVectorInsert, err, "clear chunks of %s", uri)
			}
		}
		res.Sources++
		res.Chunks += len(ids)
		g.Log().Infof(ctx, "Indexed %s: %d chunks", uri, len(ids))
	}

	if res.Sources == 0 {
		return res, errors.Newf(errors.ErrIndexingFailed, "no source could be indexed (%d skipped)", res.Skipped)
	}
	if err := x.store.Flush(ctx); err != nil {
		return res, err
	}
	return res, nil
}
