package cmd

import (
	"context"
	"time"

	"github.com/gogf/gf/v2/frame/g"
	"github.com/gogf/gf/v2/os/gfile"
	"github.com/minio/minio-go/v7"

	"github.com/Malowking/textverse/core/common"
	"github.com/Malowking/textverse/core/config"
	"github.com/Malowking/textverse/core/embedder"
	"github.com/Malowking/textverse/core/errors"
	"github.com/Malowking/textverse/core/indexer"
	"github.com/Malowking/textverse/core/llm"
	"github.com/Malowking/textverse/core/retriever"
	"github.com/Malowking/textverse/core/vector_store"
	"github.com/Malowking/textverse/internal/logic/rag"
)

// app holds everything built at startup. None of it changes afterwards.
type app struct {
	pipeline *rag.Pipeline
	store    vector_store.VectorStore
}

func (a *app) Close(ctx context.Context) {
	defer common.RecoverPanic(ctx, "close vector store")
	if err := a.store.Close(ctx); err != nil {
		g.Log().Warningf(ctx, "Closing vector store: %v", err)
	}
}

// loadConfig reads and validates the configuration.
func loadConfig(ctx context.Context) (*config.Config, error) {
	g.Log().Info(ctx, "Validating application configuration...")
	conf, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err = config.ValidateConfiguration(ctx, conf); err != nil {
		return nil, err
	}
	return conf, nil
}

// bootstrap builds the answering pipeline: embedder, vector index, retriever,
// chat model, prompt and the compiled graph. Any failure here is fatal to the
// caller.
func bootstrap(ctx context.Context, conf *config.Config) (*app, error) {
	start := time.Now()

	emb, err := embedder.NewEmbedder(ctx, &conf.Embedding, conf.APIKey)
	if err != nil {
		return nil, err
	}

	store, err := vector_store.NewVectorStore(ctx, vector_store.FromConfig(conf))
	if err != nil {
		return nil, errors.Wrap(errors.ErrIndexLoadFailed, err, "load vector index")
	}
	if idx, ok := store.(*vector_store.LocalIndex); ok {
		if idx.Len() == 0 {
			g.Log().Warningf(ctx, "Vector index %s is empty, answers will have no context", conf.Index.Path)
		} else {
			g.Log().Infof(ctx, "Vector index %s loaded: %d chunks, dimension %d, metric %s",
				conf.Index.Path, idx.Len(), idx.Meta().Dimension, idx.Meta().Metric)
		}
	}

	r, err := retriever.NewRetriever(&retriever.Config{
		Embedder:       emb,
		VectorStore:    store,
		TopK:           conf.Index.TopK,
		ScoreThreshold: conf.Index.ScoreThreshold,
	})
	if err != nil {
		_ = store.Close(ctx)
		return nil, err
	}

	cm, err := llm.NewChatModel(ctx, &conf.Chat, conf.APIKey)
	if err != nil {
		_ = store.Close(ctx)
		return nil, err
	}

	p, err := rag.NewPipeline(ctx, r, cm)
	if err != nil {
		_ = store.Close(ctx)
		return nil, err
	}

	g.Log().Infof(ctx, "All components initialized in %v", time.Since(start))
	return &app{pipeline: p, store: store}, nil
}

type indexOptions struct {
	Sources []string
	Output  string
	Rebuild bool
}

// buildIndex runs the offline indexer against the configured vector store.
func buildIndex(ctx context.Context, conf *config.Config, opts indexOptions) (*indexer.Result, error) {
	if len(opts.Sources) == 0 {
		return nil, errors.New(errors.ErrInvalidParameter, "at least one --source is required")
	}
	if opts.Output != "" {
		conf.Index.Path = opts.Output
	}
	if opts.Rebuild && (conf.Index.Type == config.IndexTypeLocal || conf.Index.Type == "") && gfile.Exists(conf.Index.Path) {
		g.Log().Infof(ctx, "Removing existing index %s", conf.Index.Path)
		if err := gfile.Remove(conf.Index.Path); err != nil {
			return nil, errors.Wrapf(errors.ErrIndexingFailed, err, "remove %s", conf.Index.Path)
		}
	}

	emb, err := embedder.NewEmbedder(ctx, &conf.Embedding, conf.APIKey)
	if err != nil {
		return nil, err
	}

	storeConf := vector_store.FromConfig(conf)
	storeConf.Create = true
	store, err := vector_store.NewVectorStore(ctx, storeConf)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := store.Close(ctx); err != nil {
			g.Log().Warningf(ctx, "Closing vector store: %v", err)
		}
	}()

	var objectClient *minio.Client
	if conf.Minio.Endpoint != "" {
		objectClient, err = common.NewObjectStoreClient(conf.Minio.Endpoint, conf.Minio.AccessKey, conf.Minio.SecretKey, conf.Minio.UseSSL)
		if err != nil {
			return nil, errors.Wrap(errors.ErrFileReadFailed, err, "connect object storage")
		}
	}

	ldr, err := indexer.NewLoader(ctx, objectClient)
	if err != nil {
		return nil, err
	}
	tr, err := indexer.NewTransformer(ctx, conf.Indexer.ChunkSize, conf.Indexer.OverlapSize)
	if err != nil {
		return nil, err
	}
	x, err := indexer.New(ctx, &indexer.Config{
		Loader:      ldr,
		Transformer: tr,
		Embedder:    emb,
		VectorStore: store,
		BatchSize:   conf.Indexer.BatchSize,
		Concurrency: conf.Indexer.Concurrency,
	})
	if err != nil {
		return nil, err
	}
	return x.Index(ctx, opts.Sources)
}
