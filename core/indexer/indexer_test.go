package indexer

import (
	"context"
	stderrors "errors"
	"hash/fnv"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/schema"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/gogf/gf/v2/os/gfile"
	"github.com/gogf/gf/v2/os/glog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Malowking/textverse/core/vector_store"
)

func TestMain(m *testing.M) {
	g.Log().SetConfig(glog.Config{
		Flags:       glog.F_TIME_STD,
		Level:       glog.LEVEL_ALL,
		StdoutPrint: true,
	})
	initialDelay = time.Millisecond
	maxDelay = time.Millisecond
	os.Exit(m.Run())
}

// hashEmbedder returns a deterministic 4-dimensional vector per text.
type hashEmbedder struct {
	failures int32 // number of calls that fail before succeeding; -1 fails forever
	calls    int32
}

func (e *hashEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	n := atomic.AddInt32(&e.calls, 1)
	if e.failures < 0 || n <= e.failures {
		return nil, stderrors.New("rate limited")
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		h := fnv.New32a()
		_, _ = h.Write([]byte(t))
		v := h.Sum32()
		out[i] = []float64{float64(v & 0xff), float64(v >> 8 & 0xff), float64(v >> 16 & 0xff), 1}
	}
	return out, nil
}

func writeCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, gfile.PutContents(gfile.Join(dir, "policy.txt"),
		"Refunds are issued within 14 days.\n\nShipping is free above 50 EUR.\n\nSupport is available on weekdays."))
	require.NoError(t, gfile.PutContents(gfile.Join(dir, "guide", "setup.md"),
		"# Setup\nInstall the agent.\n## Configure\nSet the API token."))
	require.NoError(t, gfile.PutContents(gfile.Join(dir, "image.bin"), "\x00\x01\x02"))
	return dir
}

func newTestIndexer(t *testing.T, emb embedding.Embedder, store vector_store.VectorStore) *Indexer {
	t.Helper()
	ctx := context.Background()
	ldr, err := NewLoader(ctx, nil)
	require.NoError(t, err)
	tr, err := NewTransformer(ctx, 200, 20)
	require.NoError(t, err)
	x, err := New(ctx, &Config{
		Loader:      ldr,
		Transformer: tr,
		Embedder:    emb,
		VectorStore: store,
		BatchSize:   2,
		Concurrency: 2,
	})
	require.NoError(t, err)
	return x
}

func TestExpandSource(t *testing.T) {
	ctx := context.Background()
	dir := writeCorpus(t)

	files, err := ExpandSource(ctx, dir)
	require.NoError(t, err)
	assert.Len(t, files, 2)

	files, err = ExpandSource(ctx, gfile.Join(dir, "policy.txt"))
	require.NoError(t, err)
	assert.Equal(t, []string{gfile.Join(dir, "policy.txt")}, files)

	files, err = ExpandSource(ctx, "https://example.com/doc.html")
	require.NoError(t, err)
	assert.Len(t, files, 1)

	_, err = ExpandSource(ctx, gfile.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	_, err := New(context.Background(), &Config{})
	assert.Error(t, err)
	_, err = New(context.Background(), nil)
	assert.Error(t, err)
}

func TestIndex(t *testing.T) {
	ctx := context.Background()
	dir := writeCorpus(t)
	out := gfile.Join(t.TempDir(), "vector_index")

	store, err := vector_store.CreateLocalIndex(out, "hash", 4, vector_store.MetricL2)
	require.NoError(t, err)

	x := newTestIndexer(t, &hashEmbedder{}, store)
	res, err := x.Index(ctx, []string{dir})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sources)
	assert.Equal(t, 0, res.Skipped)
	assert.Greater(t, res.Chunks, 2)

	reopened, err := vector_store.OpenLocalIndex(out)
	require.NoError(t, err)
	assert.Equal(t, store.Len(), reopened.Len())
	assert.Equal(t, "hash", reopened.Meta().EmbeddingModel)

	t.Run("reindexing the same files adds nothing", func(t *testing.T) {
		before := store.Len()
		_, err := x.Index(ctx, []string{dir})
		require.NoError(t, err)
		assert.Equal(t, before, store.Len())
	})

	t.Run("an edited file replaces its old chunks", func(t *testing.T) {
		policy := gfile.Join(dir, "policy.txt")
		require.NoError(t, gfile.PutContents(policy, "Refunds are issued within 30 days."))
		_, err := x.Index(ctx, []string{policy})
		require.NoError(t, err)

		emb := &hashEmbedder{}
		vecs, err := emb.EmbedStrings(ctx, []string{"refunds"})
		require.NoError(t, err)
		docs, err := store.Search(ctx, vecs[0], store.Len())
		require.NoError(t, err)

		var contents []string
		for _, d := range docs {
			if d.MetaData["_source"] == policy {
				contents = append(contents, d.Content)
			}
		}
		assert.Equal(t, []string{"Refunds are issued within 30 days."}, contents)

		reopened, err := vector_store.OpenLocalIndex(out)
		require.NoError(t, err)
		assert.Equal(t, store.Len(), reopened.Len())
	})

	t.Run("chunks carry their source", func(t *testing.T) {
		emb := &hashEmbedder{}
		vecs, err := emb.EmbedStrings(ctx, []string{"x"})
		require.NoError(t, err)
		docs, err := reopened.Search(ctx, vecs[0], reopened.Len())
		require.NoError(t, err)
		for _, d := range docs {
			assert.NotEmpty(t, d.ID)
			assert.NotEmpty(t, d.MetaData["_source"])
		}
	})
}

func TestIndexEmbeddingRetry(t *testing.T) {
	ctx := context.Background()
	dir := writeCorpus(t)
	store, err := vector_store.CreateLocalIndex(gfile.Join(t.TempDir(), "idx"), "hash", 4, vector_store.MetricL2)
	require.NoError(t, err)

	emb := &hashEmbedder{failures: 1}
	x := newTestIndexer(t, emb, store)
	res, err := x.Index(ctx, []string{gfile.Join(dir, "policy.txt")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sources)
	assert.Greater(t, store.Len(), 0)
}

func TestIndexEmbeddingFailure(t *testing.T) {
	ctx := context.Background()
	dir := writeCorpus(t)
	out := gfile.Join(t.TempDir(), "idx")
	store, err := vector_store.CreateLocalIndex(out, "hash", 4, vector_store.MetricL2)
	require.NoError(t, err)

	x := newTestIndexer(t, &hashEmbedder{failures: -1}, store)
	_, err = x.Index(ctx, []string{gfile.Join(dir, "policy.txt")})
	require.Error(t, err)
	assert.False(t, gfile.Exists(gfile.Join(out, "index.json")), "nothing is flushed on failure")
}

func TestAssignIDs(t *testing.T) {
	mk := func() []*schema.Document {
		return []*schema.Document{
			{Content: "a", MetaData: map[string]any{"_source": "f.txt"}},
			{Content: "b", MetaData: map[string]any{"_source": "f.txt"}},
			{Content: "a", MetaData: map[string]any{"_source": "g.txt"}},
		}
	}
	first, err := assignIDs(context.Background(), mk())
	require.NoError(t, err)
	second, err := assignIDs(context.Background(), mk())
	require.NoError(t, err)

	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, i, first[i].MetaData["chunk_index"])
	}
	assert.NotEqual(t, first[0].ID, first[1].ID)
	assert.NotEqual(t, first[0].ID, first[2].ID)
}

func TestCreateBatches(t *testing.T) {
	chunks := make([]*schema.Document, 5)
	for i := range chunks {
		chunks[i] = &schema.Document{Content: string(rune('a' + i))}
	}
	batches := createBatches(chunks, 2)
	require.Len(t, batches, 3)
	assert.Equal(t, []string{"a", "b"}, batches[0].texts)
	assert.Equal(t, 4, batches[2].start)
	assert.Equal(t, []string{"e"}, batches[2].texts)
}
