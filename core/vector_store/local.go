package vector_store

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/schema"
	"github.com/gogf/gf/v2/os/gfile"

	"github.com/Malowking/textverse/core/common"
	"github.com/Malowking/textverse/core/errors"
)

const (
	localIndexVersion = 1
	localMetaFile     = "index.json"
	localChunksFile   = "chunks.json"
)

// IndexMeta is the header of a persisted local index.
type IndexMeta struct {
	Version        int    `json:"version"`
	EmbeddingModel string `json:"embedding_model"`
	Dimension      int    `json:"dimension"`
	Metric         string `json:"metric"`
	Count          int    `json:"count"`
	CreatedAt      string `json:"created_at"`
}

type storedChunk struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Vector   []float32      `json:"vector"`
}

// LocalIndex is a flat index persisted as two JSON files in one directory.
// Searches scan every vector. After OpenLocalIndex returns, the index is only read.
type LocalIndex struct {
	path   string
	meta   IndexMeta
	chunks []storedChunk
	byID   map[string]int
}

// OpenLocalIndex loads the index stored under path.
func OpenLocalIndex(path string) (*LocalIndex, error) {
	if path == "" {
		return nil, errors.New(errors.ErrIndexLoadFailed, "index path is empty")
	}
	if !gfile.IsDir(path) {
		return nil, errors.Newf(errors.ErrIndexLoadFailed, "index directory %q not found", path)
	}

	metaPath := gfile.Join(path, localMetaFile)
	chunksPath := gfile.Join(path, localChunksFile)
	for _, p := range []string{metaPath, chunksPath} {
		if !gfile.IsFile(p) {
			return nil, errors.Newf(errors.ErrIndexLoadFailed, "index file %q not found", p)
		}
	}

	var meta IndexMeta
	if err := sonic.Unmarshal(gfile.GetBytes(metaPath), &meta); err != nil {
		return nil, errors.Wrapf(errors.ErrIndexCorrupted, err, "decode %s", metaPath)
	}
	if meta.Version != localIndexVersion {
		return nil, errors.Newf(errors.ErrIndexCorrupted, "unsupported index version %d", meta.Version)
	}
	if meta.Dimension <= 0 {
		return nil, errors.Newf(errors.ErrIndexCorrupted, "invalid index dimension %d", meta.Dimension)
	}
	metric, err := normalizeMetric(meta.Metric)
	if err != nil {
		return nil, err
	}
	meta.Metric = metric

	var chunks []storedChunk
	if err = sonic.Unmarshal(gfile.GetBytes(chunksPath), &chunks); err != nil {
		return nil, errors.Wrapf(errors.ErrIndexCorrupted, err, "decode %s", chunksPath)
	}
	if len(chunks) != meta.Count {
		return nil, errors.Newf(errors.ErrIndexCorrupted, "index header declares %d chunks, found %d", meta.Count, len(chunks))
	}

	idx := &LocalIndex{path: path, meta: meta, chunks: chunks, byID: make(map[string]int, len(chunks))}
	for i, c := range chunks {
		if len(c.Vector) != meta.Dimension {
			return nil, errors.Newf(errors.ErrIndexCorrupted, "chunk %q has dimension %d, expected %d", c.ID, len(c.Vector), meta.Dimension)
		}
		idx.byID[c.ID] = i
	}
	return idx, nil
}

// CreateLocalIndex opens the index under path for writing, or starts an empty one
// when nothing is stored there yet. dimension may be 0 and is then taken from the
// first upserted vector.
func CreateLocalIndex(path, embeddingModel string, dimension int, metric string) (*LocalIndex, error) {
	if path == "" {
		return nil, errors.New(errors.ErrVectorStoreInit, "index path is empty")
	}
	if gfile.IsFile(gfile.Join(path, localMetaFile)) {
		idx, err := OpenLocalIndex(path)
		if err != nil {
			return nil, err
		}
		if err = idx.CheckBinding(embeddingModel, dimension); err != nil {
			return nil, err
		}
		return idx, nil
	}

	m, err := normalizeMetric(metric)
	if err != nil {
		return nil, err
	}
	return &LocalIndex{
		path: path,
		meta: IndexMeta{
			Version:        localIndexVersion,
			EmbeddingModel: embeddingModel,
			Dimension:      dimension,
			Metric:         m,
			CreatedAt:      time.Now().UTC().Format(time.RFC3339),
		},
		byID: make(map[string]int),
	}, nil
}

func normalizeMetric(metric string) (string, error) {
	switch m := strings.ToUpper(metric); m {
	case "":
		return MetricL2, nil
	case MetricL2, MetricCosine, MetricIP:
		return m, nil
	default:
		return "", errors.Newf(errors.ErrIndexCorrupted, "unsupported metric %q", metric)
	}
}

func (x *LocalIndex) Meta() IndexMeta {
	return x.meta
}

func (x *LocalIndex) Len() int {
	return len(x.chunks)
}

// CheckBinding fails when the index was built by another embedding model or
// with another vector size. Empty arguments are not checked.
func (x *LocalIndex) CheckBinding(embeddingModel string, dimension int) error {
	if embeddingModel != "" && x.meta.EmbeddingModel != "" && embeddingModel != x.meta.EmbeddingModel {
		return errors.Newf(errors.ErrIndexMismatch, "index was built with embedding model %q, configured model is %q", x.meta.EmbeddingModel, embeddingModel)
	}
	if dimension > 0 && x.meta.Dimension > 0 && dimension != x.meta.Dimension {
		return errors.Newf(errors.ErrIndexMismatch, "index dimension is %d, configured dimension is %d", x.meta.Dimension, dimension)
	}
	return nil
}

type scoredHit struct {
	idx   int
	value float64 // distance for L2, similarity otherwise
}

// Search performs an exhaustive scan.
func (x *LocalIndex) Search(ctx context.Context, vector []float64, topK int) ([]*schema.Document, error) {
	if topK <= 0 {
		return nil, errors.Newf(errors.ErrVectorSearch, "topK must be positive, got %d", topK)
	}
	if len(vector) != x.meta.Dimension {
		return nil, errors.Newf(errors.ErrVectorSearch, "query dimension %d does not match index dimension %d", len(vector), x.meta.Dimension)
	}

	hits := make([]scoredHit, len(x.chunks))
	for i := range x.chunks {
		hits[i] = scoredHit{idx: i, value: x.compare(vector, x.chunks[i].Vector)}
	}
	if x.meta.Metric == MetricL2 {
		sort.SliceStable(hits, func(a, b int) bool { return hits[a].value < hits[b].value })
	} else {
		sort.SliceStable(hits, func(a, b int) bool { return hits[a].value > hits[b].value })
	}
	if len(hits) > topK {
		hits = hits[:topK]
	}

	docs := make([]*schema.Document, 0, len(hits))
	for _, h := range hits {
		c := x.chunks[h.idx]
		meta := make(map[string]any, len(c.Metadata)+1)
		for k, v := range c.Metadata {
			meta[k] = v
		}
		doc := &schema.Document{ID: c.ID, Content: c.Content, MetaData: meta}
		if x.meta.Metric == MetricL2 {
			doc.WithScore(distanceToScore(h.value))
		} else {
			doc.WithScore(h.value)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (x *LocalIndex) compare(q []float64, v []float32) float64 {
	switch x.meta.Metric {
	case MetricCosine:
		var dot, nq, nv float64
		for i := range q {
			f := float64(v[i])
			dot += q[i] * f
			nq += q[i] * q[i]
			nv += f * f
		}
		if nq == 0 || nv == 0 {
			return 0
		}
		return dot / (math.Sqrt(nq) * math.Sqrt(nv))
	case MetricIP:
		var dot float64
		for i := range q {
			dot += q[i] * float64(v[i])
		}
		return dot
	default:
		var sum float64
		for i := range q {
			d := q[i] - float64(v[i])
			sum += d * d
		}
		return math.Sqrt(sum)
	}
}

// Upsert adds chunks in memory; an existing ID is replaced. Call Flush to persist.
func (x *LocalIndex) Upsert(ctx context.Context, docs []*schema.Document, vectors [][]float64) error {
	if len(docs) != len(vectors) {
		return errors.Newf(errors.ErrVectorInsert, "got %d documents and %d vectors", len(docs), len(vectors))
	}
	for i, doc := range docs {
		if doc.ID == "" {
			return errors.Newf(errors.ErrVectorInsert, "document %d has no id", i)
		}
		if x.meta.Dimension == 0 {
			x.meta.Dimension = len(vectors[i])
		}
		if len(vectors[i]) != x.meta.Dimension {
			return errors.Newf(errors.ErrVectorInsert, "vector for %q has dimension %d, expected %d", doc.ID, len(vectors[i]), x.meta.Dimension)
		}
		c := storedChunk{ID: doc.ID, Content: doc.Content, Metadata: doc.MetaData, Vector: toFloat32(vectors[i])}
		if pos, ok := x.byID[doc.ID]; ok {
			x.chunks[pos] = c
			continue
		}
		x.byID[doc.ID] = len(x.chunks)
		x.chunks = append(x.chunks, c)
	}
	x.meta.Count = len(x.chunks)
	return nil
}

// DeleteBySource drops the chunks of source from memory. Call Flush to persist.
func (x *LocalIndex) DeleteBySource(ctx context.Context, source string) error {
	kept := x.chunks[:0]
	for _, c := range x.chunks {
		if s, _ := c.Metadata[common.MetaSource].(string); s == source {
			continue
		}
		kept = append(kept, c)
	}
	if len(kept) == len(x.chunks) {
		return nil
	}
	x.chunks = kept
	x.byID = make(map[string]int, len(kept))
	for i, c := range kept {
		x.byID[c.ID] = i
	}
	x.meta.Count = len(x.chunks)
	return nil
}

// Flush writes both files to temporary names and renames them into place,
// chunks first so a reader never sees a header newer than its chunks.
func (x *LocalIndex) Flush(ctx context.Context) error {
	if err := gfile.Mkdir(x.path); err != nil {
		return errors.Wrapf(errors.ErrVectorInsert, err, "create index directory %q", x.path)
	}
	chunks := x.chunks
	if chunks == nil {
		chunks = []storedChunk{}
	}
	x.meta.Count = len(chunks)

	chunkBytes, err := sonic.Marshal(chunks)
	if err != nil {
		return errors.Wrap(errors.ErrVectorInsert, err, "encode chunks")
	}
	metaBytes, err := sonic.Marshal(x.meta)
	if err != nil {
		return errors.Wrap(errors.ErrVectorInsert, err, "encode index header")
	}

	for _, f := range []struct {
		name string
		data []byte
	}{{localChunksFile, chunkBytes}, {localMetaFile, metaBytes}} {
		target := gfile.Join(x.path, f.name)
		tmp := target + ".tmp"
		if err = gfile.PutBytes(tmp, f.data); err != nil {
			return errors.Wrapf(errors.ErrVectorInsert, err, "write %s", tmp)
		}
		if err = gfile.Rename(tmp, target); err != nil {
			return errors.Wrapf(errors.ErrVectorInsert, err, "rename %s", tmp)
		}
	}
	return nil
}

func (x *LocalIndex) Close(ctx context.Context) error {
	return nil
}
