package indexer

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/schema"
	"github.com/gogf/gf/v2/frame/g"

	"github.com/Malowking/textverse/core/common"
	"github.com/Malowking/textverse/core/errors"
)

var (
	maxRetries   = 3
	initialDelay = 1 * time.Second
	maxDelay     = 10 * time.Second
)

// batchInfo 批次信息
type batchInfo struct {
	index int
	start int
	texts []string
}

// createBatches 创建批次
func createBatches(chunks []*schema.Document, batchSize int) []batchInfo {
	var batches []batchInfo
	batchCount := int(math.Ceil(float64(len(chunks)) / float64(batchSize)))

	for i := 0; i < batchCount; i++ {
		start := i * batchSize
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, end-start)
		for j, chunk := range chunks[start:end] {
			texts[j] = chunk.Content
		}
		batches = append(batches, batchInfo{index: i, start: start, texts: texts})
	}
	return batches
}

// embedChunks embeds chunk contents in batches, at most concurrency batches
// in flight. The returned vectors line up with chunks.
func embedChunks(ctx context.Context, emb embedding.Embedder, chunks []*schema.Document, batchSize, concurrency int) ([][]float64, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	batches := createBatches(chunks, batchSize)
	g.Log().Infof(ctx, "Embedding %d chunks in %d batches (batchSize=%d, concurrency=%d)",
		len(chunks), len(batches), batchSize, concurrency)

	vectors := make([][]float64, len(chunks))
	errChan := make(chan error, len(batches))
	semaphore := make(chan struct{}, concurrency)

	for _, batch := range batches {
		b := batch
		semaphore <- struct{}{}
		common.SafeGoWithError(ctx, fmt.Sprintf("embed batch %d", b.index), func() error {
			defer func() { <-semaphore }()

			vecs, err := embedWithRetry(ctx, emb, b.texts)
			if err != nil {
				return errors.Wrapf(errors.ErrEmbeddingFailed, err, "batch %d", b.index)
			}
			if len(vecs) != len(b.texts) {
				return errors.Newf(errors.ErrEmbeddingFailed, "batch %d: expected %d vectors, got %d", b.index, len(b.texts), len(vecs))
			}
			copy(vectors[b.start:], vecs)
			g.Log().Debugf(ctx, "Batch %d completed, chunks: %d", b.index, len(b.texts))
			return nil
		}, errChan)
	}

	var firstErr error
	for range batches {
		if err := <-errChan; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return vectors, nil
}

// embedWithRetry 带指数退避重试的文本向量化
func embedWithRetry(ctx context.Context, emb embedding.Embedder, texts []string) ([][]float64, error) {
	var lastErr error
	delay := initialDelay

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			g.Log().Infof(ctx, "Retrying embedding attempt %d/%d after %v delay", attempt, maxRetries, delay)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
				delay *= 2
				if delay > maxDelay {
					delay = maxDelay
				}
			}
		}

		vectors, err := emb.EmbedStrings(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		g.Log().Warningf(ctx, "Embedding attempt %d failed: %v", attempt+1, err)
	}
	return nil, lastErr
}
