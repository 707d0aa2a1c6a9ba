package indexer

import (
	"context"
	"strings"

	"github.com/cloudwego/eino-ext/components/document/transformer/splitter/markdown"
	"github.com/cloudwego/eino-ext/components/document/transformer/splitter/recursive"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"

	"github.com/Malowking/textverse/core/common"
	"github.com/Malowking/textverse/core/errors"
)

// NewTransformer 创建文档切分器：md 文档先按标题切分，再统一做递归切分
func NewTransformer(ctx context.Context, chunkSize, overlapSize int) (document.Transformer, error) {
	if chunkSize <= 0 {
		return nil, errors.Newf(errors.ErrInvalidParameter, "chunk size must be positive, got %d", chunkSize)
	}
	if overlapSize < 0 || overlapSize >= chunkSize {
		return nil, errors.Newf(errors.ErrInvalidParameter, "overlap %d must be in [0, %d)", overlapSize, chunkSize)
	}

	recTrans, err := recursive.NewSplitter(ctx, &recursive.Config{
		ChunkSize:   chunkSize,
		OverlapSize: overlapSize,
		Separators:  []string{"\n\n", "\n", ". ", "? ", "! ", " "},
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrIndexingFailed, err, "create recursive splitter")
	}
	mdTrans, err := markdown.NewHeaderSplitter(ctx, &markdown.HeaderConfig{
		Headers:     map[string]string{"#": common.Title1, "##": common.Title2, "###": common.Title3},
		TrimHeaders: false,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrIndexingFailed, err, "create markdown splitter")
	}

	return &transformer{recursive: recTrans, markdown: mdTrans}, nil
}

type transformer struct {
	markdown  document.Transformer
	recursive document.Transformer
}

func (x *transformer) Transform(ctx context.Context, docs []*schema.Document, opts ...document.TransformerOption) ([]*schema.Document, error) {
	var md, plain []*schema.Document
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		doc.Content = common.CleanChunkText(doc.Content)
		if doc.Content == "" {
			continue
		}
		if ext, _ := doc.MetaData[common.MetaExtension].(string); strings.EqualFold(ext, ".md") {
			md = append(md, doc)
		} else {
			plain = append(plain, doc)
		}
	}

	if len(md) > 0 {
		sections, err := x.markdown.Transform(ctx, md, opts...)
		if err != nil {
			return nil, errors.Wrap(errors.ErrIndexingFailed, err, "split markdown")
		}
		plain = append(plain, sections...)
	}
	if len(plain) == 0 {
		return nil, nil
	}

	chunks, err := x.recursive.Transform(ctx, plain, opts...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrIndexingFailed, err, "split text")
	}

	out := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c.Content) != "" {
			out = append(out, c)
		}
	}
	return out, nil
}
