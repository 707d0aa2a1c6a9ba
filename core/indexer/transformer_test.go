package indexer

import (
	"context"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Malowking/textverse/core/common"
)

func TestNewTransformerValidation(t *testing.T) {
	ctx := context.Background()
	_, err := NewTransformer(ctx, 0, 0)
	assert.Error(t, err)
	_, err = NewTransformer(ctx, 100, 100)
	assert.Error(t, err)
	_, err = NewTransformer(ctx, 100, -1)
	assert.Error(t, err)
}

func TestTransformerWithMarkdown(t *testing.T) {
	ctx := context.Background()

	docs := []*schema.Document{
		{
			Content: "# Title 1\nText under title 1.\n## Title 2\nText under title 2.\n### Title 3\nText under title 3.",
			MetaData: map[string]interface{}{
				common.MetaExtension: ".md",
			},
		},
	}

	transformer, err := NewTransformer(ctx, 100, 20)
	require.NoError(t, err)

	transformedDocs, err := transformer.Transform(ctx, docs)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(transformedDocs), 3, "each header starts a section")

	for i, doc := range transformedDocs {
		t.Logf("Document %d: %s", i, doc.Content)
		assert.NotEmpty(t, strings.TrimSpace(doc.Content))
	}
}

func TestTransformerWithPlainText(t *testing.T) {
	ctx := context.Background()

	docs := []*schema.Document{
		{
			Content: "This is the first sentence. This is the second sentence, used to test splitting. " +
				"This is the third sentence, checking the result. Finally the fourth sentence.",
			MetaData: map[string]interface{}{
				common.MetaExtension: ".txt",
			},
		},
	}

	transformer, err := NewTransformer(ctx, 60, 10)
	require.NoError(t, err)

	transformedDocs, err := transformer.Transform(ctx, docs)
	require.NoError(t, err)
	assert.Greater(t, len(transformedDocs), 1)
	for i, doc := range transformedDocs {
		t.Logf("Document %d: %s", i, doc.Content)
	}
}

func TestTransformerWithEmptyDocument(t *testing.T) {
	ctx := context.Background()

	docs := []*schema.Document{
		{Content: "", MetaData: map[string]interface{}{common.MetaExtension: ".txt"}},
		{Content: " \n\u200B\n ", MetaData: map[string]interface{}{common.MetaExtension: ".txt"}},
		nil,
	}

	transformer, err := NewTransformer(ctx, 100, 20)
	require.NoError(t, err)

	transformedDocs, err := transformer.Transform(ctx, docs)
	require.NoError(t, err)
	assert.Empty(t, transformedDocs, "empty documents should be filtered out")
}

func TestTransformerWithLargeDocument(t *testing.T) {
	ctx := context.Background()

	var sb strings.Builder
	for i := 0; i < 100; i++ {
		sb.WriteString("Line of content used to test splitting of a large document.\n")
	}

	docs := []*schema.Document{
		{Content: sb.String(), MetaData: map[string]interface{}{common.MetaExtension: ".txt"}},
	}

	transformer, err := NewTransformer(ctx, 200, 40)
	require.NoError(t, err)

	transformedDocs, err := transformer.Transform(ctx, docs)
	require.NoError(t, err)
	assert.Greater(t, len(transformedDocs), 1)

	t.Logf("Transformed %d documents from large document", len(transformedDocs))
}
