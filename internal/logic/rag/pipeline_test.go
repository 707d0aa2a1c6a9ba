package rag

import (
	"context"
	stderrors "errors"
	"os"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/gogf/gf/v2/os/glog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	g.Log().SetConfig(glog.Config{
		Flags:       glog.F_TIME_STD,
		Level:       glog.LEVEL_ALL,
		StdoutPrint: true,
	})
	os.Exit(m.Run())
}

type fakeRetriever struct {
	docs []*schema.Document
	err  error
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	return f.docs, f.err
}

type fakeChatModel struct {
	reply   string
	err     error
	panics  bool
	lastIn  []*schema.Message
	invoked int
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.invoked++
	f.lastIn = input
	if f.panics {
		panic("decoder blew up")
	}
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func docs(contents ...string) []*schema.Document {
	out := make([]*schema.Document, len(contents))
	for i, c := range contents {
		out[i] = &schema.Document{ID: c, Content: c}
	}
	return out
}

func TestPromptTemplate(t *testing.T) {
	msgs, err := NewPromptTemplate().Format(context.Background(), map[string]any{
		KeyContext: "Paris is the capital of France.",
		KeyInput:   "What is the capital of France?",
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "You are an assistant for question-answering tasks.")
	assert.Contains(t, msgs[0].Content, "Use three sentences maximum and keep the answer concise.\n\nParis is the capital of France.")
	assert.Equal(t, schema.User, msgs[1].Role)
	assert.Equal(t, "What is the capital of France?", msgs[1].Content)
}

func TestFormatDocuments(t *testing.T) {
	assert.Equal(t, "", FormatDocuments(nil))
	assert.Equal(t, "a\n\nb", FormatDocuments([]*schema.Document{{Content: "a"}, nil, {Content: "b"}}))
}

func TestNewPipeline(t *testing.T) {
	ctx := context.Background()
	_, err := NewPipeline(ctx, nil, &fakeChatModel{})
	assert.Error(t, err)
	_, err = NewPipeline(ctx, &fakeRetriever{}, nil)
	assert.Error(t, err)
}

func TestPipelineAnswer(t *testing.T) {
	ctx := context.Background()

	t.Run("answer from context", func(t *testing.T) {
		cm := &fakeChatModel{reply: "The invoice total is 42 EUR."}
		p, err := NewPipeline(ctx, &fakeRetriever{docs: docs("invoice total: 42 EUR", "due in 30 days")}, cm)
		require.NoError(t, err)

		answer := p.Answer(ctx, "What is the invoice total?")
		assert.Equal(t, "The invoice total is 42 EUR.", answer)

		require.Len(t, cm.lastIn, 2)
		assert.Contains(t, cm.lastIn[0].Content, "invoice total: 42 EUR\n\ndue in 30 days")
		assert.Equal(t, "What is the invoice total?", cm.lastIn[1].Content)
	})

	t.Run("empty retrieval still asks the model", func(t *testing.T) {
		cm := &fakeChatModel{reply: "I don't know."}
		p, err := NewPipeline(ctx, &fakeRetriever{}, cm)
		require.NoError(t, err)
		assert.Equal(t, "I don't know.", p.Answer(ctx, "anything"))
		assert.Equal(t, 1, cm.invoked)
	})

	t.Run("retrieval failure", func(t *testing.T) {
		cm := &fakeChatModel{reply: "unused"}
		p, err := NewPipeline(ctx, &fakeRetriever{err: stderrors.New("index offline")}, cm)
		require.NoError(t, err)

		_, err = p.Invoke(ctx, "q")
		assert.Error(t, err)
		assert.Equal(t, ApologyMessage, p.Answer(ctx, "q"))
		assert.Equal(t, 0, cm.invoked)
	})

	t.Run("llm failure", func(t *testing.T) {
		p, err := NewPipeline(ctx, &fakeRetriever{docs: docs("x")}, &fakeChatModel{err: stderrors.New("503 model loading")})
		require.NoError(t, err)
		assert.Equal(t, ApologyMessage, p.Answer(ctx, "q"))
	})

	t.Run("empty completion", func(t *testing.T) {
		p, err := NewPipeline(ctx, &fakeRetriever{docs: docs("x")}, &fakeChatModel{reply: "  "})
		require.NoError(t, err)
		_, err = p.Invoke(ctx, "q")
		assert.Error(t, err)
		assert.Equal(t, ApologyMessage, p.Answer(ctx, "q"))
	})

	t.Run("panic in model", func(t *testing.T) {
		p, err := NewPipeline(ctx, &fakeRetriever{docs: docs("x")}, &fakeChatModel{panics: true})
		require.NoError(t, err)
		assert.Equal(t, ApologyMessage, p.Answer(ctx, "q"))
	})
}
