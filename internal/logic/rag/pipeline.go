package rag

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/gogf/gf/v2/frame/g"

	"github.com/Malowking/textverse/core/common"
	"github.com/Malowking/textverse/core/errors"
)

// ApologyMessage is returned to the caller whenever answering fails.
const ApologyMessage = "Sorry, I encountered an error while processing your request."

// Pipeline answers a question with Retriever -> Prompt -> LLM. It is built
// once at startup and only read afterwards.
type Pipeline struct {
	runnable compose.Runnable[string, *schema.Message]
}

// llmNode tags chat model failures so callers can tell them apart from
// retrieval failures after the graph wraps them.
type llmNode struct {
	cm model.BaseChatModel
}

func (n *llmNode) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	msg, err := n.cm.Generate(ctx, input, opts...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrLLMCallFailed, err, "chat completion")
	}
	return msg, nil
}

func (n *llmNode) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	sr, err := n.cm.Stream(ctx, input, opts...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrLLMCallFailed, err, "chat completion stream")
	}
	return sr, nil
}

// NewPipeline composes the answering graph.
func NewPipeline(ctx context.Context, r retriever.Retriever, cm model.BaseChatModel) (*Pipeline, error) {
	if r == nil || cm == nil {
		return nil, errors.New(errors.ErrInvalidParameter, "pipeline needs a retriever and a chat model")
	}

	const (
		Retrieve = "Retrieve"
		Prompt   = "Prompt"
		LLM      = "LLM"
	)

	retrieve := func(ctx context.Context, question string) (map[string]any, error) {
		docs, err := r.Retrieve(ctx, question)
		if err != nil {
			if errors.IsAppError(err) {
				return nil, err
			}
			return nil, errors.Wrap(errors.ErrRetrievalFailed, err, "retrieve context")
		}
		return map[string]any{
			KeyContext: FormatDocuments(docs),
			KeyInput:   question,
		}, nil
	}

	gr := compose.NewGraph[string, *schema.Message]()
	_ = gr.AddLambdaNode(Retrieve, compose.InvokableLambda(retrieve))
	_ = gr.AddChatTemplateNode(Prompt, NewPromptTemplate())
	_ = gr.AddChatModelNode(LLM, &llmNode{cm: cm})
	_ = gr.AddEdge(compose.START, Retrieve)
	_ = gr.AddEdge(Retrieve, Prompt)
	_ = gr.AddEdge(Prompt, LLM)
	_ = gr.AddEdge(LLM, compose.END)

	runnable, err := gr.Compile(ctx, compose.WithGraphName("qa"))
	if err != nil {
		return nil, errors.Wrap(errors.ErrPipelineFailed, err, "compile qa graph")
	}
	return &Pipeline{runnable: runnable}, nil
}

// Invoke runs the graph and returns the model's text. Errors are returned
// as-is; an empty completion counts as an error.
func (p *Pipeline) Invoke(ctx context.Context, question string) (answer string, err error) {
	defer common.RecoverToError(ctx, "qa pipeline", &err)

	msg, err := p.runnable.Invoke(ctx, question)
	if err != nil {
		return "", err
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", errors.New(errors.ErrEmptyCompletion, "model returned an empty answer")
	}
	return msg.Content, nil
}

// Answer never fails: any error is logged and replaced by ApologyMessage.
func (p *Pipeline) Answer(ctx context.Context, question string) string {
	answer, err := p.Invoke(ctx, question)
	if err != nil {
		code := errors.CodeOf(err, errors.ErrPipelineFailed)
		g.Log().Errorf(ctx, "Answering failed [%s]: %v", code, err)
		return ApologyMessage
	}
	return answer
}
