package textverse

import (
	"bytes"
	"context"

	"github.com/gogf/gf/v2/encoding/gjson"
	"github.com/gogf/gf/v2/frame/g"

	"github.com/Malowking/textverse/api/textverse/v1"
	"github.com/Malowking/textverse/core/errors"
)

func (c *ControllerV1) Ask(ctx context.Context, req *v1.AskReq) (res *v1.AskRes, err error) {
	var question string
	// gf fills req from query, form and converted JSON values alike, so an HTTP
	// request is checked against its raw JSON body.
	if r := g.RequestFromCtx(ctx); r != nil {
		if question, err = questionFromBody(r.GetBody()); err != nil {
			return nil, err
		}
	} else {
		if req.Question == nil {
			return nil, errors.New(errors.ErrValidationFailed, "question: field required")
		}
		question = *req.Question
	}
	g.Log().Infof(ctx, "Ask request received - question length: %d", len(question))

	return &v1.AskRes{Answer: c.answerer.Answer(ctx, question)}, nil
}

// questionFromBody 从 JSON 请求体中取出 question，必须是字符串
func questionFromBody(body []byte) (string, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return "", errors.New(errors.ErrValidationFailed, "question: field required")
	}
	value, err := gjson.Decode(body)
	if err != nil {
		return "", errors.New(errors.ErrValidationFailed, "body: invalid JSON")
	}
	fields, ok := value.(map[string]any)
	if !ok {
		return "", errors.New(errors.ErrValidationFailed, "body: expected a JSON object")
	}
	raw, ok := fields["question"]
	if !ok || raw == nil {
		return "", errors.New(errors.ErrValidationFailed, "question: field required")
	}
	question, ok := raw.(string)
	if !ok {
		return "", errors.New(errors.ErrValidationFailed, "question: input should be a valid string")
	}
	return question, nil
}
