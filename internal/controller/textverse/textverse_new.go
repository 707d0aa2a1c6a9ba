package textverse

import (
	"context"

	"github.com/Malowking/textverse/api/textverse"
)

// Answerer turns a question into an answer. Implementations never fail; errors
// are reported through the answer text.
type Answerer interface {
	Answer(ctx context.Context, question string) string
}

type ControllerV1 struct {
	answerer Answerer
}

func NewV1(answerer Answerer) textverse.ITextverseV1 {
	return &ControllerV1{answerer: answerer}
}
