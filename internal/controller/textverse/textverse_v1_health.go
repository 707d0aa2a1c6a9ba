package textverse

import (
	"context"

	"github.com/Malowking/textverse/api/textverse/v1"
)

const healthMessage = "PDF Chatbot API is running!"

func (c *ControllerV1) Health(ctx context.Context, req *v1.HealthReq) (res *v1.HealthRes, err error) {
	return &v1.HealthRes{Message: healthMessage}, nil
}
