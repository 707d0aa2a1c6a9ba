package textverse

import (
	"context"

	"github.com/Malowking/textverse/api/textverse/v1"
)

// ITextverseV1 lists the v1 handlers bound on the router. One file per
// handler lives in internal/controller/textverse, following the gf gen ctrl layout.
type ITextverseV1 interface {
	Health(ctx context.Context, req *v1.HealthReq) (res *v1.HealthRes, err error)
	Ask(ctx context.Context, req *v1.AskReq) (res *v1.AskRes, err error)
}
