package v1

import (
	"github.com/gogf/gf/v2/frame/g"
)

type HealthReq struct {
	g.Meta `path:"/" method:"get" tags:"health" summary:"Liveness check"`
}

type HealthRes struct {
	g.Meta  `mime:"application/json"`
	Message string `json:"message"`
}
