package v1

import (
	"github.com/gogf/gf/v2/frame/g"
)

// AskReq Question is a pointer so a missing field can be told apart from "".
type AskReq struct {
	g.Meta   `path:"/ask" method:"post" tags:"ask" summary:"Answer a question from the indexed documents"`
	Question *string `json:"question"`
}

type AskRes struct {
	g.Meta `mime:"application/json"`
	Answer string `json:"answer"`
}
