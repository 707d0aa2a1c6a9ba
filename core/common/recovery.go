package common

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/gogf/gf/v2/frame/g"
)

// LogPanic records a recovered panic value with the current stack.
func LogPanic(ctx context.Context, taskName string, r any) {
	g.Log().Criticalf(ctx,
		"[PANIC RECOVERED] Task: %s\nError: %v\nStack Trace:\n%s",
		taskName, r, string(debug.Stack()))
}

// RecoverPanic 通用 panic 恢复函数
// 在 defer 中调用，捕获并记录 panic 信息（包含完整堆栈）
func RecoverPanic(ctx context.Context, taskName string) {
	if r := recover(); r != nil {
		LogPanic(ctx, taskName, r)
	}
}

// RecoverToError turns a panic into an error stored in *errp. Use it as
//
//	defer RecoverToError(ctx, "task", &err)
func RecoverToError(ctx context.Context, taskName string, errp *error) {
	if r := recover(); r != nil {
		LogPanic(ctx, taskName, r)
		*errp = fmt.Errorf("panic in task %s: %v", taskName, r)
	}
}

// SafeGoWithError 安全启动 goroutine (带错误返回)
// 通过 channel 返回错误信息，panic 会被转换为错误
func SafeGoWithError(ctx context.Context, taskName string, fn func() error, errChan chan<- error) {
	go func() {
		var err error
		defer func() {
			errChan <- err
		}()
		defer RecoverToError(ctx, taskName, &err)
		err = fn()
	}()
}
