package connection

import (
	"context"
	"sync"
)

// JoinFailed 是 join 失败时的结果 (空频道码)
const JoinFailed = ""

// JoinResult 是 Join 的一次性结果。只会被设置一次：
// 收到服务端确认时为频道码，确认前传输层失败时为 JoinFailed。
type JoinResult struct {
	once sync.Once
	done chan struct{}
	code string
}

func newJoinResult() *JoinResult {
	return &JoinResult{done: make(chan struct{})}
}

// settle 设置结果，返回本次调用是否生效
func (r *JoinResult) settle(code string) bool {
	settled := false
	r.once.Do(func() {
		r.code = code
		close(r.done)
		settled = true
	})
	return settled
}

// Done 在结果被设置后关闭
func (r *JoinResult) Done() <-chan struct{} {
	return r.done
}

// Code 非阻塞地读取结果，第二个返回值表示是否已有结果
func (r *JoinResult) Code() (string, bool) {
	select {
	case <-r.done:
		return r.code, true
	default:
		return "", false
	}
}

// Wait 阻塞直到有结果或 ctx 结束。
// 只有调用方放弃等待时才返回 error，连接失败通过 JoinFailed 表示。
func (r *JoinResult) Wait(ctx context.Context) (string, error) {
	select {
	case <-r.done:
		return r.code, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
