package retry

import (
	"context"
	"time"
)

// Policy 有界重试策略
// Retries 为重试次数（不含首次尝试）；Delays 为每次重试前的退避延迟，
// 重试次数超过延迟个数时复用最后一个延迟
type Policy struct {
	Retries int
	Delays  []time.Duration
}

// DefaultPolicy 默认策略：3次重试，500ms/1s/2s退避
func DefaultPolicy() Policy {
	return Policy{
		Retries: 3,
		Delays: []time.Duration{
			500 * time.Millisecond,
			1000 * time.Millisecond,
			2000 * time.Millisecond,
		},
	}
}

// Do 执行 fn，失败且 retryable 判定可重试时按策略退避后重试
// 不可重试的错误立即返回；上下文取消时返回 ctx.Err()
func (p Policy) Do(ctx context.Context, fn func() error, retryable func(error) bool) error {
	var err error

	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt >= p.Retries {
			return err
		}

		delay := p.delayFor(attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (p Policy) delayFor(attempt int) time.Duration {
	if len(p.Delays) == 0 {
		return 0
	}
	if attempt >= len(p.Delays) {
		return p.Delays[len(p.Delays)-1]
	}
	return p.Delays[attempt]
}
