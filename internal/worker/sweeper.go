package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper 周期性扫描任务
// 每个扫描器独立运行、独立取消；tick 出错只记日志，循环继续——
// 存储不可用不能永久终止扫描循环
type Sweeper struct {
	name     string
	interval time.Duration
	tick     func(ctx context.Context) error
	logger   *zap.Logger
}

// NewSweeper 创建扫描器
func NewSweeper(name string, interval time.Duration, tick func(ctx context.Context) error, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		name:     name,
		interval: interval,
		tick:     tick,
		logger:   logger,
	}
}

// Start 启动扫描循环，阻塞到上下文取消
// tick 都是以当前状态为键的集合式条件更新，幂等且可重入，
// 慢tick导致的跳拍或重叠不影响正确性
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Sweeper started",
		zap.String("sweeper", s.name),
		zap.Duration("interval", s.interval),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sweeper stopped", zap.String("sweeper", s.name))
			return
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				s.logger.Error("Sweep tick failed",
					zap.String("sweeper", s.name),
					zap.Error(err),
				)
			}
		}
	}
}
