package worker

import (
	"context"
	"time"

	"github.com/josapratama/smarthome-backend-sub000/internal/repository"

	"go.uber.org/zap"
)

// NewCommandSweeper 命令超时扫描器
// 将超过确认阈值仍未确认的 SENT 命令批量置为 TIMEOUT
// 与确认路径的竞争由守卫裁决：确认处理器允许 TIMEOUT→ACKED/FAILED，
// 因此迟到的确认在扫描之后依然能被应用
func NewCommandSweeper(commands repository.CommandsRepo, ackTimeout, interval time.Duration, logger *zap.Logger) *Sweeper {
	tick := func(ctx context.Context) error {
		cutoff := time.Now().Add(-ackTimeout)
		affected, err := commands.SweepTimeouts(ctx, cutoff)
		if err != nil {
			return err
		}
		if affected > 0 {
			logger.Info("Commands timed out",
				zap.Int64("count", affected),
			)
		}
		return nil
	}

	return NewSweeper("command-timeout", interval, tick, logger)
}

// NewOfflineSweeper 设备离线扫描器
// 时间比较在存储侧完成，避免桥接进程与存储之间的时钟偏差
func NewOfflineSweeper(devices repository.DevicesRepo, threshold, interval time.Duration, logger *zap.Logger) *Sweeper {
	tick := func(ctx context.Context) error {
		affected, err := devices.SweepOffline(ctx, threshold)
		if err != nil {
			return err
		}
		if affected > 0 {
			logger.Info("Devices marked offline",
				zap.Int64("count", affected),
			)
		}
		return nil
	}

	return NewSweeper("device-offline", interval, tick, logger)
}

// NewOtaSweeper OTA超时扫描器
// 卡在 SENT/DOWNLOADING 超过阈值的任务置为 TIMEOUT，
// 并对仍处于 PENDING/SENT 的关联命令级联同样的超时
func NewOtaSweeper(otaJobs repository.OtaJobsRepo, commands repository.CommandsRepo, otaTimeout, interval time.Duration, logger *zap.Logger) *Sweeper {
	tick := func(ctx context.Context) error {
		cutoff := time.Now().Add(-otaTimeout)
		commandIDs, err := otaJobs.SweepTimeouts(ctx, cutoff)
		if err != nil {
			return err
		}

		for _, commandID := range commandIDs {
			applied, err := commands.CascadeTimeout(ctx, commandID)
			if err != nil {
				return err
			}
			if !applied {
				// 命令已终态，级联被忽略
				logger.Info("Cascade timeout ignored, command already terminal",
					zap.Int64("command_id", commandID),
				)
			}
		}

		if len(commandIDs) > 0 {
			logger.Info("Ota jobs timed out",
				zap.Int("count", len(commandIDs)),
			)
		}
		return nil
	}

	return NewSweeper("ota-timeout", interval, tick, logger)
}
