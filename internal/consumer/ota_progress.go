package consumer

import (
	"context"
	"encoding/json"

	"github.com/josapratama/smarthome-backend-sub000/internal/models"

	"go.uber.org/zap"
)

// handleOtaProgress 处理设备上报的升级进度
// 进度更新直接按任务ID写入，最后写入者生效（设备侧进度流实践中
// 单任务内有序）；DOWNLOADING 的越界进度被忽略而非截断
func (c *MQTTConsumer) handleOtaProgress(ctx context.Context, deviceID int64, payload []byte) error {
	var msg models.OtaProgressMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.logger.Warn("Dropping malformed ota progress payload",
			zap.Int64("device_id", deviceID),
			zap.Error(err),
		)
		return nil
	}

	if msg.OtaJobID <= 0 {
		c.logger.Warn("Dropping ota progress without job id",
			zap.Int64("device_id", deviceID),
		)
		return nil
	}

	switch msg.Status {
	case models.OtaStatusDownloading:
		progress := msg.Progress
		if progress != nil && (*progress < 0 || *progress > 1) {
			// 越界进度：字段不写入，状态迁移照常
			c.logger.Warn("Ignoring out-of-range ota progress value",
				zap.Int64("ota_job_id", msg.OtaJobID),
				zap.Float64("progress", *progress),
			)
			progress = nil
		}
		if err := c.otaJobs.SetDownloading(ctx, msg.OtaJobID, progress); err != nil {
			return err
		}

	case models.OtaStatusApplied:
		if err := c.otaJobs.SetApplied(ctx, msg.OtaJobID); err != nil {
			return err
		}

	case models.OtaStatusFailed:
		if err := c.otaJobs.SetFailed(ctx, msg.OtaJobID, msg.Error); err != nil {
			return err
		}

	default:
		c.logger.Warn("Dropping ota progress with unknown status",
			zap.Int64("ota_job_id", msg.OtaJobID),
			zap.String("status", msg.Status),
		)
		return nil
	}

	c.logger.Info("Ota progress applied",
		zap.Int64("ota_job_id", msg.OtaJobID),
		zap.Int64("device_id", deviceID),
		zap.String("status", msg.Status),
	)
	return nil
}
