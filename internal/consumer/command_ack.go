package consumer

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/josapratama/smarthome-backend-sub000/internal/models"
	"github.com/josapratama/smarthome-backend-sub000/internal/repository"

	"go.uber.org/zap"
)

// handleAck 处理命令确认
// 确认路径是幂等性的关键：守卫 status IN (SENT, TIMEOUT) 使迟到的确认
// 可以覆盖超时判定，而对已终态命令的重复确认是零行空操作
func (c *MQTTConsumer) handleAck(ctx context.Context, deviceID int64, payload []byte) error {
	var msg models.AckMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.logger.Warn("Dropping malformed ack payload",
			zap.Int64("device_id", deviceID),
			zap.Error(err),
		)
		return nil
	}

	if msg.CommandID <= 0 ||
		(msg.Status != models.CommandStatusAcked && msg.Status != models.CommandStatusFailed) {
		c.logger.Warn("Dropping ack with invalid fields",
			zap.Int64("device_id", deviceID),
			zap.Int64("command_id", msg.CommandID),
			zap.String("status", msg.Status),
		)
		return nil
	}

	cmd, err := c.commands.GetByID(ctx, msg.CommandID)
	if err != nil {
		if errors.Is(err, repository.ErrCommandNotFound) {
			c.logger.Warn("Dropping ack for unknown command",
				zap.Int64("device_id", deviceID),
				zap.Int64("command_id", msg.CommandID),
			)
			return nil
		}
		return err
	}

	// 防御伪造确认：主题中的设备ID必须与命令记录一致
	if cmd.DeviceID != deviceID {
		c.logger.Warn("Dropping ack with device mismatch",
			zap.Int64("topic_device_id", deviceID),
			zap.Int64("command_device_id", cmd.DeviceID),
			zap.Int64("command_id", msg.CommandID),
		)
		return nil
	}

	applied, err := c.commands.ApplyAck(ctx, msg.CommandID, msg.Status, msg.Error)
	if err != nil {
		return err
	}

	if !applied {
		// 命令已终态，过期/重复确认被忽略
		c.logger.Info("Ack ignored, command already terminal",
			zap.Int64("command_id", msg.CommandID),
			zap.String("ack_status", msg.Status),
		)
		return nil
	}

	c.logger.Info("Command ack applied",
		zap.Int64("command_id", msg.CommandID),
		zap.Int64("device_id", deviceID),
		zap.String("status", msg.Status),
	)
	return nil
}
