package consumer

import (
	"context"
	"encoding/json"

	"github.com/josapratama/smarthome-backend-sub000/internal/models"

	"go.uber.org/zap"
)

// handleHeartbeat 处理设备心跳
// 单条条件更新完成鉴权与在线标记：WHERE id与deviceKey同时匹配
// 零行受影响 = 密钥不匹配或设备不存在，丢弃并告警（设备侧没有应答通道）
func (c *MQTTConsumer) handleHeartbeat(ctx context.Context, deviceID int64, payload []byte) error {
	var msg models.HeartbeatMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.logger.Warn("Dropping malformed heartbeat payload",
			zap.Int64("device_id", deviceID),
			zap.Error(err),
		)
		return nil
	}

	if msg.DeviceKey == "" {
		c.logger.Warn("Dropping heartbeat without device key",
			zap.Int64("device_id", deviceID),
		)
		return nil
	}

	ok, err := c.devices.TouchHeartbeat(ctx, deviceID, msg.DeviceKey, msg.MqttClientID)
	if err != nil {
		return err
	}

	if !ok {
		c.logger.Warn("Heartbeat rejected, key mismatch or unknown device",
			zap.Int64("device_id", deviceID),
		)
		return nil
	}

	c.logger.Debug("Heartbeat applied", zap.Int64("device_id", deviceID))
	return nil
}

// handleRegisterRequest 处理未注册设备的自报
// 仅做格式校验并记录，供运维人员后续处理；不做自动开通
func (c *MQTTConsumer) handleRegisterRequest(ctx context.Context, payload []byte) error {
	var msg models.RegisterRequestMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.logger.Warn("Dropping malformed register request", zap.Error(err))
		return nil
	}

	if msg.Mac == "" || msg.Type == "" {
		c.logger.Warn("Dropping register request with missing fields",
			zap.String("mac", msg.Mac),
			zap.String("type", msg.Type),
		)
		return nil
	}

	c.logger.Info("Device registration request received",
		zap.String("mac", msg.Mac),
		zap.String("type", msg.Type),
		zap.String("firmware", msg.Firmware),
		zap.String("ip", msg.IP),
	)
	return nil
}
