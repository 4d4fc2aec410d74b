package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	rediscommon "github.com/josapratama/smarthome-backend-sub000/common/redis"
	"github.com/josapratama/smarthome-backend-sub000/internal/models"
	"github.com/josapratama/smarthome-backend-sub000/internal/repository"

	"go.uber.org/zap"
)

// handleTelemetry 处理设备遥测
// 与心跳不同，遥测需要先显式加载设备记录：读数要与设备关联入库，
// 密钥比对发生在加载后的记录上
func (c *MQTTConsumer) handleTelemetry(ctx context.Context, deviceID int64, payload []byte) error {
	var msg models.TelemetryMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.logger.Warn("Dropping malformed telemetry payload",
			zap.Int64("device_id", deviceID),
			zap.Error(err),
		)
		return nil
	}

	device, err := c.devices.GetByID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, repository.ErrDeviceNotFound) {
			c.logger.Warn("Dropping telemetry for unknown device",
				zap.Int64("device_id", deviceID),
			)
			return nil
		}
		return err
	}

	if msg.DeviceKey == "" || msg.DeviceKey != device.DeviceKey {
		c.logger.Warn("Dropping telemetry, device key mismatch",
			zap.Int64("device_id", deviceID),
		)
		return nil
	}

	// 鉴权通过后刷新在线状态
	if err := c.devices.MarkOnline(ctx, deviceID); err != nil {
		return err
	}

	recordedAt := time.Now()
	if msg.Ts != nil && *msg.Ts > 0 {
		recordedAt = time.Unix(*msg.Ts, 0)
	}

	reading := &models.SensorReading{
		DeviceID:   deviceID,
		Current:    msg.Data.Current,
		GasPpm:     msg.Data.GasPpm,
		Flame:      msg.Data.Flame,
		BinLevel:   msg.Data.BinLevel,
		RecordedAt: recordedAt,
		Raw:        json.RawMessage(payload),
	}
	if _, err := c.readings.Insert(ctx, reading); err != nil {
		return err
	}

	// 标准化读数下发到 Redis Streams 供下游消费
	// 流发布失败不阻断报警评估，只记日志
	c.publishReadingToStream(ctx, device, reading)

	return c.evaluateAlarms(ctx, deviceID, &msg.Data)
}

func (c *MQTTConsumer) publishReadingToStream(ctx context.Context, device *models.Device, reading *models.SensorReading) {
	if c.redisClient == nil {
		return
	}

	standardized := map[string]interface{}{
		"device_id":   device.ID,
		"device_type": device.Type,
		"reading":     reading,
		"timestamp":   reading.RecordedAt.Unix(),
	}

	stream := c.config.Telemetry.Stream
	streamID, err := rediscommon.PublishJSONToStream(ctx, c.redisClient, stream, standardized)
	if err != nil {
		c.logger.Error("Failed to publish telemetry to Redis Streams",
			zap.String("stream", stream),
			zap.Error(err),
		)
		return
	}

	c.logger.Debug("Published telemetry to Redis Streams",
		zap.Int64("device_id", device.ID),
		zap.String("stream_id", streamID),
	)
}

// alarmCandidate 报警候选
type alarmCandidate struct {
	alarmType string
	value     *float64
}

// evaluateAlarms 按固定阈值评估报警候选并应用去重窗口
// 窗口内已有同 (device, type, source) 报警时跳过，记为忽略
func (c *MQTTConsumer) evaluateAlarms(ctx context.Context, deviceID int64, data *models.TelemetryData) error {
	var candidates []alarmCandidate

	if data.GasPpm != nil && *data.GasPpm > c.config.Alarm.GasPpmThreshold {
		candidates = append(candidates, alarmCandidate{models.AlarmTypeGasLeak, data.GasPpm})
	}
	if data.Flame != nil && *data.Flame {
		candidates = append(candidates, alarmCandidate{models.AlarmTypeFlame, nil})
	}
	if data.BinLevel != nil && *data.BinLevel > c.config.Alarm.BinLevelThreshold {
		candidates = append(candidates, alarmCandidate{models.AlarmTypeBinFull, data.BinLevel})
	}
	// 电流阈值为可选配置，0 表示禁用
	if c.config.Alarm.CurrentThreshold > 0 && data.Current != nil && *data.Current > c.config.Alarm.CurrentThreshold {
		candidates = append(candidates, alarmCandidate{models.AlarmTypeOvercurrent, data.Current})
	}

	for _, candidate := range candidates {
		exists, err := c.alarms.ExistsRecent(ctx, deviceID, candidate.alarmType, models.AlarmSourceTelemetry, c.config.Alarm.DedupWindow)
		if err != nil {
			return err
		}
		if exists {
			c.logger.Info("Alarm ignored, duplicate within dedup window",
				zap.Int64("device_id", deviceID),
				zap.String("type", candidate.alarmType),
			)
			continue
		}

		alarm := &models.Alarm{
			DeviceID:    deviceID,
			Type:        candidate.alarmType,
			Source:      models.AlarmSourceTelemetry,
			Value:       candidate.value,
			TriggeredAt: time.Now(),
		}
		id, err := c.alarms.Create(ctx, alarm)
		if err != nil {
			return err
		}
		alarm.ID = id

		c.logger.Warn("Alarm created",
			zap.Int64("alarm_id", id),
			zap.Int64("device_id", deviceID),
			zap.String("type", candidate.alarmType),
		)

		if c.notifier != nil {
			c.notifier.Notify(ctx, alarm)
		}
	}

	return nil
}
