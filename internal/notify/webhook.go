package notify

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/josapratama/smarthome-backend-sub000/internal/models"
)

// alarmPayload Webhook 推送的报警消息体
type alarmPayload struct {
	AlarmID     int64    `json:"alarmId"`
	DeviceID    int64    `json:"deviceId"`
	Type        string   `json:"type"`
	Source      string   `json:"source"`
	Value       *float64 `json:"value,omitempty"`
	TriggeredAt string   `json:"triggeredAt"`
}

// WebhookNotifier 报警 Webhook 通知器
// 通知是尽力而为：推送失败只记日志，不影响遥测入库路径
type WebhookNotifier struct {
	httpClient *resty.Client
	url        string
	logger     *zap.Logger
}

// NewWebhookNotifier 创建 Webhook 通知器
// url 为空时通知被禁用，Notify 直接返回
func NewWebhookNotifier(url string, logger *zap.Logger) *WebhookNotifier {
	client := resty.New().
		SetTimeout(5 * time.Second). // 报警推送不能拖慢消费循环
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetHeader("Content-Type", "application/json")

	return &WebhookNotifier{
		httpClient: client,
		url:        url,
		logger:     logger,
	}
}

// Notify 推送新建报警
func (n *WebhookNotifier) Notify(ctx context.Context, alarm *models.Alarm) {
	if n.url == "" {
		return
	}

	payload := alarmPayload{
		AlarmID:     alarm.ID,
		DeviceID:    alarm.DeviceID,
		Type:        alarm.Type,
		Source:      alarm.Source,
		Value:       alarm.Value,
		TriggeredAt: alarm.TriggeredAt.UTC().Format(time.RFC3339),
	}

	resp, err := n.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		Post(n.url)

	if err != nil {
		n.logger.Error("Alarm webhook call failed",
			zap.Int64("alarm_id", alarm.ID),
			zap.Int64("device_id", alarm.DeviceID),
			zap.String("type", alarm.Type),
			zap.Error(err),
		)
		return
	}

	if resp.IsError() {
		n.logger.Error("Alarm webhook returned error status",
			zap.Int64("alarm_id", alarm.ID),
			zap.Int("status_code", resp.StatusCode()),
		)
		return
	}

	n.logger.Info("Alarm webhook delivered",
		zap.Int64("alarm_id", alarm.ID),
		zap.Int64("device_id", alarm.DeviceID),
		zap.String("type", alarm.Type),
	)
}
