package consumer

import (
	"context"
	"fmt"

	commonmqtt "github.com/josapratama/smarthome-backend-sub000/common/mqtt"
	"github.com/josapratama/smarthome-backend-sub000/internal/config"
	"github.com/josapratama/smarthome-backend-sub000/internal/models"
	"github.com/josapratama/smarthome-backend-sub000/internal/repository"
	"github.com/josapratama/smarthome-backend-sub000/internal/topics"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Subscriber MQTT订阅接口（由 common/mqtt.Client 实现）
type Subscriber interface {
	Subscribe(topic string, qos byte, handler commonmqtt.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// Notifier 报警通知接口（由 notify.WebhookNotifier 实现）
type Notifier interface {
	Notify(ctx context.Context, alarm *models.Alarm)
}

// handlerFunc 设备上行消息处理函数
// 设备消息是不可信输入：解析/校验/鉴权失败一律静默丢弃（仅记日志），
// 返回 error 仅用于存储层等意外故障
type handlerFunc func(ctx context.Context, deviceID int64, payload []byte) error

// MQTTConsumer 设备上行消息消费者
// 订阅建立在构造后的 Start 中恰好执行一次（无运行时"已订阅"标志）
type MQTTConsumer struct {
	config      *config.Config
	subscriber  Subscriber
	redisClient *redis.Client
	devices     repository.DevicesRepo
	commands    repository.CommandsRepo
	otaJobs     repository.OtaJobsRepo
	readings    repository.ReadingsRepo
	alarms      repository.AlarmsRepo
	notifier    Notifier
	logger      *zap.Logger

	// 按主题类型索引的分发表，每个通配符订阅对应一个入口
	handlers map[string]handlerFunc
}

// NewMQTTConsumer 创建消费者
func NewMQTTConsumer(
	cfg *config.Config,
	subscriber Subscriber,
	redisClient *redis.Client,
	devices repository.DevicesRepo,
	commands repository.CommandsRepo,
	otaJobs repository.OtaJobsRepo,
	readings repository.ReadingsRepo,
	alarms repository.AlarmsRepo,
	notifier Notifier,
	logger *zap.Logger,
) *MQTTConsumer {
	c := &MQTTConsumer{
		config:      cfg,
		subscriber:  subscriber,
		redisClient: redisClient,
		devices:     devices,
		commands:    commands,
		otaJobs:     otaJobs,
		readings:    readings,
		alarms:      alarms,
		notifier:    notifier,
		logger:      logger,
	}

	c.handlers = map[string]handlerFunc{
		topics.KindCommandsAck: c.handleAck,
		topics.KindHeartbeat:   c.handleHeartbeat,
		topics.KindTelemetry:   c.handleTelemetry,
		topics.KindOtaProgress: c.handleOtaProgress,
	}

	return c
}

// Start 建立所有订阅并阻塞到上下文取消
func (c *MQTTConsumer) Start(ctx context.Context) error {
	qos := c.config.MQTT.QoS

	for kind := range c.handlers {
		kind := kind
		topic := topics.Wildcard(kind)
		if err := c.subscriber.Subscribe(topic, qos, func(t string, payload []byte) error {
			return c.route(ctx, kind, t, payload)
		}); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
	}

	// 全局注册主题没有设备ID段，单独处理
	if err := c.subscriber.Subscribe(topics.RegisterRequest, qos, func(t string, payload []byte) error {
		return c.handleRegisterRequest(ctx, payload)
	}); err != nil {
		return fmt.Errorf("failed to subscribe to register topic: %w", err)
	}

	c.logger.Info("MQTT consumer started",
		zap.Int("subscriptions", len(c.handlers)+1),
	)

	<-ctx.Done()
	return nil
}

// Stop 取消所有订阅
func (c *MQTTConsumer) Stop(ctx context.Context) error {
	subs := []string{topics.RegisterRequest}
	for kind := range c.handlers {
		subs = append(subs, topics.Wildcard(kind))
	}

	if err := c.subscriber.Unsubscribe(subs...); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}

	c.logger.Info("MQTT consumer stopped")
	return nil
}

// route 解析设备ID并分发到对应处理函数
// 设备ID必须是正整数，解析失败直接丢弃
func (c *MQTTConsumer) route(ctx context.Context, kind, topic string, payload []byte) error {
	deviceID, err := topics.DeviceID(topic)
	if err != nil {
		c.logger.Warn("Dropping message with unparseable device id",
			zap.String("topic", topic),
		)
		return nil
	}

	handler, ok := c.handlers[kind]
	if !ok {
		c.logger.Warn("No handler for topic kind", zap.String("kind", kind))
		return nil
	}

	return handler(ctx, deviceID, payload)
}
