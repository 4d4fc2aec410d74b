package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/josapratama/smarthome-backend-sub000/common/database"
	commonmqtt "github.com/josapratama/smarthome-backend-sub000/common/mqtt"
	commonredis "github.com/josapratama/smarthome-backend-sub000/common/redis"
	"github.com/josapratama/smarthome-backend-sub000/internal/config"
	"github.com/josapratama/smarthome-backend-sub000/internal/consumer"
	"github.com/josapratama/smarthome-backend-sub000/internal/dispatcher"
	"github.com/josapratama/smarthome-backend-sub000/internal/notify"
	"github.com/josapratama/smarthome-backend-sub000/internal/repository"
	"github.com/josapratama/smarthome-backend-sub000/internal/retry"
	"github.com/josapratama/smarthome-backend-sub000/internal/worker"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Bridge 桥接服务（整合各层）
// 持有数据库/Redis/MQTT连接，组装消费者、分发器、编排服务和三个扫描器
type Bridge struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *commonmqtt.Client
	logger      *zap.Logger

	// 各层组件
	dispatcher   *dispatcher.Dispatcher
	consumer     *consumer.MQTTConsumer
	orchestrator *Orchestrator
	sweepers     []*worker.Sweeper

	wg sync.WaitGroup
}

// NewBridge 创建桥接服务
func NewBridge(cfg *config.Config, logger *zap.Logger) (*Bridge, error) {
	// 1. 连接数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := commonredis.NewRedisClient(&cfg.Redis)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 连接 MQTT Broker
	mqttClient, err := commonmqtt.NewClient(&cfg.MQTT, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect mqtt broker: %w", err)
	}

	// 4. 创建 Repository 层
	devicesRepo := repository.NewPostgresDevicesRepo(db, logger)
	firmwareRepo := repository.NewPostgresFirmwareRepo(db)
	commandsRepo := repository.NewPostgresCommandsRepo(db, logger)
	otaJobsRepo := repository.NewPostgresOtaJobsRepo(db, logger)
	readingsRepo := repository.NewPostgresReadingsRepo(db)
	alarmsRepo := repository.NewPostgresAlarmsRepo(db, logger)

	// 5. 创建分发器与编排服务
	policy := retry.Policy{
		Retries: cfg.Dispatch.RetryCount,
		Delays:  cfg.Dispatch.BackoffDelays,
	}
	d := dispatcher.New(mqttClient, commandsRepo, policy, cfg.MQTT.QoS, logger)
	orchestrator := NewOrchestrator(devicesRepo, firmwareRepo, commandsRepo, otaJobsRepo, d, logger)

	// 6. 创建消费者
	notifier := notify.NewWebhookNotifier(cfg.Alarm.WebhookURL, logger)
	c := consumer.NewMQTTConsumer(
		cfg, mqttClient, redisClient,
		devicesRepo, commandsRepo, otaJobsRepo,
		readingsRepo, alarmsRepo, notifier,
		logger,
	)

	// 7. 创建扫描器
	sweepers := []*worker.Sweeper{
		worker.NewCommandSweeper(commandsRepo, cfg.Sweep.AckTimeout, cfg.Sweep.CommandInterval, logger),
		worker.NewOfflineSweeper(devicesRepo, cfg.Sweep.OfflineThreshold, cfg.Sweep.OfflineInterval, logger),
		worker.NewOtaSweeper(otaJobsRepo, commandsRepo, cfg.Sweep.OtaTimeout, cfg.Sweep.OtaInterval, logger),
	}

	return &Bridge{
		config:       cfg,
		db:           db,
		redisClient:  redisClient,
		mqttClient:   mqttClient,
		logger:       logger,
		dispatcher:   d,
		consumer:     c,
		orchestrator: orchestrator,
		sweepers:     sweepers,
	}, nil
}

// Orchestrator 返回编排服务，供HTTP路由层调用
func (b *Bridge) Orchestrator() *Orchestrator {
	return b.orchestrator
}

// Start 启动消费者和扫描器，阻塞到上下文取消
func (b *Bridge) Start(ctx context.Context) error {
	b.logger.Info("Starting bridge service")

	for _, s := range b.sweepers {
		s := s
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			s.Start(ctx)
		}()
	}

	// 消费者阻塞到上下文取消
	if err := b.consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	b.wg.Wait()
	return nil
}

// Stop 停止服务并释放连接
func (b *Bridge) Stop() error {
	b.logger.Info("Stopping bridge service")

	if err := b.consumer.Stop(context.Background()); err != nil {
		b.logger.Error("Failed to stop consumer",
			zap.Error(err),
		)
	}

	b.mqttClient.Disconnect()

	if err := b.redisClient.Close(); err != nil {
		b.logger.Error("Failed to close redis",
			zap.Error(err),
		)
	}

	if err := b.db.Close(); err != nil {
		b.logger.Error("Failed to close database",
			zap.Error(err),
		)
	}

	return nil
}
