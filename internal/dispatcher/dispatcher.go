package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	commonmqtt "github.com/josapratama/smarthome-backend-sub000/common/mqtt"
	"github.com/josapratama/smarthome-backend-sub000/internal/models"
	"github.com/josapratama/smarthome-backend-sub000/internal/repository"
	"github.com/josapratama/smarthome-backend-sub000/internal/retry"
	"github.com/josapratama/smarthome-backend-sub000/internal/topics"

	"go.uber.org/zap"
)

// 分发结果
const (
	OutcomeSent       = "SENT"
	OutcomeFailed     = "FAILED"
	OutcomeNotPending = "COMMAND_NOT_PENDING"
)

// Publisher 消息发布接口（由 common/mqtt.Client 实现）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Result 一次分发的结果
type Result struct {
	Outcome   string
	CommandID int64
	LastError string
}

// Dispatcher 命令分发器
// 负责把 PENDING 命令发布到设备命令主题（QoS1，带有界重试），
// 并通过条件更新推进台账状态
type Dispatcher struct {
	publisher Publisher
	commands  repository.CommandsRepo
	policy    retry.Policy
	retryable func(error) bool
	qos       byte
	logger    *zap.Logger
}

// New 创建分发器
func New(publisher Publisher, commands repository.CommandsRepo, policy retry.Policy, qos byte, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		commands:  commands,
		policy:    policy,
		retryable: commonmqtt.IsTransportError,
		qos:       qos,
		logger:    logger,
	}
}

// Dispatch 分发单条命令
// 命令不处于 PENDING 时返回空操作结果（不重试，不改状态）——
// 说明命令已被其他路径推进
func (d *Dispatcher) Dispatch(ctx context.Context, commandID int64) (*Result, error) {
	cmd, err := d.commands.GetByID(ctx, commandID)
	if err != nil {
		return nil, err
	}

	if cmd.Status != models.CommandStatusPending {
		d.logger.Info("Command not pending, dispatch skipped",
			zap.Int64("command_id", commandID),
			zap.String("status", cmd.Status),
		)
		return &Result{Outcome: OutcomeNotPending, CommandID: commandID}, nil
	}

	msg := models.CommandMessage{
		CommandID: cmd.ID,
		Type:      cmd.Type,
		Payload:   cmd.Payload,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal command message: %w", err)
	}

	topic := topics.Device(cmd.DeviceID, topics.KindCommands)

	// 有界重试：仅传输层错误重试，其他错误立即失败
	// 整个重试序列一旦开始就跑到成功或耗尽，不可中途取消
	publishErr := d.policy.Do(ctx, func() error {
		return d.publisher.Publish(topic, d.qos, false, payload)
	}, d.retryable)

	if publishErr != nil {
		diag := fmt.Sprintf("publish failed: %v", publishErr)
		applied, err := d.commands.MarkFailed(ctx, commandID, diag)
		if err != nil {
			return nil, err
		}
		if !applied {
			// 并发路径已推进命令，失败结果被忽略
			d.logger.Info("Dispatch failure ignored, command already advanced",
				zap.Int64("command_id", commandID),
			)
			return &Result{Outcome: OutcomeNotPending, CommandID: commandID}, nil
		}

		d.logger.Warn("Command dispatch failed after retries",
			zap.Int64("command_id", commandID),
			zap.String("topic", topic),
			zap.Error(publishErr),
		)
		return &Result{Outcome: OutcomeFailed, CommandID: commandID, LastError: diag}, nil
	}

	applied, err := d.commands.MarkSent(ctx, commandID)
	if err != nil {
		return nil, err
	}
	if !applied {
		d.logger.Info("Dispatch success ignored, command already advanced",
			zap.Int64("command_id", commandID),
		)
		return &Result{Outcome: OutcomeNotPending, CommandID: commandID}, nil
	}

	d.logger.Info("Command dispatched",
		zap.Int64("command_id", commandID),
		zap.Int64("device_id", cmd.DeviceID),
		zap.String("topic", topic),
	)
	return &Result{Outcome: OutcomeSent, CommandID: commandID}, nil
}

// PublishSetCredentials 运维下发设备凭据
// 同时发布到全局注册主题（按MAC寻址）和设备自己的命令主题：
// 设备从未注册切换到已注册期间无论监听哪个主题都能收到
func (d *Dispatcher) PublishSetCredentials(ctx context.Context, mac string, deviceID int64, deviceKey string) error {
	msg := models.SetCredentialsMessage{
		Type:      "SET_CREDENTIALS",
		Mac:       mac,
		DeviceID:  deviceID,
		DeviceKey: deviceKey,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials message: %w", err)
	}

	if err := d.publisher.Publish(topics.RegisterRequest, d.qos, false, payload); err != nil {
		return fmt.Errorf("failed to publish credentials to register topic: %w", err)
	}
	if err := d.publisher.Publish(topics.Device(deviceID, topics.KindCommands), d.qos, false, payload); err != nil {
		return fmt.Errorf("failed to publish credentials to command topic: %w", err)
	}

	d.logger.Info("Credentials published",
		zap.String("mac", mac),
		zap.Int64("device_id", deviceID),
	)
	return nil
}
