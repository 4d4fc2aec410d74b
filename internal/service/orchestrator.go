package service

import (
	"context"
	"errors"

	"github.com/josapratama/smarthome-backend-sub000/internal/dispatcher"
	"github.com/josapratama/smarthome-backend-sub000/internal/models"
	"github.com/josapratama/smarthome-backend-sub000/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 输入校验错误，供HTTP调用方映射为400
var (
	ErrInvalidCommandType = errors.New("invalid command type")
	ErrInvalidSource      = errors.New("invalid command source")
)

var validSources = map[string]bool{
	models.CommandSourceUser:    true,
	models.CommandSourceBackend: true,
	models.CommandSourceAI:      true,
	models.CommandSourceAdmin:   true,
}

// commandDispatcher 命令分发接口（由 dispatcher.Dispatcher 实现）
type commandDispatcher interface {
	Dispatch(ctx context.Context, commandID int64) (*dispatcher.Result, error)
}

// OtaTriggerResult 一次OTA触发的结果
type OtaTriggerResult struct {
	OtaJobID  int64  `json:"otaJobId"`
	CommandID int64  `json:"commandId"`
	Status    string `json:"status"`
}

// Orchestrator 命令与OTA编排服务
// 对外暴露命令创建、OTA触发和只读查询；写路径都以设备存在性校验开头
type Orchestrator struct {
	devices    repository.DevicesRepo
	firmware   repository.FirmwareRepo
	commands   repository.CommandsRepo
	otaJobs    repository.OtaJobsRepo
	dispatcher commandDispatcher
	logger     *zap.Logger
}

// NewOrchestrator 创建编排服务
func NewOrchestrator(
	devices repository.DevicesRepo,
	firmware repository.FirmwareRepo,
	commands repository.CommandsRepo,
	otaJobs repository.OtaJobsRepo,
	d commandDispatcher,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		devices:    devices,
		firmware:   firmware,
		commands:   commands,
		otaJobs:    otaJobs,
		dispatcher: d,
		logger:     logger,
	}
}

// CreateCommand 创建命令并立即分发
// 返回分发后的命令记录（状态反映分发结果）
func (s *Orchestrator) CreateCommand(ctx context.Context, deviceID int64, cmdType string, payload []byte, source string, requestedBy *int64) (*models.Command, error) {
	if cmdType == "" {
		return nil, ErrInvalidCommandType
	}
	if source == "" {
		source = models.CommandSourceBackend
	}
	if !validSources[source] {
		return nil, ErrInvalidSource
	}

	// 设备不存在（或已软删除）直接失败
	if _, err := s.devices.GetByID(ctx, deviceID); err != nil {
		return nil, err
	}

	correlationID := uuid.New().String()
	cmd, err := s.commands.Create(ctx, deviceID, cmdType, payload, source, requestedBy, correlationID)
	if err != nil {
		return nil, err
	}

	result, err := s.dispatcher.Dispatch(ctx, cmd.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Command created",
		zap.Int64("command_id", cmd.ID),
		zap.Int64("device_id", deviceID),
		zap.String("type", cmdType),
		zap.String("outcome", result.Outcome),
	)

	// 分发已经推进了台账状态，重新加载返回最新记录
	return s.commands.GetByID(ctx, cmd.ID)
}

// TriggerOta 触发设备固件升级
// 任务与通知命令原子创建；分发成功任务进入 SENT，失败进入 FAILED
func (s *Orchestrator) TriggerOta(ctx context.Context, deviceID, releaseID int64) (*OtaTriggerResult, error) {
	if _, err := s.devices.GetByID(ctx, deviceID); err != nil {
		return nil, err
	}

	release, err := s.firmware.GetByID(ctx, releaseID)
	if err != nil {
		return nil, err
	}

	correlationID := uuid.New().String()
	job, cmd, err := s.otaJobs.CreateWithCommand(ctx, deviceID, release, models.CommandSourceBackend, nil, correlationID)
	if err != nil {
		return nil, err
	}

	result, err := s.dispatcher.Dispatch(ctx, cmd.ID)
	if err != nil {
		return nil, err
	}

	status := job.Status
	switch result.Outcome {
	case dispatcher.OutcomeSent:
		if err := s.otaJobs.MarkSent(ctx, job.ID); err != nil {
			return nil, err
		}
		status = models.OtaStatusSent
	case dispatcher.OutcomeFailed:
		if err := s.otaJobs.MarkFailed(ctx, job.ID, result.LastError); err != nil {
			return nil, err
		}
		status = models.OtaStatusFailed
	default:
		// 新建命令理论上不会非PENDING，除非扫描器在分发前抢先超时
		s.logger.Warn("Ota dispatch skipped, command already advanced",
			zap.Int64("ota_job_id", job.ID),
			zap.Int64("command_id", cmd.ID),
		)
	}

	s.logger.Info("Ota triggered",
		zap.Int64("ota_job_id", job.ID),
		zap.Int64("command_id", cmd.ID),
		zap.Int64("device_id", deviceID),
		zap.Int64("release_id", releaseID),
		zap.String("version", release.Version),
		zap.String("status", status),
	)

	return &OtaTriggerResult{
		OtaJobID:  job.ID,
		CommandID: cmd.ID,
		Status:    status,
	}, nil
}

// GetCommand 查询单条命令
func (s *Orchestrator) GetCommand(ctx context.Context, id int64) (*models.Command, error) {
	return s.commands.GetByID(ctx, id)
}

// GetOtaJob 查询单个OTA任务
func (s *Orchestrator) GetOtaJob(ctx context.Context, id int64) (*models.OtaJob, error) {
	return s.otaJobs.GetByID(ctx, id)
}

// ListOtaJobs 列出设备的OTA任务
func (s *Orchestrator) ListOtaJobs(ctx context.Context, deviceID int64) ([]models.OtaJob, error) {
	return s.otaJobs.ListByDevice(ctx, deviceID)
}
