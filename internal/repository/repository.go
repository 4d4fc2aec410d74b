package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/josapratama/smarthome-backend-sub000/internal/models"
)

// 类型化错误，供HTTP调用方映射为404/400
var (
	ErrDeviceNotFound          = errors.New("device not found")
	ErrFirmwareReleaseNotFound = errors.New("firmware release not found")
	ErrCommandNotFound         = errors.New("command not found")
	ErrOtaJobNotFound          = errors.New("ota job not found")
)

// CommandsRepo 命令台账
// 所有状态迁移都通过条件更新实现，返回值 bool 表示守卫条件是否命中
// （零行受影响 = 过期/重复写入，调用方记日志忽略，不视为错误）
type CommandsRepo interface {
	Create(ctx context.Context, deviceID int64, cmdType string, payload json.RawMessage, source string, requestedBy *int64, correlationID string) (*models.Command, error)
	GetByID(ctx context.Context, id int64) (*models.Command, error)

	// MarkSent 仅当命令仍为 PENDING 时迁移到 SENT
	MarkSent(ctx context.Context, id int64) (bool, error)
	// MarkFailed 仅当命令仍为 PENDING 时迁移到 FAILED 并记录诊断信息
	MarkFailed(ctx context.Context, id int64, diag string) (bool, error)
	// ApplyAck 仅当命令为 SENT 或 TIMEOUT 时应用确认结果
	// （迟到的确认可以把 TIMEOUT 救回 ACKED/FAILED；对已终态命令是空操作）
	ApplyAck(ctx context.Context, id int64, status string, ackErr string) (bool, error)

	// SweepTimeouts 将早于 cutoff 且未确认的 SENT 命令批量置为 TIMEOUT
	SweepTimeouts(ctx context.Context, cutoff time.Time) (int64, error)
	// CascadeTimeout 仅当命令仍为 PENDING/SENT 时置为 TIMEOUT（OTA级联用）
	CascadeTimeout(ctx context.Context, id int64) (bool, error)
}

// OtaJobsRepo OTA任务台账
type OtaJobsRepo interface {
	// CreateWithCommand 在同一事务中创建 PENDING 任务和关联的 OTA_UPDATE 命令
	// 设备按 otaJobId 上报进度，任务ID必须出现在命令载荷里，
	// 因此两条插入必须原子完成
	CreateWithCommand(ctx context.Context, deviceID int64, release *models.FirmwareRelease, source string, requestedBy *int64, correlationID string) (*models.OtaJob, *models.Command, error)
	GetByID(ctx context.Context, id int64) (*models.OtaJob, error)
	ListByDevice(ctx context.Context, deviceID int64) ([]models.OtaJob, error)

	MarkSent(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, otaErr string) error

	// 进度更新直接按 id 写入，最后写入者生效
	// 如需更强的顺序保证，可在 WHERE 中加入 status NOT IN (终态) 守卫
	SetDownloading(ctx context.Context, id int64, progress *float64) error
	SetApplied(ctx context.Context, id int64) error
	SetFailed(ctx context.Context, id int64, otaErr string) error

	// SweepTimeouts 将早于 cutoff 仍停留在 SENT/DOWNLOADING 的任务置为 TIMEOUT，
	// 返回受影响任务的关联命令ID用于级联
	SweepTimeouts(ctx context.Context, cutoff time.Time) ([]int64, error)
}

// DevicesRepo 设备目录
type DevicesRepo interface {
	GetByID(ctx context.Context, id int64) (*models.Device, error)

	// TouchHeartbeat 单条条件更新：id与deviceKey同时匹配才会置为在线
	// 零行受影响表示密钥不匹配或设备不存在
	TouchHeartbeat(ctx context.Context, id int64, deviceKey string, mqttClientID string) (bool, error)
	// MarkOnline 遥测路径在设备已校验后直接置为在线
	MarkOnline(ctx context.Context, id int64) error
	// SweepOffline 使用数据库侧时间运算清除超过阈值未上线的在线标记
	SweepOffline(ctx context.Context, threshold time.Duration) (int64, error)
}

// FirmwareRepo 固件仓库
type FirmwareRepo interface {
	GetByID(ctx context.Context, id int64) (*models.FirmwareRelease, error)
}

// AlarmsRepo 报警仓库
type AlarmsRepo interface {
	// ExistsRecent 判断去重窗口内是否已有同 (device, type, source) 的报警
	ExistsRecent(ctx context.Context, deviceID int64, alarmType, source string, window time.Duration) (bool, error)
	Create(ctx context.Context, alarm *models.Alarm) (int64, error)
}

// ReadingsRepo 遥测读数仓库
type ReadingsRepo interface {
	Insert(ctx context.Context, reading *models.SensorReading) (int64, error)
}
