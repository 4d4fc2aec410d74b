package models

import "time"

// OTA任务状态
// PENDING → SENT → DOWNLOADING → APPLIED | FAILED | TIMEOUT
const (
	OtaStatusPending     = "PENDING"
	OtaStatusSent        = "SENT"
	OtaStatusDownloading = "DOWNLOADING"
	OtaStatusApplied     = "APPLIED"
	OtaStatusFailed      = "FAILED"
	OtaStatusTimeout     = "TIMEOUT"
)

// OtaJob 单个设备的一次固件升级任务
// 里程碑时间戳各自最多写入一次，按状态推进顺序排列
type OtaJob struct {
	ID            int64      `json:"id"`
	DeviceID      int64      `json:"device_id"`
	ReleaseID     int64      `json:"release_id"`
	CommandID     int64      `json:"command_id"` // 关联的通知命令
	Status        string     `json:"status"`
	Progress      *float64   `json:"progress,omitempty"` // 0.0–1.0
	LastError     *string    `json:"last_error,omitempty"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	DownloadingAt *time.Time `json:"downloading_at,omitempty"`
	AppliedAt     *time.Time `json:"applied_at,omitempty"`
	FailedAt      *time.Time `json:"failed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsTerminal OTA任务是否已到达终态
func (j *OtaJob) IsTerminal() bool {
	switch j.Status {
	case OtaStatusApplied, OtaStatusFailed, OtaStatusTimeout:
		return true
	}
	return false
}
