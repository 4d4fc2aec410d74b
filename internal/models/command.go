package models

import (
	"encoding/json"
	"time"
)

// 命令状态
// 状态只能沿 PENDING→SENT→{ACKED,FAILED,TIMEOUT} 推进，终态后不再变更
const (
	CommandStatusPending = "PENDING"
	CommandStatusSent    = "SENT"
	CommandStatusAcked   = "ACKED"
	CommandStatusFailed  = "FAILED"
	CommandStatusTimeout = "TIMEOUT"
)

// 命令来源
const (
	CommandSourceUser    = "USER"
	CommandSourceBackend = "BACKEND"
	CommandSourceAI      = "AI"
	CommandSourceAdmin   = "ADMIN"
)

// CommandTypeOtaUpdate OTA升级命令类型
const CommandTypeOtaUpdate = "OTA_UPDATE"

// Command 下发给单个设备的命令
type Command struct {
	ID            int64           `json:"id"`
	DeviceID      int64           `json:"device_id"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	Status        string          `json:"status"`
	CorrelationID string          `json:"correlation_id"` // 创建时分配，全局唯一且不可变
	RequestedBy   *int64          `json:"requested_by,omitempty"`
	Source        string          `json:"source"`
	AckedAt       *time.Time      `json:"acked_at,omitempty"`
	LastError     *string         `json:"last_error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// IsTerminal 命令是否已到达终态
func (c *Command) IsTerminal() bool {
	switch c.Status {
	case CommandStatusAcked, CommandStatusFailed, CommandStatusTimeout:
		return true
	}
	return false
}
