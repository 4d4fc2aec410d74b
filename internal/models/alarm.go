package models

import (
	"encoding/json"
	"time"
)

// 报警类型
const (
	AlarmTypeGasLeak     = "GAS_LEAK"
	AlarmTypeFlame       = "FLAME"
	AlarmTypeBinFull     = "BIN_FULL"
	AlarmTypeOvercurrent = "OVERCURRENT"
)

// AlarmSourceTelemetry 遥测触发的报警来源
const AlarmSourceTelemetry = "TELEMETRY"

// Alarm 报警记录
// 同一 (device_id, type, source) 在去重窗口内只会产生一条记录
type Alarm struct {
	ID          int64     `json:"id"`
	DeviceID    int64     `json:"device_id"`
	Type        string    `json:"type"`
	Source      string    `json:"source"`
	Value       *float64  `json:"value,omitempty"` // 触发值（如气体浓度）
	TriggeredAt time.Time `json:"triggered_at"`
}

// SensorReading 遥测读数
type SensorReading struct {
	ID         int64           `json:"id"`
	DeviceID   int64           `json:"device_id"`
	Current    *float64        `json:"current,omitempty"`
	GasPpm     *float64        `json:"gas_ppm,omitempty"`
	Flame      *bool           `json:"flame,omitempty"`
	BinLevel   *float64        `json:"bin_level,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
	Raw        json.RawMessage `json:"raw,omitempty"` // 原始上报数据
}
