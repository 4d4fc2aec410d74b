package models

import "encoding/json"

// MQTT 消息格式定义
// 所有设备上行消息都是不可信输入：解析或校验失败时静默丢弃（仅记日志），
// 绝不向消息路径抛出异常

// CommandMessage 下发到 devices/{id}/commands 的命令消息
type CommandMessage struct {
	CommandID int64           `json:"commandId"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// AckMessage 设备在 devices/{id}/commands/ack 上报的命令确认
type AckMessage struct {
	CommandID int64  `json:"commandId"`
	Status    string `json:"status"` // ACKED | FAILED
	Error     string `json:"error,omitempty"`
}

// HeartbeatMessage 设备心跳
type HeartbeatMessage struct {
	DeviceKey    string `json:"deviceKey"`
	MqttClientID string `json:"mqttClientId,omitempty"`
}

// TelemetryData 遥测数据体
type TelemetryData struct {
	Current  *float64 `json:"current,omitempty"`
	GasPpm   *float64 `json:"gasPpm,omitempty"`
	Flame    *bool    `json:"flame,omitempty"`
	BinLevel *float64 `json:"binLevel,omitempty"`
}

// TelemetryMessage 设备遥测消息
type TelemetryMessage struct {
	DeviceKey string          `json:"deviceKey"`
	Ts        *int64          `json:"ts,omitempty"` // 设备侧时间戳（Unix秒），可选
	Data      TelemetryData   `json:"data"`
	Raw       json.RawMessage `json:"-"` // 原始报文，入库时保留
}

// OtaProgressMessage 设备在 devices/{id}/ota/progress 上报的升级进度
type OtaProgressMessage struct {
	OtaJobID int64    `json:"otaJobId"`
	Status   string   `json:"status"` // DOWNLOADING | APPLIED | FAILED
	Progress *float64 `json:"progress,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// OtaUpdatePayload OTA_UPDATE 命令的载荷
// 设备凭此自行下载固件并校验完整性
type OtaUpdatePayload struct {
	OtaJobID    int64  `json:"otaJobId"`
	ReleaseID   int64  `json:"releaseId"`
	Version     string `json:"version"`
	Checksum    string `json:"checksum"`
	SizeBytes   int64  `json:"sizeBytes"`
	DownloadURL string `json:"downloadUrl"`
}

// RegisterRequestMessage 未注册设备在 devices/register/request 上的自报消息
type RegisterRequestMessage struct {
	Mac      string `json:"mac"`
	Type     string `json:"type"`
	Firmware string `json:"firmware"`
	IP       string `json:"ip"`
}

// SetCredentialsMessage 运维下发的设备凭据
// 同时发布到注册主题（按MAC寻址）和设备自己的命令主题，
// 保证设备无论监听哪个主题都能收到
type SetCredentialsMessage struct {
	Type      string `json:"type"` // 固定为 "SET_CREDENTIALS"
	Mac       string `json:"mac"`
	DeviceID  int64  `json:"deviceId"`
	DeviceKey string `json:"deviceKey"`
}
