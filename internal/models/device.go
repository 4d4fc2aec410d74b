package models

import "time"

// Device 设备目录记录
// 在线状态与最后在线时间由认证过的上行消息更新，由离线扫描器清除
type Device struct {
	ID              int64      `json:"id"`
	DeviceKey       string     `json:"-"` // 设备密钥，不对外序列化
	Name            string     `json:"name"`
	Type            string     `json:"type"`
	Mac             string     `json:"mac"`
	FirmwareVersion string     `json:"firmware_version"`
	IsOnline        bool       `json:"is_online"`
	LastSeenAt      *time.Time `json:"last_seen_at,omitempty"`
	MqttClientID    *string    `json:"mqtt_client_id,omitempty"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"` // 软删除标记
}

// FirmwareRelease 固件版本元数据
type FirmwareRelease struct {
	ID          int64      `json:"id"`
	Version     string     `json:"version"`
	Checksum    string     `json:"checksum"`
	SizeBytes   int64      `json:"size_bytes"`
	DownloadURL string     `json:"download_url"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}
