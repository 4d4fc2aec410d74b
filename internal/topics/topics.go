package topics

import (
	"fmt"
	"strconv"
	"strings"
)

// 主题约定: devices/{deviceId}/{kind}
// 设备自身订阅自己的命令主题，桥接服务通过通配符订阅汇聚所有设备的上行消息
const (
	KindCommands    = "commands"
	KindCommandsAck = "commands/ack"
	KindHeartbeat   = "heartbeat"
	KindTelemetry   = "telemetry"
	KindOtaProgress = "ota/progress"

	// RegisterRequest 全局注册主题（未注册设备自报）
	RegisterRequest = "devices/register/request"
)

// Device 构建指定设备的主题
func Device(deviceID int64, kind string) string {
	return fmt.Sprintf("devices/%d/%s", deviceID, kind)
}

// Wildcard 构建通配符主题，汇聚所有设备的某一类消息
func Wildcard(kind string) string {
	return "devices/+/" + kind
}

// DeviceID 从主题中解析设备ID
// 设备ID必须是正整数，否则消息被丢弃
func DeviceID(topic string) (int64, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[0] != "devices" {
		return 0, fmt.Errorf("invalid topic format: %s", topic)
	}

	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid device id in topic %s", topic)
	}

	return id, nil
}
