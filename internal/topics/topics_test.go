package topics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevice(t *testing.T) {
	assert.Equal(t, "devices/7/commands", Device(7, KindCommands))
	assert.Equal(t, "devices/7/commands/ack", Device(7, KindCommandsAck))
	assert.Equal(t, "devices/42/heartbeat", Device(42, KindHeartbeat))
	assert.Equal(t, "devices/42/ota/progress", Device(42, KindOtaProgress))
}

func TestWildcard(t *testing.T) {
	assert.Equal(t, "devices/+/telemetry", Wildcard(KindTelemetry))
	assert.Equal(t, "devices/+/commands/ack", Wildcard(KindCommandsAck))
}

func TestDeviceID(t *testing.T) {
	id, err := DeviceID("devices/7/commands/ack")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	id, err = DeviceID("devices/123456/telemetry")
	require.NoError(t, err)
	assert.Equal(t, int64(123456), id)
}

func TestDeviceID_Invalid(t *testing.T) {
	cases := []string{
		"devices/abc/heartbeat", // 非数字
		"devices/-5/heartbeat",  // 负数
		"devices/0/heartbeat",   // 零
		"devices/7",             // 段数不足
		"sensors/7/heartbeat",   // 前缀错误
		"",                      // 空主题
	}

	for _, topic := range cases {
		_, err := DeviceID(topic)
		assert.Error(t, err, "topic: %s", topic)
	}
}
