package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	// 清除环境变量
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// 验证默认值
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "smarthome", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "smarthome-bridge", cfg.MQTT.ClientID)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)

	assert.Equal(t, 3, cfg.Dispatch.RetryCount)
	assert.Equal(t, []time.Duration{
		500 * time.Millisecond,
		1000 * time.Millisecond,
		2000 * time.Millisecond,
	}, cfg.Dispatch.BackoffDelays)

	assert.Equal(t, 5*time.Second, cfg.Sweep.AckTimeout)
	assert.Equal(t, time.Second, cfg.Sweep.CommandInterval)
	assert.Equal(t, 5*time.Second, cfg.Sweep.OfflineThreshold)
	assert.Equal(t, time.Second, cfg.Sweep.OfflineInterval)
	assert.Equal(t, 10*time.Minute, cfg.Sweep.OtaTimeout)
	assert.Equal(t, 30*time.Second, cfg.Sweep.OtaInterval)

	assert.Equal(t, 60*time.Second, cfg.Alarm.DedupWindow)
	assert.Equal(t, float64(500), cfg.Alarm.GasPpmThreshold)
	assert.Equal(t, float64(80), cfg.Alarm.BinLevelThreshold)
	assert.Equal(t, float64(0), cfg.Alarm.CurrentThreshold)
	assert.Equal(t, "", cfg.Alarm.WebhookURL)

	assert.Equal(t, "telemetry:data:stream", cfg.Telemetry.Stream)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	// 设置环境变量
	os.Setenv("DB_HOST", "test-host")
	os.Setenv("DB_NAME", "test-db")
	os.Setenv("MQTT_BROKER", "tcp://test-broker:1883")
	os.Setenv("ACK_TIMEOUT_MS", "2500")
	os.Setenv("PUBLISH_RETRY_COUNT", "5")
	os.Setenv("PUBLISH_BACKOFF_1_MS", "100")
	os.Setenv("GAS_PPM_THRESHOLD", "600.5")
	os.Setenv("ALARM_WEBHOOK_URL", "http://alerts.example.com/hook")
	os.Setenv("LOG_LEVEL", "debug")
	defer os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, "test-db", cfg.Database.Database)
	assert.Equal(t, "tcp://test-broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, 2500*time.Millisecond, cfg.Sweep.AckTimeout)
	assert.Equal(t, 5, cfg.Dispatch.RetryCount)
	assert.Equal(t, 100*time.Millisecond, cfg.Dispatch.BackoffDelays[0])
	assert.Equal(t, 1000*time.Millisecond, cfg.Dispatch.BackoffDelays[1])
	assert.Equal(t, 600.5, cfg.Alarm.GasPpmThreshold)
	assert.Equal(t, "http://alerts.example.com/hook", cfg.Alarm.WebhookURL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	os.Clearenv()
	os.Setenv("ACK_TIMEOUT_MS", "not-a-number")
	os.Setenv("PUBLISH_RETRY_COUNT", "abc")
	defer os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)

	// 非法值回退到默认值
	assert.Equal(t, 5*time.Second, cfg.Sweep.AckTimeout)
	assert.Equal(t, 3, cfg.Dispatch.RetryCount)
}
