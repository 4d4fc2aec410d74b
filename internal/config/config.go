package config

import (
	"os"
	"strconv"
	"time"

	"github.com/josapratama/smarthome-backend-sub000/common/config"
)

// Config 桥接服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	// 命令分发配置
	Dispatch struct {
		RetryCount    int             // 发布重试次数
		BackoffDelays []time.Duration // 重试退避延迟（最后一个会被复用）
	}

	// 超时扫描配置
	Sweep struct {
		AckTimeout       time.Duration // 命令确认超时阈值
		CommandInterval  time.Duration // 命令扫描间隔
		OfflineThreshold time.Duration // 设备离线阈值
		OfflineInterval  time.Duration // 离线扫描间隔
		OtaTimeout       time.Duration // OTA超时阈值
		OtaInterval      time.Duration // OTA扫描间隔
	}

	// 报警配置
	Alarm struct {
		DedupWindow       time.Duration // 去重窗口
		GasPpmThreshold   float64       // 气体浓度阈值 (ppm)
		BinLevelThreshold float64       // 垃圾桶容量阈值 (%)
		CurrentThreshold  float64       // 电流阈值（0 表示禁用）
		WebhookURL        string        // 报警Webhook地址（空表示禁用）
	}

	// 遥测配置
	Telemetry struct {
		Stream string // Redis Streams 流名称
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
// 所有配置项都有默认值，零配置即可运行
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "smarthome")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "smarthome-bridge")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	cfg.Dispatch.RetryCount = getEnvInt("PUBLISH_RETRY_COUNT", 3)
	cfg.Dispatch.BackoffDelays = []time.Duration{
		getEnvMillis("PUBLISH_BACKOFF_1_MS", 500*time.Millisecond),
		getEnvMillis("PUBLISH_BACKOFF_2_MS", 1000*time.Millisecond),
		getEnvMillis("PUBLISH_BACKOFF_3_MS", 2000*time.Millisecond),
	}

	cfg.Sweep.AckTimeout = getEnvMillis("ACK_TIMEOUT_MS", 5*time.Second)
	cfg.Sweep.CommandInterval = getEnvMillis("COMMAND_SWEEP_INTERVAL_MS", time.Second)
	cfg.Sweep.OfflineThreshold = getEnvMillis("OFFLINE_THRESHOLD_MS", 5*time.Second)
	cfg.Sweep.OfflineInterval = getEnvMillis("OFFLINE_SWEEP_INTERVAL_MS", time.Second)
	cfg.Sweep.OtaTimeout = getEnvMillis("OTA_TIMEOUT_MS", 10*time.Minute)
	cfg.Sweep.OtaInterval = getEnvMillis("OTA_SWEEP_INTERVAL_MS", 30*time.Second)

	cfg.Alarm.DedupWindow = getEnvMillis("ALARM_DEDUP_WINDOW_MS", 60*time.Second)
	cfg.Alarm.GasPpmThreshold = getEnvFloat("GAS_PPM_THRESHOLD", 500)
	cfg.Alarm.BinLevelThreshold = getEnvFloat("BIN_LEVEL_THRESHOLD", 80)
	cfg.Alarm.CurrentThreshold = getEnvFloat("CURRENT_THRESHOLD", 0)
	cfg.Alarm.WebhookURL = getEnv("ALARM_WEBHOOK_URL", "")

	cfg.Telemetry.Stream = getEnv("TELEMETRY_STREAM", "telemetry:data:stream")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return time.Duration(n) * time.Millisecond
		}
	}
	return defaultValue
}
