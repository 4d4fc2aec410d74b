package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/josapratama/smarthome-backend-sub000/internal/models"

	"go.uber.org/zap"
)

// PostgresAlarmsRepo 报警仓库的PostgreSQL实现
type PostgresAlarmsRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresAlarmsRepo 创建报警仓库
func NewPostgresAlarmsRepo(db *sql.DB, logger *zap.Logger) *PostgresAlarmsRepo {
	return &PostgresAlarmsRepo{
		db:     db,
		logger: logger,
	}
}

// ExistsRecent 判断去重窗口内是否已有同 (device, type, source) 的报警
// 使用数据库侧时间运算，窗口以毫秒传入
func (r *PostgresAlarmsRepo) ExistsRecent(ctx context.Context, deviceID int64, alarmType, source string, window time.Duration) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM alarms
			WHERE device_id = $1
			  AND type = $2
			  AND source = $3
			  AND triggered_at > NOW() - ($4 * INTERVAL '1 millisecond')
		)
	`

	var exists bool
	err := r.db.QueryRowContext(ctx, query, deviceID, alarmType, source, window.Milliseconds()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check recent alarm: %w", err)
	}

	return exists, nil
}

// Create 插入报警记录
func (r *PostgresAlarmsRepo) Create(ctx context.Context, alarm *models.Alarm) (int64, error) {
	var value interface{}
	if alarm.Value != nil {
		value = *alarm.Value
	}

	query := `
		INSERT INTO alarms (device_id, type, source, value, triggered_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, alarm.DeviceID, alarm.Type, alarm.Source, value).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create alarm: %w", err)
	}

	return id, nil
}
