package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/josapratama/smarthome-backend-sub000/internal/models"
)

// PostgresReadingsRepo 遥测读数仓库的PostgreSQL实现
type PostgresReadingsRepo struct {
	db *sql.DB
}

// NewPostgresReadingsRepo 创建遥测读数仓库
func NewPostgresReadingsRepo(db *sql.DB) *PostgresReadingsRepo {
	return &PostgresReadingsRepo{db: db}
}

// Insert 持久化一条遥测读数
func (r *PostgresReadingsRepo) Insert(ctx context.Context, reading *models.SensorReading) (int64, error) {
	var raw interface{}
	if len(reading.Raw) > 0 {
		raw = []byte(reading.Raw)
	}

	query := `
		INSERT INTO sensor_readings (device_id, current, gas_ppm, flame, bin_level, recorded_at, raw)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		reading.DeviceID,
		nullFloat(reading.Current),
		nullFloat(reading.GasPpm),
		nullBool(reading.Flame),
		nullFloat(reading.BinLevel),
		reading.RecordedAt,
		raw,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert sensor reading: %w", err)
	}

	return id, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}
