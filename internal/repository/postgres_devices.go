package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/josapratama/smarthome-backend-sub000/internal/models"

	"go.uber.org/zap"
)

type PostgresDevicesRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresDevicesRepo(db *sql.DB, logger *zap.Logger) *PostgresDevicesRepo {
	return &PostgresDevicesRepo{db: db, logger: logger}
}

// GetByID loads a device by id, excluding soft-deleted rows.
func (r *PostgresDevicesRepo) GetByID(ctx context.Context, id int64) (*models.Device, error) {
	query := `
		SELECT id, device_key, name, type, mac, firmware_version,
		       is_online, last_seen_at, mqtt_client_id, deleted_at
		FROM devices
		WHERE id = $1 AND deleted_at IS NULL
	`

	var device models.Device
	var lastSeenAt, deletedAt sql.NullTime
	var mqttClientID sql.NullString

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&device.ID,
		&device.DeviceKey,
		&device.Name,
		&device.Type,
		&device.Mac,
		&device.FirmwareVersion,
		&device.IsOnline,
		&lastSeenAt,
		&mqttClientID,
		&deletedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("failed to query device: %w", err)
	}

	if lastSeenAt.Valid {
		device.LastSeenAt = &lastSeenAt.Time
	}
	if mqttClientID.Valid {
		device.MqttClientID = &mqttClientID.String
	}
	if deletedAt.Valid {
		device.DeletedAt = &deletedAt.Time
	}

	return &device, nil
}

// TouchHeartbeat marks a device online in a single conditional update guarded
// by both id and device key. Zero rows affected means key mismatch or unknown
// device; the caller drops the heartbeat with a warning.
func (r *PostgresDevicesRepo) TouchHeartbeat(ctx context.Context, id int64, deviceKey string, mqttClientID string) (bool, error) {
	var clientID interface{}
	if mqttClientID != "" {
		clientID = mqttClientID
	}

	query := `
		UPDATE devices
		SET is_online = TRUE,
		    last_seen_at = NOW(),
		    mqtt_client_id = COALESCE($3, mqtt_client_id)
		WHERE id = $1 AND device_key = $2 AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, id, deviceKey, clientID)
	if err != nil {
		return false, fmt.Errorf("failed to touch heartbeat: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

// MarkOnline refreshes the liveness record after the telemetry path has
// already authenticated the device against its loaded record.
func (r *PostgresDevicesRepo) MarkOnline(ctx context.Context, id int64) error {
	query := `
		UPDATE devices
		SET is_online = TRUE, last_seen_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark device online: %w", err)
	}
	return nil
}

// SweepOffline clears the online flag for devices whose last_seen_at exceeds
// the threshold. The comparison uses the store's own clock so bridge/store
// clock skew cannot flap devices.
func (r *PostgresDevicesRepo) SweepOffline(ctx context.Context, threshold time.Duration) (int64, error) {
	query := `
		UPDATE devices
		SET is_online = FALSE
		WHERE is_online = TRUE
		  AND last_seen_at IS NOT NULL
		  AND last_seen_at < NOW() - ($1 * INTERVAL '1 millisecond')
	`

	result, err := r.db.ExecContext(ctx, query, threshold.Milliseconds())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep offline devices: %w", err)
	}

	return result.RowsAffected()
}
