package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/josapratama/smarthome-backend-sub000/internal/models"

	"go.uber.org/zap"
)

// PostgresCommandsRepo 命令台账的PostgreSQL实现
type PostgresCommandsRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresCommandsRepo 创建命令仓库
func NewPostgresCommandsRepo(db *sql.DB, logger *zap.Logger) *PostgresCommandsRepo {
	return &PostgresCommandsRepo{
		db:     db,
		logger: logger,
	}
}

const commandColumns = `
	id, device_id, type, payload, status, correlation_id,
	requested_by, source, acked_at, last_error, created_at, updated_at
`

// Create 创建 PENDING 状态的命令记录
func (r *PostgresCommandsRepo) Create(ctx context.Context, deviceID int64, cmdType string, payload json.RawMessage, source string, requestedBy *int64, correlationID string) (*models.Command, error) {
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}
	if source == "" {
		source = models.CommandSourceBackend
	}

	query := `
		INSERT INTO commands (device_id, type, payload, status, correlation_id, requested_by, source, created_at, updated_at)
		VALUES ($1, $2, $3, 'PENDING', $4, $5, $6, NOW(), NOW())
		RETURNING ` + commandColumns

	row := r.db.QueryRowContext(ctx, query, deviceID, cmdType, []byte(payload), correlationID, requestedBy, source)
	cmd, err := scanCommand(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create command: %w", err)
	}

	return cmd, nil
}

// GetByID 根据ID获取命令
func (r *PostgresCommandsRepo) GetByID(ctx context.Context, id int64) (*models.Command, error) {
	query := `SELECT ` + commandColumns + ` FROM commands WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)
	cmd, err := scanCommand(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCommandNotFound
		}
		return nil, fmt.Errorf("failed to query command: %w", err)
	}

	return cmd, nil
}

// MarkSent PENDING→SENT 条件迁移
// 守卫防止并发确认已推进命令后被回写
func (r *PostgresCommandsRepo) MarkSent(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE commands
		SET status = 'SENT', updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
	`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark command sent: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

// MarkFailed PENDING→FAILED 条件迁移，附带诊断信息
func (r *PostgresCommandsRepo) MarkFailed(ctx context.Context, id int64, diag string) (bool, error) {
	query := `
		UPDATE commands
		SET status = 'FAILED', last_error = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
	`

	result, err := r.db.ExecContext(ctx, query, id, diag)
	if err != nil {
		return false, fmt.Errorf("failed to mark command failed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

// ApplyAck 应用设备确认结果
// 守卫 status IN (SENT, TIMEOUT)：迟到的确认可以覆盖超时判定，
// 但对已是 ACKED/FAILED 的命令是空操作（幂等）
func (r *PostgresCommandsRepo) ApplyAck(ctx context.Context, id int64, status string, ackErr string) (bool, error) {
	if status != models.CommandStatusAcked && status != models.CommandStatusFailed {
		return false, fmt.Errorf("invalid ack status: %s", status)
	}

	var errValue interface{}
	if ackErr != "" {
		errValue = ackErr
	}

	query := `
		UPDATE commands
		SET status = $2, acked_at = NOW(), last_error = $3, updated_at = NOW()
		WHERE id = $1 AND status IN ('SENT', 'TIMEOUT')
	`

	result, err := r.db.ExecContext(ctx, query, id, status, errValue)
	if err != nil {
		return false, fmt.Errorf("failed to apply ack: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

// SweepTimeouts 批量超时扫描
// 集合式条件更新，可重入；与确认路径的竞争由各自的WHERE守卫裁决
func (r *PostgresCommandsRepo) SweepTimeouts(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE commands
		SET status = 'TIMEOUT', updated_at = NOW()
		WHERE status = 'SENT' AND acked_at IS NULL AND created_at < $1
	`

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep command timeouts: %w", err)
	}

	return result.RowsAffected()
}

// CascadeTimeout OTA任务超时后级联关联命令
// 仅当命令尚未到达终态（PENDING/SENT）时生效
func (r *PostgresCommandsRepo) CascadeTimeout(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE commands
		SET status = 'TIMEOUT', updated_at = NOW()
		WHERE id = $1 AND status IN ('PENDING', 'SENT')
	`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to cascade command timeout: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

// scanCommand 从单行扫描命令记录
func scanCommand(row *sql.Row) (*models.Command, error) {
	var cmd models.Command
	var payload []byte
	var requestedBy sql.NullInt64
	var ackedAt sql.NullTime
	var lastError sql.NullString

	err := row.Scan(
		&cmd.ID,
		&cmd.DeviceID,
		&cmd.Type,
		&payload,
		&cmd.Status,
		&cmd.CorrelationID,
		&requestedBy,
		&cmd.Source,
		&ackedAt,
		&lastError,
		&cmd.CreatedAt,
		&cmd.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	cmd.Payload = json.RawMessage(payload)
	if requestedBy.Valid {
		cmd.RequestedBy = &requestedBy.Int64
	}
	if ackedAt.Valid {
		cmd.AckedAt = &ackedAt.Time
	}
	if lastError.Valid {
		cmd.LastError = &lastError.String
	}

	return &cmd, nil
}
