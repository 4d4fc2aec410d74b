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

// PostgresOtaJobsRepo OTA任务台账的PostgreSQL实现
type PostgresOtaJobsRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresOtaJobsRepo 创建OTA任务仓库
func NewPostgresOtaJobsRepo(db *sql.DB, logger *zap.Logger) *PostgresOtaJobsRepo {
	return &PostgresOtaJobsRepo{
		db:     db,
		logger: logger,
	}
}

const otaJobColumns = `
	id, device_id, release_id, command_id, status, progress, last_error,
	sent_at, downloading_at, applied_at, failed_at, created_at, updated_at
`

// CreateWithCommand 在同一事务中创建 PENDING 任务和关联的 OTA_UPDATE 命令
// 设备按 otaJobId 上报进度，任务ID必须写进命令载荷；
// 命令先以空载荷插入，拿到任务ID后在同一事务里回填
func (r *PostgresOtaJobsRepo) CreateWithCommand(ctx context.Context, deviceID int64, release *models.FirmwareRelease, source string, requestedBy *int64, correlationID string) (*models.OtaJob, *models.Command, error) {
	if source == "" {
		source = models.CommandSourceBackend
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	cmdQuery := `
		INSERT INTO commands (device_id, type, payload, status, correlation_id, requested_by, source, created_at, updated_at)
		VALUES ($1, $2, '{}', 'PENDING', $3, $4, $5, NOW(), NOW())
		RETURNING ` + commandColumns

	cmd, err := scanCommand(tx.QueryRowContext(ctx, cmdQuery, deviceID, models.CommandTypeOtaUpdate, correlationID, requestedBy, source))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create ota command: %w", err)
	}

	jobQuery := `
		INSERT INTO ota_jobs (device_id, release_id, command_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, 'PENDING', NOW(), NOW())
		RETURNING ` + otaJobColumns

	job, err := scanOtaJob(tx.QueryRowContext(ctx, jobQuery, deviceID, release.ID, cmd.ID))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create ota job: %w", err)
	}

	payload, err := json.Marshal(models.OtaUpdatePayload{
		OtaJobID:    job.ID,
		ReleaseID:   release.ID,
		Version:     release.Version,
		Checksum:    release.Checksum,
		SizeBytes:   release.SizeBytes,
		DownloadURL: release.DownloadURL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal ota payload: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE commands SET payload = $2, updated_at = NOW() WHERE id = $1`, cmd.ID, payload); err != nil {
		return nil, nil, fmt.Errorf("failed to backfill ota payload: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit ota transaction: %w", err)
	}

	cmd.Payload = payload
	return job, cmd, nil
}

// GetByID 根据ID获取OTA任务
func (r *PostgresOtaJobsRepo) GetByID(ctx context.Context, id int64) (*models.OtaJob, error) {
	query := `SELECT ` + otaJobColumns + ` FROM ota_jobs WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)
	job, err := scanOtaJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrOtaJobNotFound
		}
		return nil, fmt.Errorf("failed to query ota job: %w", err)
	}

	return job, nil
}

// ListByDevice 列出指定设备的OTA任务（按创建时间倒序）
func (r *PostgresOtaJobsRepo) ListByDevice(ctx context.Context, deviceID int64) ([]models.OtaJob, error) {
	query := `SELECT ` + otaJobColumns + ` FROM ota_jobs WHERE device_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ota jobs: %w", err)
	}
	defer rows.Close()

	jobs := []models.OtaJob{}
	for rows.Next() {
		job, err := scanOtaJobRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ota job: %w", err)
		}
		jobs = append(jobs, *job)
	}

	return jobs, rows.Err()
}

// MarkSent PENDING→SENT，记录 sent_at 里程碑（COALESCE保证只写一次）
func (r *PostgresOtaJobsRepo) MarkSent(ctx context.Context, id int64) error {
	query := `
		UPDATE ota_jobs
		SET status = 'SENT', sent_at = COALESCE(sent_at, NOW()), updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark ota job sent: %w", err)
	}
	return nil
}

// MarkFailed 任务失败，记录 failed_at 里程碑与错误
func (r *PostgresOtaJobsRepo) MarkFailed(ctx context.Context, id int64, otaErr string) error {
	query := `
		UPDATE ota_jobs
		SET status = 'FAILED', last_error = $2, failed_at = COALESCE(failed_at, NOW()), updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, id, otaErr); err != nil {
		return fmt.Errorf("failed to mark ota job failed: %w", err)
	}
	return nil
}

// SetDownloading 设备上报下载中
// progress 为 nil 时保留原值；调用方已完成 [0,1] 范围校验
// 直接按 id 更新，最后写入者生效；如需更强顺序保证可加
// status NOT IN ('APPLIED','FAILED','TIMEOUT') 守卫
func (r *PostgresOtaJobsRepo) SetDownloading(ctx context.Context, id int64, progress *float64) error {
	query := `
		UPDATE ota_jobs
		SET status = 'DOWNLOADING',
		    progress = COALESCE($2, progress),
		    downloading_at = COALESCE(downloading_at, NOW()),
		    updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, id, progress); err != nil {
		return fmt.Errorf("failed to set ota job downloading: %w", err)
	}
	return nil
}

// SetApplied 升级完成，进度强制为 1.0
func (r *PostgresOtaJobsRepo) SetApplied(ctx context.Context, id int64) error {
	query := `
		UPDATE ota_jobs
		SET status = 'APPLIED', progress = 1.0,
		    applied_at = COALESCE(applied_at, NOW()), updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to set ota job applied: %w", err)
	}
	return nil
}

// SetFailed 设备上报升级失败
func (r *PostgresOtaJobsRepo) SetFailed(ctx context.Context, id int64, otaErr string) error {
	query := `
		UPDATE ota_jobs
		SET status = 'FAILED', last_error = $2,
		    failed_at = COALESCE(failed_at, NOW()), updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, id, otaErr); err != nil {
		return fmt.Errorf("failed to set ota job failed: %w", err)
	}
	return nil
}

// SweepTimeouts 将停留在 SENT/DOWNLOADING 且早于 cutoff 的任务置为 TIMEOUT
// 返回受影响任务的关联命令ID，供调用方级联命令超时
func (r *PostgresOtaJobsRepo) SweepTimeouts(ctx context.Context, cutoff time.Time) ([]int64, error) {
	query := `
		UPDATE ota_jobs
		SET status = 'TIMEOUT', updated_at = NOW()
		WHERE status IN ('SENT', 'DOWNLOADING') AND created_at < $1
		RETURNING command_id
	`

	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to sweep ota timeouts: %w", err)
	}
	defer rows.Close()

	var commandIDs []int64
	for rows.Next() {
		var commandID int64
		if err := rows.Scan(&commandID); err != nil {
			return nil, fmt.Errorf("failed to scan command id: %w", err)
		}
		commandIDs = append(commandIDs, commandID)
	}

	return commandIDs, rows.Err()
}

type otaScanner interface {
	Scan(dest ...interface{}) error
}

func scanOtaJobFrom(s otaScanner) (*models.OtaJob, error) {
	var job models.OtaJob
	var progress sql.NullFloat64
	var lastError sql.NullString
	var sentAt, downloadingAt, appliedAt, failedAt sql.NullTime

	err := s.Scan(
		&job.ID,
		&job.DeviceID,
		&job.ReleaseID,
		&job.CommandID,
		&job.Status,
		&progress,
		&lastError,
		&sentAt,
		&downloadingAt,
		&appliedAt,
		&failedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if progress.Valid {
		job.Progress = &progress.Float64
	}
	if lastError.Valid {
		job.LastError = &lastError.String
	}
	if sentAt.Valid {
		job.SentAt = &sentAt.Time
	}
	if downloadingAt.Valid {
		job.DownloadingAt = &downloadingAt.Time
	}
	if appliedAt.Valid {
		job.AppliedAt = &appliedAt.Time
	}
	if failedAt.Valid {
		job.FailedAt = &failedAt.Time
	}

	return &job, nil
}

func scanOtaJob(row *sql.Row) (*models.OtaJob, error) {
	return scanOtaJobFrom(row)
}

func scanOtaJobRows(rows *sql.Rows) (*models.OtaJob, error) {
	return scanOtaJobFrom(rows)
}
