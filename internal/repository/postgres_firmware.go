package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/josapratama/smarthome-backend-sub000/internal/models"
)

// PostgresFirmwareRepo 固件仓库的PostgreSQL实现
type PostgresFirmwareRepo struct {
	db *sql.DB
}

// NewPostgresFirmwareRepo 创建固件仓库
func NewPostgresFirmwareRepo(db *sql.DB) *PostgresFirmwareRepo {
	return &PostgresFirmwareRepo{db: db}
}

// GetByID 根据ID获取固件版本元数据（排除软删除）
func (r *PostgresFirmwareRepo) GetByID(ctx context.Context, id int64) (*models.FirmwareRelease, error) {
	query := `
		SELECT id, version, checksum, size_bytes, download_url, deleted_at
		FROM firmware_releases
		WHERE id = $1 AND deleted_at IS NULL
	`

	var release models.FirmwareRelease
	var deletedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&release.ID,
		&release.Version,
		&release.Checksum,
		&release.SizeBytes,
		&release.DownloadURL,
		&deletedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrFirmwareReleaseNotFound
		}
		return nil, fmt.Errorf("failed to query firmware release: %w", err)
	}

	if deletedAt.Valid {
		release.DeletedAt = &deletedAt.Time
	}

	return &release, nil
}
