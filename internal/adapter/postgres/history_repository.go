package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/corpsj/weet-ai/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HistoryRepo stores upscale records in the upscale_jobs table.
type HistoryRepo struct {
	pool *pgxpool.Pool
}

var _ domain.HistoryRepository = (*HistoryRepo)(nil)

func NewHistoryRepo(pool *pgxpool.Pool) *HistoryRepo {
	return &HistoryRepo{pool: pool}
}

const insertUpscaleJob = `
INSERT INTO upscale_jobs (
    id, model, scale, source,
    original_width, original_height, upscaled_width, upscaled_height,
    duration_ms, cache_hit, status, error, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

func (r *HistoryRepo) Insert(ctx context.Context, rec domain.UpscaleRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, insertUpscaleJob,
		rec.ID, string(rec.Model), rec.Scale, string(rec.Source),
		rec.OriginalSize.Width, rec.OriginalSize.Height, rec.UpscaledSize.Width, rec.UpscaledSize.Height,
		rec.Duration.Milliseconds(), rec.CacheHit, string(rec.Status), rec.Error, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert upscale record: %w", err)
	}
	return nil
}

const selectUpscaleJobColumns = `
SELECT id, model, scale, source,
       original_width, original_height, upscaled_width, upscaled_height,
       duration_ms, cache_hit, status, error, created_at
FROM upscale_jobs`

func (r *HistoryRepo) List(ctx context.Context, limit int) ([]domain.UpscaleRecord, error) {
	rows, err := r.pool.Query(ctx, selectUpscaleJobColumns+` ORDER BY created_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list upscale records: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.UpscaleRecord, error) {
		return scanRecord(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan upscale records: %w", err)
	}
	return records, nil
}

func (r *HistoryRepo) Get(ctx context.Context, id uuid.UUID) (*domain.UpscaleRecord, error) {
	row := r.pool.QueryRow(ctx, selectUpscaleJobColumns+` WHERE id = $1`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upscale record: %w", err)
	}
	return &rec, nil
}

func (r *HistoryRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM upscale_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete upscale record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (domain.UpscaleRecord, error) {
	var (
		rec        domain.UpscaleRecord
		model      string
		source     string
		status     string
		durationMS int64
	)

	err := row.Scan(
		&rec.ID, &model, &rec.Scale, &source,
		&rec.OriginalSize.Width, &rec.OriginalSize.Height, &rec.UpscaledSize.Width, &rec.UpscaledSize.Height,
		&durationMS, &rec.CacheHit, &status, &rec.Error, &rec.CreatedAt,
	)
	if err != nil {
		return domain.UpscaleRecord{}, err
	}

	rec.Model = domain.ModelName(model)
	rec.Source = domain.UpscaleSource(source)
	rec.Status = domain.UpscaleStatus(status)
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}
