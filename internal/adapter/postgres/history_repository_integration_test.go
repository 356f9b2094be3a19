package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/corpsj/weet-ai/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(createdAt time.Time) domain.UpscaleRecord {
	return domain.UpscaleRecord{
		ID:           uuid.New(),
		Model:        domain.ModelX4Plus,
		Scale:        4,
		Source:       domain.SourceUpload,
		OriginalSize: domain.Dimensions{Width: 64, Height: 48},
		UpscaledSize: domain.Dimensions{Width: 256, Height: 192},
		Duration:     1500 * time.Millisecond,
		Status:       domain.StatusSucceeded,
		CreatedAt:    createdAt,
	}
}

func TestHistoryRepo_InsertAndGet(t *testing.T) {
	repo := NewHistoryRepo(setupTestDB(t))
	ctx := context.Background()

	rec := newRecord(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, repo.Insert(ctx, rec))

	got, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec, *got)
}

func TestHistoryRepo_FailedRecord(t *testing.T) {
	repo := NewHistoryRepo(setupTestDB(t))
	ctx := context.Background()

	rec := domain.UpscaleRecord{
		ID:        uuid.New(),
		Scale:     3,
		Source:    domain.SourceInline,
		Status:    domain.StatusFailed,
		Error:     "scale must be 2 or 4",
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, repo.Insert(ctx, rec))

	got, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, "scale must be 2 or 4", got.Error)
	assert.Empty(t, got.Model)
}

func TestHistoryRepo_Get_NotFound(t *testing.T) {
	repo := NewHistoryRepo(setupTestDB(t))

	got, err := repo.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
	assert.Nil(t, got)
}

func TestHistoryRepo_Delete(t *testing.T) {
	repo := NewHistoryRepo(setupTestDB(t))
	ctx := context.Background()

	keep := newRecord(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	drop := newRecord(time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC))
	require.NoError(t, repo.Insert(ctx, keep))
	require.NoError(t, repo.Insert(ctx, drop))

	require.NoError(t, repo.Delete(ctx, drop.ID))

	_, err := repo.Get(ctx, drop.ID)
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
	got, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, keep.ID, got[0].ID)

	assert.ErrorIs(t, repo.Delete(ctx, drop.ID), domain.ErrRecordNotFound)
}

func TestHistoryRepo_List_NewestFirst(t *testing.T) {
	repo := NewHistoryRepo(setupTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := range 5 {
		rec := newRecord(base.Add(time.Duration(i) * time.Minute))
		require.NoError(t, repo.Insert(ctx, rec))
		ids = append(ids, rec.ID)
	}

	got, err := repo.List(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, ids[4], got[0].ID)
	assert.Equal(t, ids[3], got[1].ID)
	assert.Equal(t, ids[2], got[2].ID)
}

func TestHistoryRepo_List_Empty(t *testing.T) {
	repo := NewHistoryRepo(setupTestDB(t))

	got, err := repo.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHistoryRepo_InsertFillsMissingIDAndTime(t *testing.T) {
	repo := NewHistoryRepo(setupTestDB(t))
	ctx := context.Background()

	rec := newRecord(time.Time{})
	rec.ID = uuid.Nil
	require.NoError(t, repo.Insert(ctx, rec))

	got, err := repo.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.NotEqual(t, uuid.Nil, got[0].ID)
	assert.False(t, got[0].CreatedAt.IsZero())
}
