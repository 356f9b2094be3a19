package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UpscaleSource tells whether the image arrived inline (base64) or as a file upload.
type UpscaleSource string

const (
	SourceInline UpscaleSource = "inline"
	SourceUpload UpscaleSource = "upload"
)

type UpscaleStatus string

const (
	StatusSucceeded UpscaleStatus = "succeeded"
	StatusFailed    UpscaleStatus = "failed"
)

// UpscaleRecord is one entry of the upscale history.
type UpscaleRecord struct {
	ID           uuid.UUID     `json:"id"`
	Model        ModelName     `json:"model,omitempty"`
	Scale        int           `json:"scale"`
	Source       UpscaleSource `json:"source"`
	OriginalSize Dimensions    `json:"original_size"`
	UpscaledSize Dimensions    `json:"upscaled_size"`
	Duration     time.Duration `json:"duration_ns"`
	CacheHit     bool          `json:"cache_hit"`
	Status       UpscaleStatus `json:"status"`
	Error        string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// HistoryRepository persists upscale records.
type HistoryRepository interface {
	Insert(ctx context.Context, rec UpscaleRecord) error
	List(ctx context.Context, limit int) ([]UpscaleRecord, error)
	Get(ctx context.Context, id uuid.UUID) (*UpscaleRecord, error)
	// Delete removes one record, returning ErrRecordNotFound when it does not exist.
	Delete(ctx context.Context, id uuid.UUID) error
}

// CachedResult is an encoded upscale output kept by a ResultCache.
type CachedResult struct {
	PNG          []byte     `json:"png"`
	OriginalSize Dimensions `json:"original_size"`
	UpscaledSize Dimensions `json:"upscaled_size"`
	Model        ModelName  `json:"model"`
	Scale        int        `json:"scale"`
}

// ResultKeyPrefix starts every result cache key: upscale:<sha256 of input>:<model>:<scale>.
const ResultKeyPrefix = "upscale:"

// ResultCache stores encoded outputs keyed by input digest, model and scale.
type ResultCache interface {
	Get(ctx context.Context, key string) (*CachedResult, bool, error)
	Set(ctx context.Context, key string, res *CachedResult) error
}
