package domain

import "errors"

var (
	ErrInvalidImage   = errors.New("invalid image")
	ErrInvalidScale   = errors.New("scale must be 2 or 4")
	ErrUnknownModel   = errors.New("unknown model")
	ErrWeightFetch    = errors.New("weight fetch failed")
	ErrInference      = errors.New("inference failed")
	ErrRegistryClosed = errors.New("session registry closed")

	ErrHistoryDisabled = errors.New("upscale history disabled")
	ErrRecordNotFound  = errors.New("upscale record not found")
)
