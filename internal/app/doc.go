// Package app provides the application service layer.
//
// Orchestrates the upscale use case around the upscaler: result caching, history recording and timing.
// Sits between HTTP handlers and the adapters. Depends on domain interfaces, not concrete implementations.
package app
