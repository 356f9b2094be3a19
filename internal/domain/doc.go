// Package domain defines the core domain types and interfaces.
//
// This package contains concept-oriented files (model.go, image.go, session.go, errors.go, etc.)
// with shared types and cross-cutting interfaces. Apart from the model catalog lookups there is
// no implementation code here, only contracts consumed by the registry, the upscaler and adapters.
package domain
