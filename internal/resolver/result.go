// Package resolver turns a shared post reference into media URLs and an
// author handle by cascading over several unreliable sources.
package resolver

import (
	"context"

	"github.com/iconidentify/xstash/internal/domain"
)

// Status is the outcome of a single strategy.
type Status int

const (
	// StatusSkipped means the cascade did not run the strategy.
	StatusSkipped Status = iota
	// StatusEmpty means the strategy ran and found nothing.
	StatusEmpty
	// StatusResolved means the strategy produced at least one URL.
	StatusResolved
	// StatusError means the strategy failed. The cascade treats it as empty.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSkipped:
		return "skipped"
	case StatusEmpty:
		return "empty"
	case StatusResolved:
		return "resolved"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Partial is what one strategy contributes.
type Partial struct {
	Status Status
	Media  domain.MediaResolution
	Err    error
}

func resolved(media domain.MediaResolution) Partial {
	if media.IsEmpty() && media.CanonicalURL == "" {
		return Partial{Status: StatusEmpty}
	}
	return Partial{Status: StatusResolved, Media: media}
}

func failed(err error) Partial {
	return Partial{Status: StatusError, Err: err}
}

// Strategy resolves media for a reference. Implementations never return
// an error to the caller; failures are reported through Partial.Status.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, ref domain.PostReference) Partial
}
