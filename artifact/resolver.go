// Package artifact materializes deployment artifact payloads from their
// configured source.
package artifact

import (
	"context"
	"fmt"

	"github.com/meridian-cd/meridian/domain"
)

// Fetcher retrieves a payload for a Git source reference
type Fetcher interface {
	Fetch(ctx context.Context, src *domain.GitSourceRef) (string, error)
}

// Resolver turns a deployment request artifact into a fully materialized
// one. Inline payloads pass through untouched; Git sources are fetched.
type Resolver struct {
	fetcher Fetcher
}

func NewResolver(fetcher Fetcher) *Resolver {
	return &Resolver{fetcher: fetcher}
}

func (r *Resolver) Resolve(ctx context.Context, a domain.Artifact) (domain.Artifact, error) {
	if a.Resolved() {
		return a, nil
	}

	if a.Source == nil {
		return domain.Artifact{}, fmt.Errorf("artifact has neither payload nor source")
	}
	if r.fetcher == nil {
		return domain.Artifact{}, fmt.Errorf("artifact source %q requires a fetcher, none configured", a.Source.URL)
	}

	payload, err := r.fetcher.Fetch(ctx, a.Source)
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("failed to resolve artifact: %w", err)
	}
	if payload == "" {
		return domain.Artifact{}, fmt.Errorf("artifact source %q resolved to an empty payload", a.Source.URL)
	}

	a.Payload = payload
	return a, nil
}
