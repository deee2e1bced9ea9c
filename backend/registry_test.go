package backend

import (
	"context"
	"testing"

	"github.com/meridian-cd/meridian/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopBackend struct{}

func (noopBackend) Plan(ctx context.Context, target Target, artifact domain.Artifact) (*PlanResult, error) {
	return &PlanResult{}, nil
}

func (noopBackend) Apply(ctx context.Context, target Target, artifact domain.Artifact) (*ApplyResult, error) {
	return &ApplyResult{}, nil
}

func (noopBackend) Destroy(ctx context.Context, target Target) (*DestroyResult, error) {
	return &DestroyResult{}, nil
}

func (noopBackend) ReadState(ctx context.Context, target Target) ([]domain.ResourceState, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	registry.Register("cloudformation", noopBackend{})

	b, err := registry.Get("cloudformation")
	require.NoError(t, err)
	assert.NotNil(t, b)

	_, err = registry.Get("terraform")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownFormat)

	assert.ElementsMatch(t, []string{"cloudformation"}, registry.Formats())
}
