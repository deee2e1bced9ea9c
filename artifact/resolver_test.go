package artifact

import (
	"context"
	"testing"

	"github.com/meridian-cd/meridian/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, src *domain.GitSourceRef) (string, error) {
	args := m.Called(ctx, src)
	return args.String(0), args.Error(1)
}

func TestResolver_InlinePayloadPassesThrough(t *testing.T) {
	fetcher := new(MockFetcher)
	resolver := NewResolver(fetcher)

	in := domain.Artifact{Format: "cloudformation", Payload: "Resources: {}"}
	out, err := resolver.Resolve(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestResolver_FetchesGitSource(t *testing.T) {
	fetcher := new(MockFetcher)
	resolver := NewResolver(fetcher)

	src := &domain.GitSourceRef{
		URL:  "https://github.com/example/artifacts.git",
		Ref:  "v1.2.0",
		Path: "rendered/bp-1.yaml",
	}
	fetcher.On("Fetch", mock.Anything, src).Return("Resources: {}", nil)

	out, err := resolver.Resolve(context.Background(), domain.Artifact{Format: "cloudformation", Source: src})
	require.NoError(t, err)
	assert.Equal(t, "Resources: {}", out.Payload)
	assert.True(t, out.Resolved())
	fetcher.AssertExpectations(t)
}

func TestResolver_FetchError(t *testing.T) {
	fetcher := new(MockFetcher)
	resolver := NewResolver(fetcher)

	src := &domain.GitSourceRef{URL: "https://github.com/example/artifacts.git", Path: "missing.yaml"}
	fetcher.On("Fetch", mock.Anything, src).Return("", assert.AnError)

	_, err := resolver.Resolve(context.Background(), domain.Artifact{Format: "cloudformation", Source: src})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to resolve artifact")
}

func TestResolver_EmptyArtifact(t *testing.T) {
	resolver := NewResolver(new(MockFetcher))

	_, err := resolver.Resolve(context.Background(), domain.Artifact{Format: "cloudformation"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither payload nor source")
}

func TestResolver_NoFetcherConfigured(t *testing.T) {
	resolver := NewResolver(nil)

	src := &domain.GitSourceRef{URL: "https://github.com/example/artifacts.git", Path: "stack.yaml"}

	// An inline payload still resolves without a fetcher
	inline, err := resolver.Resolve(context.Background(), domain.Artifact{Format: "cloudformation", Payload: "Resources: {}"})
	require.NoError(t, err)
	assert.Equal(t, "Resources: {}", inline.Payload)

	// A Git source cannot
	_, err = resolver.Resolve(context.Background(), domain.Artifact{Format: "cloudformation", Source: src})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none configured")
}

func TestResolver_EmptyFetchedPayload(t *testing.T) {
	fetcher := new(MockFetcher)
	resolver := NewResolver(fetcher)

	src := &domain.GitSourceRef{URL: "https://github.com/example/artifacts.git", Path: "empty.yaml"}
	fetcher.On("Fetch", mock.Anything, src).Return("", nil)

	_, err := resolver.Resolve(context.Background(), domain.Artifact{Format: "cloudformation", Source: src})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty payload")
}
