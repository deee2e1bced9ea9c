package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	meridianconfig "github.com/meridian-cd/meridian/config"
	"github.com/meridian-cd/meridian/domain"
)

// GitFetcher materializes artifact payloads stored in Git repositories
type GitFetcher struct {
	config *meridianconfig.Config
}

func NewGitFetcher(config *meridianconfig.Config) *GitFetcher {
	return &GitFetcher{
		config: config,
	}
}

// createAuthMethod creates a transport.AuthMethod from GitAuthConfig
func (f *GitFetcher) createAuthMethod(auth *domain.GitAuthConfig) (transport.AuthMethod, error) {
	if auth == nil {
		return nil, nil // Public repo
	}

	// HTTP authentication (GitHub tokens, etc.)
	if auth.HTTPAuth != nil {
		return &http.BasicAuth{
			Username: auth.HTTPAuth.Username,
			Password: auth.HTTPAuth.Password,
		}, nil
	}

	// SSH key authentication
	if auth.SSHAuth != nil {
		return f.createSSHAuth(auth.SSHAuth)
	}

	// Neither auth method configured = public repo
	return nil, nil
}

// createSSHAuth creates SSH authentication from SSHAuthConfig
func (f *GitFetcher) createSSHAuth(config *domain.GitSSHAuthConfig) (transport.AuthMethod, error) {
	if config == nil {
		return nil, fmt.Errorf("SSH auth config is nil")
	}

	user := config.User
	if user == "" {
		user = "git" // Default for Git operations
	}

	// Use NewPublicKeys with key bytes directly (passwordless)
	keyBytes := []byte(config.PrivateKey)
	return ssh.NewPublicKeys(user, keyBytes, "") // Empty password for passwordless keys
}

// Fetch clones the source repository into a scratch directory, checks out
// the requested ref and returns the artifact payload at the source path.
// The clone is removed before returning.
func (f *GitFetcher) Fetch(ctx context.Context, src *domain.GitSourceRef) (string, error) {
	if src == nil || src.URL == "" {
		return "", fmt.Errorf("git source URL is required")
	}
	if src.Path == "" {
		return "", fmt.Errorf("git source path is required")
	}

	slog.Info("Fetching artifact from Git", "git_url", src.URL, "git_ref", src.Ref, "path", src.Path)

	authMethod, err := f.createAuthMethod(src.Auth)
	if err != nil {
		slog.Error("Service operation failed",
			"layer", "artifact",
			"operation", "git_fetch_auth",
			"git_url", src.URL,
			"error", err)
		return "", fmt.Errorf("failed to create auth method: %w", err)
	}

	if err := os.MkdirAll(f.config.TmpDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create scratch directory: %w", err)
	}
	workingDir, err := os.MkdirTemp(f.config.TmpDir, "artifact-")
	if err != nil {
		return "", fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(workingDir)

	ctx, cancel := context.WithTimeout(ctx, f.config.GitTimeout)
	defer cancel()

	repo, err := git.PlainCloneContext(ctx, workingDir, false, &git.CloneOptions{
		URL:  src.URL,
		Auth: authMethod,
	})
	if err != nil {
		slog.Error("Service operation failed",
			"layer", "artifact",
			"operation", "git_fetch_clone",
			"git_url", src.URL,
			"error", err)
		return "", fmt.Errorf("failed to clone repository: %w", err)
	}

	// Empty ref means the default branch the clone already checked out
	if src.Ref != "" {
		hash, err := repo.ResolveRevision(plumbing.Revision(src.Ref))
		if err != nil {
			slog.Error("Service operation failed",
				"layer", "artifact",
				"operation", "git_fetch_resolve_ref",
				"git_url", src.URL,
				"git_ref", src.Ref,
				"error", err)
			return "", fmt.Errorf("failed to resolve ref %q: %w", src.Ref, err)
		}

		worktree, err := repo.Worktree()
		if err != nil {
			return "", err
		}
		if err := worktree.Checkout(&git.CheckoutOptions{Hash: *hash}); err != nil {
			slog.Error("Service operation failed",
				"layer", "artifact",
				"operation", "git_fetch_checkout",
				"git_url", src.URL,
				"git_ref", src.Ref,
				"target_commit", hash.String(),
				"error", err)
			return "", fmt.Errorf("failed to checkout %s: %w", hash.String(), err)
		}
	}

	payloadPath := filepath.Join(workingDir, src.Path)
	payload, err := os.ReadFile(payloadPath)
	if err != nil {
		slog.Error("Service operation failed",
			"layer", "artifact",
			"operation", "git_fetch_read",
			"git_url", src.URL,
			"path", src.Path,
			"error", err)
		return "", fmt.Errorf("failed to read artifact at %q: %w", src.Path, err)
	}

	slog.Info("Artifact fetched successfully", "git_url", src.URL, "git_ref", src.Ref, "size_bytes", len(payload))
	return string(payload), nil
}
