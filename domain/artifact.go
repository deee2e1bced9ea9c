package domain

import "fmt"

// GitAuthConfig holds Git authentication configuration for an artifact source
type GitAuthConfig struct {
	HTTPAuth *GitHTTPAuthConfig
	SSHAuth  *GitSSHAuthConfig
}

// GitHTTPAuthConfig for HTTP basic authentication (GitHub tokens, etc.)
type GitHTTPAuthConfig struct {
	Username string // "token" for GitHub
	Password string // actual token/password
}

// GitSSHAuthConfig for passwordless SSH key authentication
type GitSSHAuthConfig struct {
	PrivateKey string // PEM-encoded private key as string
	User       string // SSH user (default: "git")
}

// GitAuthType represents the Git authentication method type
type GitAuthType string

const (
	GitAuthTypeHTTP GitAuthType = "http"
	GitAuthTypeSSH  GitAuthType = "ssh"
)

// String implements the Stringer interface
func (a GitAuthType) String() string {
	return string(a)
}

// IsValid checks if the GitAuthType is valid
func (a GitAuthType) IsValid() bool {
	switch a {
	case GitAuthTypeHTTP, GitAuthTypeSSH:
		return true
	default:
		return false
	}
}

// ParseGitAuthType parses a string into a GitAuthType
func ParseGitAuthType(s string) (GitAuthType, error) {
	authType := GitAuthType(s)
	if !authType.IsValid() {
		return "", fmt.Errorf("invalid auth type: %s", s)
	}
	return authType, nil
}

// GitSourceRef points at a rendered artifact stored in a Git repository
type GitSourceRef struct {
	URL  string
	Ref  string // branch, tag, or commit; empty means the default branch
	Path string // path to the artifact payload within the repository
	Auth *GitAuthConfig
}

// Artifact is the rendered IaC payload handed to an execution backend. The
// payload is opaque to the orchestrator; only the backend selected by Format
// interprets it. Exactly one of Payload or Source is set on a deployment
// request; after resolution Payload always holds the materialized text.
type Artifact struct {
	Format  string
	Payload string
	Source  *GitSourceRef
}

// Resolved reports whether the artifact payload has been materialized
func (a Artifact) Resolved() bool {
	return a.Payload != ""
}
