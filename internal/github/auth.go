package github

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// AppAuth authenticates git operations against a private firmware repository
// using a GitHub App installation
type AppAuth struct {
	transport *ghinstallation.Transport
}

// NewAppAuth creates a new GitHub App authenticator
func NewAppAuth(appID int64, privateKey []byte, installationID int64) (*AppAuth, error) {
	tr, err := ghinstallation.New(
		http.DefaultTransport,
		appID,
		installationID,
		privateKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub App transport: %w", err)
	}

	return &AppAuth{transport: tr}, nil
}

// GitAuth returns basic auth credentials carrying an installation token.
// ghinstallation caches the token and refreshes it before it expires.
func (a *AppAuth) GitAuth(ctx context.Context) (transport.AuthMethod, error) {
	token, err := a.transport.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get installation token: %w", err)
	}

	return &githttp.BasicAuth{
		Username: "x-access-token",
		Password: token,
	}, nil
}
