package runtime

import (
	"context"
	"fmt"

	"github.com/mbrt/gmailctl/cmd/gmailctl/localcred"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	gc "github.com/joshsymonds/inboxledger/internal/gmail"
)

// NewGmailClient builds a client from an already issued credential. The
// credential is validated before anything touches the network.
func NewGmailClient(ctx context.Context, creds gc.Credentials) (gc.Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	creds = creds.WithDefaults()
	cfg := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  google.Endpoint.AuthURL,
			TokenURL: creds.TokenURI,
		},
		Scopes: creds.Scopes,
	}
	tok := &oauth2.Token{
		AccessToken:  creds.Token,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
	}
	svc, err := gmail.NewService(ctx, option.WithTokenSource(cfg.TokenSource(ctx, tok)))
	if err != nil {
		return nil, gc.Wrap(gc.ErrGmail, "build gmail service", err)
	}
	return NewGoogleAPIClient(svc), nil
}

// NewLocalGmailClient reads a gmailctl style credentials directory
// (credentials.json + token.json) and requests read-only access.
func NewLocalGmailClient(ctx context.Context, cfgDir string) (gc.Client, error) {
	svc, err := (localcred.Provider{}).ServiceWithScopes(ctx, cfgDir, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, gc.Wrap(gc.ErrAuth, "load local credentials", fmt.Errorf("%s: %w", cfgDir, err))
	}
	return NewGoogleAPIClient(svc), nil
}
