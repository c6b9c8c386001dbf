package gmail

import "strings"

const (
	DefaultTokenURI = "https://oauth2.googleapis.com/token"

	ScopeReadonly = "https://www.googleapis.com/auth/gmail.readonly"
	ScopeModify   = "https://www.googleapis.com/auth/gmail.modify"
)

// Credentials is an already issued OAuth2 credential.
type Credentials struct {
	Token        string
	RefreshToken string
	TokenURI     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// WithDefaults fills TokenURI and Scopes when they are empty.
func (c Credentials) WithDefaults() Credentials {
	if c.TokenURI == "" {
		c.TokenURI = DefaultTokenURI
	}
	if len(c.Scopes) == 0 {
		c.Scopes = []string{ScopeReadonly, ScopeModify}
	}
	return c
}

// Validate fails with ErrAuth when a required field is missing.
func (c Credentials) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Token) == "" {
		missing = append(missing, "token")
	}
	if strings.TrimSpace(c.RefreshToken) == "" {
		missing = append(missing, "refresh token")
	}
	if strings.TrimSpace(c.ClientID) == "" {
		missing = append(missing, "client id")
	}
	if strings.TrimSpace(c.ClientSecret) == "" {
		missing = append(missing, "client secret")
	}
	if len(missing) > 0 {
		return Errorf(ErrAuth, "validate credentials", "missing %s", strings.Join(missing, ", "))
	}
	return nil
}
