package mailbox

import (
	"context"
	"fmt"

	"github.com/emersion/go-sasl"
	"golang.org/x/oauth2"
)

// OAuthConfig identifies this application against the mailbox provider's
// token endpoint. The per-mailbox refresh token lives in the encrypted
// mailbox secret.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// accessToken exchanges the stored refresh token for a short-lived access
// token. Nothing is cached; the token dies with the call.
func (c OAuthConfig) accessToken(ctx context.Context, refreshToken string) (string, error) {
	if c.ClientID == "" {
		return "", fmt.Errorf("oauth client not configured")
	}

	conf := &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: c.TokenURL},
	}
	token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return "", fmt.Errorf("token refresh: %w", err)
	}
	return token.AccessToken, nil
}

// xoauth2Client implements the XOAUTH2 SASL mechanism used by Gmail and
// Outlook. go-sasl ships OAUTHBEARER but not this older variant.
type xoauth2Client struct {
	username string
	token    string
}

func newXOAuth2Client(username, token string) sasl.Client {
	return &xoauth2Client{username: username, token: token}
}

func (c *xoauth2Client) Start() (mech string, ir []byte, err error) {
	ir = []byte(fmt.Sprintf("user=%s\x01auth=Bearer %s\x01\x01", c.username, c.token))
	return "XOAUTH2", ir, nil
}

func (c *xoauth2Client) Next(challenge []byte) ([]byte, error) {
	// The server only challenges on failure; an empty reply makes it return
	// the final error.
	return []byte{}, nil
}
