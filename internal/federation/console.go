package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultFederationURL = "https://signin.aws.amazon.com/federation"
	defaultConsoleURL    = "https://console.aws.amazon.com/"
	signinSessionSeconds = 43200
)

var ErrNoSigninToken = errors.New("signin token response missing token")

// Doer is the http client surface used to request sign-in tokens.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Console builds federated console sign-in URLs from stored credentials.
type Console struct {
	client        Doer
	federationURL string
	consoleURL    string
	issuer        string
}

func NewConsole(issuer string) *Console {
	return &Console{
		client:        &http.Client{Timeout: 15 * time.Second},
		federationURL: defaultFederationURL,
		consoleURL:    defaultConsoleURL,
		issuer:        issuer,
	}
}

func (c *Console) WithClient(client Doer) *Console {
	c.client = client
	return c
}

func (c *Console) WithFederationURL(federationURL string) *Console {
	c.federationURL = federationURL
	return c
}

// BuildConsoleURL encodes the credentials into a session blob, trades it
// for a short-lived sign-in token and returns the login redirect URL.
func (c *Console) BuildConsoleURL(ctx context.Context, creds Session) (string, error) {
	sessionJSON, err := json.Marshal(map[string]string{
		"sessionId":    creds.AccessKeyID,
		"sessionKey":   creds.SecretAccessKey,
		"sessionToken": creds.SessionToken,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}

	tokenURL := fmt.Sprintf(
		"%s?Action=getSigninToken&SessionDuration=%d&Session=%s",
		c.federationURL,
		signinSessionSeconds,
		url.QueryEscape(string(sessionJSON)),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tokenURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build federation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to request signin token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read federation response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("federation endpoint returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		SigninToken string `json:"SigninToken"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to parse signin token response: %w", err)
	}
	if tokenResp.SigninToken == "" {
		return "", ErrNoSigninToken
	}

	return fmt.Sprintf(
		"%s?Action=login&Issuer=%s&Destination=%s&SigninToken=%s",
		c.federationURL,
		url.QueryEscape(c.issuer),
		url.QueryEscape(c.consoleURL),
		url.QueryEscape(tokenResp.SigninToken),
	), nil
}

// Session carries the three credential fields needed for a console
// sign-in request.
type Session struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}
