package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/certmint/certmint/acme/resources"
)

// FetchAuthorization fetches the Authorization at the given URL. Calling
// FetchAuthorization repeatedly is how a client polls an authorization's
// Status to follow challenge validation server-side.
//
// See https://tools.ietf.org/html/rfc8555#section-7.5
func (c *Client) FetchAuthorization(ctx context.Context, acct *resources.Account, authzURL string) (*resources.Authorization, error) {
	if authzURL == "" {
		return nil, fmt.Errorf("fetchAuthorization: authorization URL must not be empty")
	}

	resp, err := c.postAsGet(ctx, acct, authzURL)
	if err != nil {
		return nil, fmt.Errorf("fetchAuthorization: %w", err)
	}

	var authz resources.Authorization
	if err := json.Unmarshal(resp.Body, &authz); err != nil {
		return nil, fmt.Errorf("fetchAuthorization: server returned invalid JSON: %w", err)
	}
	authz.URL = authzURL
	return &authz, nil
}

// ValidateChallenge signals the server that the challenge response is in
// place and the server should attempt validation. The POST body is the
// empty JSON object required by RFC 8555 section 7.5.1.
func (c *Client) ValidateChallenge(ctx context.Context, acct *resources.Account, chall *resources.Challenge) error {
	if chall == nil || chall.URL == "" {
		return fmt.Errorf("validateChallenge: challenge must have a URL")
	}

	resp, err := c.postJWS(ctx, acct, chall.URL, []byte("{}"), signOptions{})
	if err != nil {
		return fmt.Errorf("validateChallenge: %w", err)
	}

	if resp.Response.StatusCode != http.StatusOK {
		return fmt.Errorf("validateChallenge: server returned status code %d, expected %d",
			resp.Response.StatusCode, http.StatusOK)
	}
	c.log.Debug("challenge validation requested",
		zap.String("type", chall.Type),
		zap.String("challenge", chall.URL))
	return nil
}
