package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	jose "github.com/go-jose/go-jose/v4"

	"github.com/certmint/certmint/acme/keys"
	"github.com/certmint/certmint/acme/resources"
	acmenet "github.com/certmint/certmint/net"
)

// staticNonce satisfies the jose.NonceSource interface with a nonce fetched
// before signing, so signing itself never performs network I/O.
type staticNonce string

func (n staticNonce) Nonce() (string, error) {
	return string(n), nil
}

// signOptions controls how postJWS authenticates a request.
type signOptions struct {
	// If true, embed the account's public key as a JWK in the signed JWS
	// instead of using a KeyID header. This is required for the newAccount
	// endpoint, where the server does not yet know the key.
	// See https://tools.ietf.org/html/rfc8555#section-6.2
	embedJWK bool
}

// signRequest produces the serialized JWS for a request to url with the
// given payload, signed with the account's key. A nil payload produces
// a POST-as-GET body (empty payload).
// See https://tools.ietf.org/html/rfc8555#section-6.3
func signRequest(acct *resources.Account, url string, payload []byte, nonce string, opts signOptions) ([]byte, error) {
	if acct.Signer == nil {
		return nil, fmt.Errorf("sign: account has a nil private key")
	}

	alg, err := keys.SignatureAlgorithm(acct.Signer)
	if err != nil {
		return nil, err
	}

	joseOpts := &jose.SignerOptions{
		NonceSource: staticNonce(nonce),
		ExtraHeaders: map[jose.HeaderKey]interface{}{
			"url": url,
		},
	}

	var signingKey jose.SigningKey
	if opts.embedJWK {
		joseOpts.EmbedJWK = true
		signingKey = jose.SigningKey{
			Key:       acct.Signer,
			Algorithm: alg,
		}
	} else {
		if acct.URL == "" {
			return nil, fmt.Errorf("sign: account has not been registered, no KeyID available")
		}
		signingKey = jose.SigningKey{
			Key: &jose.JSONWebKey{
				Key:   acct.Signer,
				KeyID: acct.URL,
			},
			Algorithm: alg,
		}
	}

	signer, err := jose.NewSigner(signingKey, joseOpts)
	if err != nil {
		return nil, err
	}

	if payload == nil {
		payload = []byte{}
	}
	signed, err := signer.Sign(payload)
	if err != nil {
		return nil, err
	}

	return []byte(signed.FullSerialize()), nil
}

// postJWS signs the payload for the account and POSTs it to url. The
// response's replay nonce is stored for the next request. Responses with
// a problem document are returned along with an error wrapping the decoded
// *resources.Problem.
func (c *Client) postJWS(ctx context.Context, acct *resources.Account, url string, payload []byte, opts signOptions) (*acmenet.Response, error) {
	nonce, err := c.popNonce(ctx)
	if err != nil {
		return nil, err
	}

	signedBody, err := signRequest(acct, url, payload, nonce, opts)
	if err != nil {
		return nil, err
	}

	resp, err := c.net.PostURL(ctx, url, signedBody)
	if err != nil {
		return nil, err
	}
	c.storeNonce(resp.Response)

	if resp.Response.StatusCode >= 400 {
		return resp, problemError(resp)
	}
	return resp, nil
}

// postAsGet performs an authenticated fetch of the given resource URL using
// a POST-as-GET request.
// See https://tools.ietf.org/html/rfc8555#section-6.3
func (c *Client) postAsGet(ctx context.Context, acct *resources.Account, url string) (*acmenet.Response, error) {
	return c.postJWS(ctx, acct, url, nil, signOptions{})
}

// problemError decodes a problem document from an error response. When the
// body is not a problem document a plain status error is returned instead.
func problemError(resp *acmenet.Response) error {
	contentType := resp.Response.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/problem+json") {
		var problem resources.Problem
		if err := json.Unmarshal(resp.Body, &problem); err == nil {
			if problem.Status == 0 {
				problem.Status = resp.Response.StatusCode
			}
			return fmt.Errorf("ACME server rejected request: %w", &problem)
		}
	}
	return fmt.Errorf("ACME server returned status %d: %s",
		resp.Response.StatusCode, resp.Body)
}
