// Package client provides a low-level ACME v2 client used as the certificate
// authority collaborator for certificate issuance. It covers directory
// discovery, replay nonces, JWS request signing and the account, order,
// authorization and challenge operations of RFC 8555.
//
// The client reports authority-side rejections as errors carrying the
// server's problem document. It never retries transient transport failures;
// those surface to the caller unchanged.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/certmint/certmint/acme"
	acmenet "github.com/certmint/certmint/net"
)

// Config contains configuration options provided to New when creating
// a Client instance.
type Config struct {
	// DirectoryURL is a fully qualified URL for the ACME server's directory
	// resource. Must include an HTTP/HTTPS protocol prefix.
	DirectoryURL string
	// CABundlePath is an optional file path to one or more PEM encoded CA
	// certificates to be used as trust roots for HTTPS requests to the ACME
	// server. If empty the default system roots are used. For example, when
	// using Pebble as the ACME server it should be the file path to the
	// "test/certs/pebble.minica.pem" file from the Pebble source directory.
	CABundlePath string
	// Logger receives protocol-level progress events. If nil a no-op logger
	// is used.
	Logger *zap.Logger
}

// normalize validates a Config.
func (conf *Config) normalize() error {
	conf.DirectoryURL = strings.TrimSpace(conf.DirectoryURL)

	if conf.DirectoryURL == "" {
		return fmt.Errorf("DirectoryURL must not be empty")
	}

	if _, err := url.Parse(conf.DirectoryURL); err != nil {
		return fmt.Errorf("DirectoryURL invalid: %w", err)
	}

	return nil
}

// Client allows interaction with an ACME server on behalf of account
// keypairs supplied per call. A Client holds no account state of its own, so
// a single instance is safe for use by concurrent validation tasks; the
// directory cache and nonce store are guarded internally.
type Client struct {
	// A parsed *url.URL pointer for the ACME server's directory URL.
	DirectoryURL *url.URL
	// the net object is used to make HTTP GET/POST/HEAD requests to the ACME
	// server.
	net *acmenet.ACMENet
	log *zap.Logger

	// mu guards directory and nonce.
	mu sync.Mutex
	// directory is an in-memory representation of the ACME server's
	// directory object.
	directory map[string]interface{}
	// nonce is the value of the last-seen Replay-Nonce header from the ACME
	// server's HTTP responses. It is consumed by the next signing operation.
	nonce string
}

// New creates a Client instance from the given Config. If the config is not
// valid or if another error occurs it will be returned along with a nil
// Client.
func New(cfg Config) (*Client, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	netClient, err := acmenet.New(acmenet.Config{
		CABundlePath: cfg.CABundlePath,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create ACME net client: %w", err)
	}

	// Safe to throw away the returned err here because normalize() checked
	// that url.Parse succeeds.
	dirURL, _ := url.Parse(cfg.DirectoryURL)

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		DirectoryURL: dirURL,
		net:          netClient,
		log:          logger,
	}, nil
}

// Directory fetches the ACME directory resource from the ACME server,
// caching it for subsequent calls.
//
// See https://tools.ietf.org/html/rfc8555#section-7.1.1
func (c *Client) Directory(ctx context.Context) (map[string]interface{}, error) {
	c.mu.Lock()
	cached := c.directory
	c.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	resp, err := c.net.GetURL(ctx, c.DirectoryURL.String())
	if err != nil {
		return nil, err
	}

	var directory map[string]interface{}
	if err := json.Unmarshal(resp.Body, &directory); err != nil {
		return nil, fmt.Errorf("directory %q returned invalid JSON: %w",
			c.DirectoryURL, err)
	}

	c.mu.Lock()
	c.directory = directory
	c.mu.Unlock()
	c.log.Debug("updated ACME directory", zap.String("url", c.DirectoryURL.String()))
	return directory, nil
}

// endpointURL looks up the URL for a specific ACME endpoint in the server's
// directory.
func (c *Client) endpointURL(ctx context.Context, name string) (string, error) {
	dir, err := c.Directory(ctx)
	if err != nil {
		return "", err
	}
	rawURL, ok := dir[name]
	if !ok {
		return "", fmt.Errorf("missing %q entry in ACME server directory", name)
	}
	if v, ok := rawURL.(string); ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("malformed %q entry in ACME server directory", name)
}

// TermsOfService returns the terms-of-service URL advertised in the
// directory's meta object, or an empty string when the server publishes
// none.
func (c *Client) TermsOfService(ctx context.Context) (string, error) {
	dir, err := c.Directory(ctx)
	if err != nil {
		return "", err
	}
	meta, ok := dir["meta"].(map[string]interface{})
	if !ok {
		return "", nil
	}
	tos, _ := meta["termsOfService"].(string)
	return tos, nil
}

// popNonce returns a nonce for the next signing operation, consuming the
// stored one or fetching a fresh nonce from the newNonce endpoint.
func (c *Client) popNonce(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.nonce != "" {
		n := c.nonce
		c.nonce = ""
		c.mu.Unlock()
		return n, nil
	}
	c.mu.Unlock()

	nonceURL, err := c.endpointURL(ctx, acme.NewNonceEndpoint)
	if err != nil {
		return "", err
	}

	resp, err := c.net.HeadURL(ctx, nonceURL)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%q returned HTTP status %d, expected %d",
			acme.NewNonceEndpoint, resp.StatusCode, http.StatusNoContent)
	}

	nonce := resp.Header.Get(acme.ReplayNonceHeader)
	if nonce == "" {
		return "", fmt.Errorf("%q returned no %q header value",
			acme.NewNonceEndpoint, acme.ReplayNonceHeader)
	}

	return nonce, nil
}

// storeNonce saves the Replay-Nonce header of a response, if any, for the
// next signing operation.
func (c *Client) storeNonce(resp *http.Response) {
	nonce := resp.Header.Get(acme.ReplayNonceHeader)
	if nonce == "" {
		return
	}
	c.mu.Lock()
	c.nonce = nonce
	c.mu.Unlock()
}
