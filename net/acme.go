// Package net provides common HTTP utilities for talking to an ACME server.
package net

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
)

const (
	version       = "0.1.0"
	userAgentBase = "certmint"
	locale        = "en-us"

	// joseContentType is the request content type for JWS POST bodies.
	// See https://tools.ietf.org/html/rfc8555#section-6.2
	joseContentType = "application/jose+json"
)

// Config holds the options used to construct an ACMENet instance.
type Config struct {
	// CABundlePath is an optional file path to one or more PEM encoded CA
	// certificates to be used as trust roots for HTTPS requests to the ACME
	// server. If empty the default system roots are used.
	CABundlePath string
}

// ACMENet performs HTTP GET/POST/HEAD requests to an ACME server. It does not
// retry transport failures; transient network errors are reported to the
// caller as-is.
type ACMENet struct {
	httpClient *http.Client
}

// New constructs an ACMENet from the given Config.
func New(cfg Config) (*ACMENet, error) {
	var caBundle *x509.CertPool
	if cfg.CABundlePath != "" {
		pemBundle, err := os.ReadFile(cfg.CABundlePath)
		if err != nil {
			return nil, err
		}

		caBundle = x509.NewCertPool()
		if !caBundle.AppendCertsFromPEM(pemBundle) {
			return nil, fmt.Errorf("no CA certificates found in %q", cfg.CABundlePath)
		}
	}

	return &ACMENet{
		httpClient: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					RootCAs: caBundle,
				},
			},
		},
	}, nil
}

// Response holds the results from making an HTTP request.
type Response struct {
	// The HTTP Response object from making the request. Its body has already
	// been consumed into Body and can not be read again.
	Response *http.Response
	// The response body.
	Body []byte
}

// Do performs an HTTP request. User-Agent and Accept-Language headers are
// automatically added to the request. The body of the HTTP response is read
// into the returned Response.
func (c *ACMENet) Do(req *http.Request) (*Response, error) {
	ua := fmt.Sprintf("%s %s (%s; %s)",
		userAgentBase, version, runtime.GOOS, runtime.GOARCH)
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept-Language", locale)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		Response: resp,
		Body:     body,
	}, nil
}

// HeadURL performs a HEAD request against the given URL.
func (c *ACMENet) HeadURL(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	return resp, nil
}

// PostURL POSTs the given body to the given URL with the JOSE content type
// used for all signed ACME request bodies.
func (c *ACMENet) PostURL(ctx context.Context, url string, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", joseContentType)
	return c.Do(req)
}

// GetURL GETs the given URL.
func (c *ACMENet) GetURL(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}
