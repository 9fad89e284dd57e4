package client

import (
	"context"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/certmint/certmint/acme"
	"github.com/certmint/certmint/acme/resources"
)

// ListOrders fetches the URLs of the orders the account has created with the
// server. Accounts whose server never advertised an orders list URL have no
// listable orders; a nil slice is returned.
//
// See https://tools.ietf.org/html/rfc8555#section-7.1.2.1
func (c *Client) ListOrders(ctx context.Context, acct *resources.Account) ([]string, error) {
	if acct.OrdersURL == "" {
		return nil, nil
	}

	resp, err := c.postAsGet(ctx, acct, acct.OrdersURL)
	if err != nil {
		return nil, fmt.Errorf("listOrders: %w", err)
	}

	var body struct {
		Orders []string `json:"orders"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("listOrders: server returned invalid JSON: %w", err)
	}
	return body.Orders, nil
}

// CreateOrder creates a new Order resource for the given identifiers with
// the ACME server. On success the returned Order's URL field is populated
// with the value of the server's reply's Location header.
//
// For more information on Order creation see "Applying for Certificate
// Issuance" in RFC 8555:
// https://tools.ietf.org/html/rfc8555#section-7.4
func (c *Client) CreateOrder(ctx context.Context, acct *resources.Account, identifiers []resources.Identifier) (*resources.Order, error) {
	req := struct {
		Identifiers []resources.Identifier `json:"identifiers"`
	}{
		Identifiers: identifiers,
	}

	reqBody, err := json.Marshal(&req)
	if err != nil {
		return nil, err
	}

	newOrderURL, err := c.endpointURL(ctx, acme.NewOrderEndpoint)
	if err != nil {
		return nil, fmt.Errorf("createOrder: %w", err)
	}

	resp, err := c.postJWS(ctx, acct, newOrderURL, reqBody, signOptions{})
	if err != nil {
		return nil, fmt.Errorf("createOrder: %w", err)
	}

	if resp.Response.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("createOrder: server returned status code %d, expected %d",
			resp.Response.StatusCode, http.StatusCreated)
	}

	locHeader := resp.Response.Header.Get("Location")
	if locHeader == "" {
		return nil, fmt.Errorf("createOrder: server returned response with no Location header")
	}

	var order resources.Order
	if err := json.Unmarshal(resp.Body, &order); err != nil {
		return nil, fmt.Errorf("createOrder: server returned invalid JSON: %w", err)
	}

	order.URL = locHeader
	c.log.Info("created new order", zap.String("order", order.URL))
	return &order, nil
}

// FetchOrder fetches the Order at the given URL. Calling FetchOrder is
// required to refresh an Order's Status field to synchronize the resource
// with the server-side representation.
func (c *Client) FetchOrder(ctx context.Context, acct *resources.Account, orderURL string) (*resources.Order, error) {
	if orderURL == "" {
		return nil, fmt.Errorf("fetchOrder: order URL must not be empty")
	}

	resp, err := c.postAsGet(ctx, acct, orderURL)
	if err != nil {
		return nil, fmt.Errorf("fetchOrder: %w", err)
	}

	var order resources.Order
	if err := json.Unmarshal(resp.Body, &order); err != nil {
		return nil, fmt.Errorf("fetchOrder: server returned invalid JSON: %w", err)
	}
	order.URL = orderURL
	return &order, nil
}

// FinalizeOrder submits a DER encoded certificate signing request to the
// order's finalize URL. The order is refreshed in place with the server's
// response, which may already carry the certificate URL.
//
// See https://tools.ietf.org/html/rfc8555#section-7.4
func (c *Client) FinalizeOrder(ctx context.Context, acct *resources.Account, order *resources.Order, csrDER []byte) error {
	if order == nil || order.Finalize == "" {
		return fmt.Errorf("finalize: order has no finalize URL")
	}

	req := struct {
		CSR string `json:"csr"`
	}{
		CSR: base64.RawURLEncoding.EncodeToString(csrDER),
	}

	reqBody, err := json.Marshal(&req)
	if err != nil {
		return err
	}

	resp, err := c.postJWS(ctx, acct, order.Finalize, reqBody, signOptions{})
	if err != nil {
		return fmt.Errorf("finalize: %w", err)
	}

	if resp.Response.StatusCode != http.StatusOK {
		return fmt.Errorf("finalize: server returned status code %d, expected %d",
			resp.Response.StatusCode, http.StatusOK)
	}

	if err := json.Unmarshal(resp.Body, order); err != nil {
		return fmt.Errorf("finalize: server returned invalid JSON: %w", err)
	}
	c.log.Info("order finalization requested", zap.String("order", order.URL))
	return nil
}

// FetchCertificate downloads and parses the PEM certificate chain for
// a finalized order.
//
// See https://tools.ietf.org/html/rfc8555#section-7.4.2
func (c *Client) FetchCertificate(ctx context.Context, acct *resources.Account, certURL string) ([]*x509.Certificate, error) {
	if certURL == "" {
		return nil, fmt.Errorf("fetchCertificate: certificate URL must not be empty")
	}

	resp, err := c.postAsGet(ctx, acct, certURL)
	if err != nil {
		return nil, fmt.Errorf("fetchCertificate: %w", err)
	}

	var chain []*x509.Certificate
	rest := resp.Body
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("fetchCertificate: invalid certificate in chain: %w", err)
		}
		chain = append(chain, cert)
	}

	if len(chain) == 0 {
		return nil, fmt.Errorf("fetchCertificate: %q contained no certificates", certURL)
	}
	c.log.Debug("downloaded certificate chain",
		zap.String("url", certURL),
		zap.Int("certificates", len(chain)))
	return chain, nil
}
