package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/certmint/certmint/acme"
	"github.com/certmint/certmint/acme/resources"
	acmenet "github.com/certmint/certmint/net"
)

// accountObject mirrors the ACME account resource body.
// See https://tools.ietf.org/html/rfc8555#section-7.1.2
type accountObject struct {
	Status      string   `json:"status"`
	Contact     []string `json:"contact,omitempty"`
	TermsAgreed *bool    `json:"termsOfServiceAgreed,omitempty"`
	Orders      string   `json:"orders,omitempty"`
}

// applyTo copies the server's view of the account onto the local record.
// A server that omits termsOfServiceAgreed has no outstanding terms
// requirement, so absence counts as agreed.
func (body accountObject) applyTo(acct *resources.Account) {
	acct.Status = body.Status
	acct.TermsAgreed = body.TermsAgreed == nil || *body.TermsAgreed
	if body.Orders != "" {
		acct.OrdersURL = body.Orders
	}
	if len(body.Contact) > 0 {
		acct.Contact = body.Contact
	}
}

// RegisterAccount creates the given Account resource with the ACME server,
// agreeing to the server's terms of service. The Account is updated with the
// URL returned in the server's response's Location header if the operation
// is successful, otherwise an error is returned.
//
// For more information on account creation see
// https://tools.ietf.org/html/rfc8555#section-7.3
func (c *Client) RegisterAccount(ctx context.Context, acct *resources.Account) error {
	if acct.URL != "" {
		return fmt.Errorf("register: account already exists under URL %q", acct.URL)
	}

	newAcctReq := struct {
		Contact   []string `json:"contact,omitempty"`
		ToSAgreed bool     `json:"termsOfServiceAgreed"`
	}{
		Contact:   acct.Contact,
		ToSAgreed: true,
	}

	reqBody, err := json.Marshal(&newAcctReq)
	if err != nil {
		return err
	}

	newAcctURL, err := c.endpointURL(ctx, acme.NewAccountEndpoint)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}

	c.log.Info("registering new ACME account",
		zap.Strings("contact", acct.Contact),
		zap.String("url", newAcctURL))
	resp, err := c.postJWS(ctx, acct, newAcctURL, reqBody, signOptions{embedJWK: true})
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}

	if resp.Response.StatusCode != http.StatusCreated {
		return fmt.Errorf("register: server returned status code %d, expected %d",
			resp.Response.StatusCode, http.StatusCreated)
	}

	if err := applyAccountResponse(acct, resp); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	c.log.Info("registered ACME account",
		zap.String("account", acct.URL),
		zap.Uint64("id", acct.ID))
	return nil
}

// LookupAccount asks the server for the existing account registered for the
// account's key, without creating one. On success the account's URL, status
// and terms agreement are refreshed from the server's view. An account
// unknown to the server yields an error wrapping the server's problem
// document.
//
// See the onlyReturnExisting behavior of
// https://tools.ietf.org/html/rfc8555#section-7.3.1
func (c *Client) LookupAccount(ctx context.Context, acct *resources.Account) error {
	lookupReq := struct {
		OnlyReturnExisting bool `json:"onlyReturnExisting"`
	}{
		OnlyReturnExisting: true,
	}

	reqBody, err := json.Marshal(&lookupReq)
	if err != nil {
		return err
	}

	newAcctURL, err := c.endpointURL(ctx, acme.NewAccountEndpoint)
	if err != nil {
		return fmt.Errorf("lookup: %w", err)
	}

	resp, err := c.postJWS(ctx, acct, newAcctURL, reqBody, signOptions{embedJWK: true})
	if err != nil {
		return fmt.Errorf("lookup: %w", err)
	}

	if resp.Response.StatusCode != http.StatusOK {
		return fmt.Errorf("lookup: server returned status code %d, expected %d",
			resp.Response.StatusCode, http.StatusOK)
	}

	if err := applyAccountResponse(acct, resp); err != nil {
		return fmt.Errorf("lookup: %w", err)
	}
	c.log.Debug("found existing ACME account",
		zap.String("account", acct.URL),
		zap.String("status", acct.Status))
	return nil
}

// UpdateAccount re-submits terms-of-service agreement (and the current
// contact addresses) for an already registered account.
//
// See https://tools.ietf.org/html/rfc8555#section-7.3.2
func (c *Client) UpdateAccount(ctx context.Context, acct *resources.Account) error {
	if acct.URL == "" {
		return fmt.Errorf("update: account has not been registered")
	}

	updateReq := struct {
		Contact   []string `json:"contact,omitempty"`
		ToSAgreed bool     `json:"termsOfServiceAgreed"`
	}{
		Contact:   acct.Contact,
		ToSAgreed: true,
	}

	reqBody, err := json.Marshal(&updateReq)
	if err != nil {
		return err
	}

	resp, err := c.postJWS(ctx, acct, acct.URL, reqBody, signOptions{})
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}

	if resp.Response.StatusCode != http.StatusOK {
		return fmt.Errorf("update: server returned status code %d, expected %d",
			resp.Response.StatusCode, http.StatusOK)
	}

	var body accountObject
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return fmt.Errorf("update: server returned invalid JSON: %w", err)
	}
	body.applyTo(acct)
	c.log.Info("updated ACME account terms agreement", zap.String("account", acct.URL))
	return nil
}

func applyAccountResponse(acct *resources.Account, resp *acmenet.Response) error {
	locHeader := resp.Response.Header.Get("Location")
	if locHeader == "" {
		return fmt.Errorf("server returned response with no Location header")
	}

	var body accountObject
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return fmt.Errorf("server returned invalid JSON: %w", err)
	}

	acct.SetURL(locHeader)
	body.applyTo(acct)
	return nil
}
