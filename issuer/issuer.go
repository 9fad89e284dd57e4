// Package issuer orchestrates automated certificate acquisition from an
// ACME-compatible certificate authority: it bootstraps the authority
// account, finds or creates an order for the configured domains, drives the
// per-domain authorization validation state machine concurrently across
// domains, and finalizes the order into an exportable certificate bundle.
//
// The ACME wire protocol, account persistence and challenge response serving
// are collaborators supplied at construction; the issuer depends on their
// interfaces only.
package issuer

import (
	"context"
	"crypto/x509"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/certmint/certmint/acme/keys"
	"github.com/certmint/certmint/acme/resources"
)

// Authority is the ACME server collaborator. Every call is synchronous,
// honors its context, and may fail with an error carrying the authority's
// problem document. Implemented by the acme/client package.
type Authority interface {
	TermsOfService(ctx context.Context) (string, error)
	RegisterAccount(ctx context.Context, acct *resources.Account) error
	LookupAccount(ctx context.Context, acct *resources.Account) error
	UpdateAccount(ctx context.Context, acct *resources.Account) error
	ListOrders(ctx context.Context, acct *resources.Account) ([]string, error)
	CreateOrder(ctx context.Context, acct *resources.Account, identifiers []resources.Identifier) (*resources.Order, error)
	FetchOrder(ctx context.Context, acct *resources.Account, orderURL string) (*resources.Order, error)
	FetchAuthorization(ctx context.Context, acct *resources.Account, authzURL string) (*resources.Authorization, error)
	ValidateChallenge(ctx context.Context, acct *resources.Account, chall *resources.Challenge) error
	FinalizeOrder(ctx context.Context, acct *resources.Account, order *resources.Order, csrDER []byte) error
	FetchCertificate(ctx context.Context, acct *resources.Account, certURL string) ([]*x509.Certificate, error)
}

// AccountStore persists the authority account across runs. GetAccount
// returns (nil, nil) when no account has been stored yet.
type AccountStore interface {
	GetAccount() (*resources.Account, error)
	SaveAccount(acct *resources.Account) error
}

// HTTPChallengeStore receives HTTP-01 challenge responses. The key
// authorization becomes retrievable by token over plain HTTP at the
// well-known challenge path; the issuer never removes entries.
type HTTPChallengeStore interface {
	AddChallengeResponse(token, keyAuth string)
}

// TLSALPNChallengeStore receives TLS-ALPN-01 challenge certificates, keyed
// by domain name. A disabled store is never prepared. Every successful
// PrepareChallengeCert is paired with a DiscardChallenge once validation of
// that domain concludes, whatever the outcome.
type TLSALPNChallengeStore interface {
	Enabled() bool
	PrepareChallengeCert(domain, keyAuth string) error
	DiscardChallenge(domain string)
}

// Config holds the issuance parameters.
type Config struct {
	// Domains is the list of domain names the certificate must cover. The
	// first entry becomes the certificate's subject common name; for order
	// reuse only set-equality of the whole list matters.
	Domains []string
	// ContactEmail is registered as the authority account's contact address.
	ContactEmail string
	// KeyAlgorithm selects the certificate key type ("ecdsa" or "rsa").
	KeyAlgorithm string
	// AcceptTOS is consulted with the authority's current terms-of-service
	// URL before a new account is registered. Returning false (or leaving
	// AcceptTOS nil) fails the issuance.
	AcceptTOS func(tosURL string) bool
	// PollInterval is the delay between authorization status polls.
	// Defaults to 2 seconds.
	PollInterval time.Duration
	// PollAttempts caps how often an authorization is polled before the
	// validation is classified as timed out. Defaults to 60.
	PollAttempts int
}

const (
	defaultPollInterval = 2 * time.Second
	defaultPollAttempts = 60
)

// Issuer acquires certificates. It holds configuration and collaborators
// only; account and order state travels through an explicit session value,
// so a single Issuer can safely run concurrent issuances.
type Issuer struct {
	authority Authority
	accounts  AccountStore
	http      HTTPChallengeStore
	alpn      TLSALPNChallengeStore
	ready     *Gate
	cfg       Config
	log       *zap.Logger
}

// New constructs an Issuer. All collaborators are required; the ready gate
// must be fired by the caller once the challenge serving endpoint accepts
// connections.
func New(authority Authority, accounts AccountStore, httpStore HTTPChallengeStore, alpnStore TLSALPNChallengeStore, ready *Gate, cfg Config, logger *zap.Logger) (*Issuer, error) {
	if authority == nil {
		return nil, fmt.Errorf("issuer: authority must not be nil")
	}
	if accounts == nil {
		return nil, fmt.Errorf("issuer: account store must not be nil")
	}
	if httpStore == nil {
		return nil, fmt.Errorf("issuer: HTTP challenge store must not be nil")
	}
	if alpnStore == nil {
		return nil, fmt.Errorf("issuer: TLS-ALPN challenge store must not be nil")
	}
	if ready == nil {
		return nil, fmt.Errorf("issuer: readiness gate must not be nil")
	}
	if len(cfg.Domains) == 0 {
		return nil, fmt.Errorf("issuer: at least one domain is required")
	}
	if cfg.KeyAlgorithm == "" {
		cfg.KeyAlgorithm = keys.AlgorithmECDSA
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = defaultPollAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Issuer{
		authority: authority,
		accounts:  accounts,
		http:      httpStore,
		alpn:      alpnStore,
		ready:     ready,
		cfg:       cfg,
		log:       logger,
	}, nil
}

// session carries the account and order context of one issuance attempt
// through the call chain. It is established sequentially before the
// concurrent validation phase and read-only during it.
type session struct {
	account *resources.Account
	order   *resources.Order
}

// Issue runs one full certificate acquisition: account bootstrap, order
// resolution, concurrent validation of every domain authorization, and
// finalization into a Bundle.
//
// Validation tasks are joined with an all-succeed barrier. A failing domain
// does not cancel its siblings; every domain runs to completion before the
// aggregate result is reported, and the first failure becomes the returned
// error.
func (i *Issuer) Issue(ctx context.Context) (*Bundle, error) {
	acct, err := i.ensureAccount(ctx)
	if err != nil {
		return nil, err
	}
	sess := session{account: acct}

	order, err := i.resolveOrder(ctx, sess)
	if err != nil {
		return nil, err
	}
	sess.order = order

	// Plain errgroup.Group, not WithContext: one domain's failure must not
	// starve a slower sibling of its remaining poll attempts.
	var group errgroup.Group
	for _, authzURL := range order.Authorizations {
		authzURL := authzURL
		group.Go(func() error {
			return i.validateAuthorization(ctx, sess, authzURL)
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	return i.finalizeOrder(ctx, sess)
}
