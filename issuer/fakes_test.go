package issuer

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/certmint/certmint/acme"
	"github.com/certmint/certmint/acme/resources"
)

// fakeAuthority implements Authority with overridable behavior per call.
// Unset functions fall back to a cooperative default so tests only script
// the calls they care about. All counters are guarded by mu.
type fakeAuthority struct {
	mu sync.Mutex

	tos         func() (string, error)
	register    func(acct *resources.Account) error
	lookup      func(acct *resources.Account) error
	update      func(acct *resources.Account) error
	listOrders  func() ([]string, error)
	fetchOrder  func(orderURL string) (*resources.Order, error)
	createOrder func(identifiers []resources.Identifier) (*resources.Order, error)
	fetchAuthz  func(authzURL string) (*resources.Authorization, error)
	validate    func(chall *resources.Challenge) error
	finalize    func(order *resources.Order, csrDER []byte) error
	fetchCert   func(certURL string) ([]*x509.Certificate, error)

	registers     int
	lookups       int
	updates       int
	orderCreates  int
	validations   []string
	finalizedCSRs [][]byte
}

func (f *fakeAuthority) TermsOfService(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tos != nil {
		return f.tos()
	}
	return "https://ca.test/terms", nil
}

func (f *fakeAuthority) RegisterAccount(_ context.Context, acct *resources.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registers++
	if f.register != nil {
		return f.register(acct)
	}
	acct.SetURL("https://ca.test/acct/1")
	acct.Status = resources.AccountValid
	acct.TermsAgreed = true
	return nil
}

func (f *fakeAuthority) LookupAccount(_ context.Context, acct *resources.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.lookup != nil {
		return f.lookup(acct)
	}
	acct.Status = resources.AccountValid
	acct.TermsAgreed = true
	return nil
}

func (f *fakeAuthority) UpdateAccount(_ context.Context, acct *resources.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.update != nil {
		return f.update(acct)
	}
	acct.TermsAgreed = true
	return nil
}

func (f *fakeAuthority) ListOrders(_ context.Context, _ *resources.Account) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listOrders != nil {
		return f.listOrders()
	}
	return nil, nil
}

func (f *fakeAuthority) CreateOrder(_ context.Context, _ *resources.Account, identifiers []resources.Identifier) (*resources.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderCreates++
	if f.createOrder != nil {
		return f.createOrder(identifiers)
	}
	order := &resources.Order{
		URL:         "https://ca.test/order/1",
		Status:      resources.OrderPending,
		Identifiers: identifiers,
		Finalize:    "https://ca.test/order/1/finalize",
	}
	for _, ident := range identifiers {
		order.Authorizations = append(order.Authorizations,
			"https://ca.test/authz/"+ident.Value)
	}
	return order, nil
}

func (f *fakeAuthority) FetchOrder(_ context.Context, _ *resources.Account, orderURL string) (*resources.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchOrder != nil {
		return f.fetchOrder(orderURL)
	}
	return nil, fmt.Errorf("no order at %q", orderURL)
}

func (f *fakeAuthority) FetchAuthorization(_ context.Context, _ *resources.Account, authzURL string) (*resources.Authorization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchAuthz != nil {
		return f.fetchAuthz(authzURL)
	}
	return nil, fmt.Errorf("no authorization at %q", authzURL)
}

func (f *fakeAuthority) ValidateChallenge(_ context.Context, _ *resources.Account, chall *resources.Challenge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validations = append(f.validations, chall.URL)
	if f.validate != nil {
		return f.validate(chall)
	}
	return nil
}

func (f *fakeAuthority) FinalizeOrder(_ context.Context, _ *resources.Account, order *resources.Order, csrDER []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalizedCSRs = append(f.finalizedCSRs, csrDER)
	if f.finalize != nil {
		return f.finalize(order, csrDER)
	}
	order.Status = resources.OrderValid
	order.Certificate = "https://ca.test/cert/1"
	return nil
}

func (f *fakeAuthority) FetchCertificate(_ context.Context, _ *resources.Account, certURL string) ([]*x509.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchCert != nil {
		return f.fetchCert(certURL)
	}
	cert, _, err := selfSignedCert("ca.test")
	if err != nil {
		return nil, err
	}
	return []*x509.Certificate{cert}, nil
}

func (f *fakeAuthority) validatedChallenges() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.validations...)
}

// authzScript builds a FetchAuthorization implementation that replays the
// given status sequence per URL, repeating the final state once the script
// is exhausted.
func authzScript(scripts map[string][]resources.Authorization) func(string) (*resources.Authorization, error) {
	seen := map[string]int{}
	return func(authzURL string) (*resources.Authorization, error) {
		states, ok := scripts[authzURL]
		if !ok || len(states) == 0 {
			return nil, fmt.Errorf("no authorization at %q", authzURL)
		}
		idx := seen[authzURL]
		seen[authzURL]++
		if idx >= len(states) {
			idx = len(states) - 1
		}
		authz := states[idx]
		authz.URL = authzURL
		return &authz, nil
	}
}

type fakeAccountStore struct {
	mu     sync.Mutex
	stored *resources.Account
	getErr error
	saves  int
}

func (s *fakeAccountStore) GetAccount() (*resources.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.stored, nil
}

func (s *fakeAccountStore) SaveAccount(acct *resources.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.stored = acct
	return nil
}

func (s *fakeAccountStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type fakeHTTPStore struct {
	mu    sync.Mutex
	added map[string]string
}

func newFakeHTTPStore() *fakeHTTPStore {
	return &fakeHTTPStore{added: map[string]string{}}
}

func (s *fakeHTTPStore) AddChallengeResponse(token, keyAuth string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.added[token] = keyAuth
}

func (s *fakeHTTPStore) response(token string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keyAuth, ok := s.added[token]
	return keyAuth, ok
}

func (s *fakeHTTPStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.added)
}

type fakeALPNStore struct {
	mu         sync.Mutex
	enabled    bool
	prepareErr error
	prepared   map[string]string
	discarded  []string
}

func newFakeALPNStore(enabled bool) *fakeALPNStore {
	return &fakeALPNStore{enabled: enabled, prepared: map[string]string{}}
}

func (s *fakeALPNStore) Enabled() bool {
	return s.enabled
}

func (s *fakeALPNStore) PrepareChallengeCert(domain, keyAuth string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prepareErr != nil {
		return s.prepareErr
	}
	s.prepared[domain] = keyAuth
	return nil
}

func (s *fakeALPNStore) DiscardChallenge(domain string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discarded = append(s.discarded, domain)
}

func (s *fakeALPNStore) discardedDomains() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.discarded...)
}

func (s *fakeALPNStore) preparedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prepared)
}

// testConfig returns an issuance config with fast polling for tests.
func testConfig(domains ...string) Config {
	return Config{
		Domains:      domains,
		ContactEmail: "admin@example.com",
		AcceptTOS:    func(string) bool { return true },
		PollInterval: time.Millisecond,
		PollAttempts: 5,
	}
}

// firedGate returns a Gate that has already been opened.
func firedGate() *Gate {
	g := NewGate()
	g.Fire()
	return g
}

func storedAccount(t *testing.T) *resources.Account {
	t.Helper()
	acct, err := resources.NewAccount([]string{"admin@example.com"}, nil)
	require.NoError(t, err)
	acct.SetURL("https://ca.test/acct/42")
	acct.Status = resources.AccountValid
	acct.TermsAgreed = true
	return acct
}

func pendingAuthz(domain string) resources.Authorization {
	return resources.Authorization{
		Status:     string(resources.AuthorizationPending),
		Identifier: resources.Identifier{Type: acme.IdentifierDNS, Value: domain},
		Challenges: []resources.Challenge{
			{
				Type:  acme.ChallengeHTTP01,
				URL:   "https://ca.test/chall/" + domain + "/http",
				Token: "token-http-" + domain,
			},
			{
				Type:  acme.ChallengeTLSALPN01,
				URL:   "https://ca.test/chall/" + domain + "/alpn",
				Token: "token-alpn-" + domain,
			},
		},
	}
}

func authzInState(domain string, status resources.AuthorizationStatus) resources.Authorization {
	authz := pendingAuthz(domain)
	authz.Status = string(status)
	return authz
}

func selfSignedCert(commonName string) (*x509.Certificate, *ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     []string{commonName},
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, key.Public(), key)
	if err != nil {
		return nil, nil, err
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, nil, err
	}
	return cert, key, nil
}
