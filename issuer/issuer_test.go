package issuer

import (
	"context"
	"crypto/x509"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certmint/certmint/acme/resources"
)

func TestNewRequiresCollaborators(t *testing.T) {
	authority := &fakeAuthority{}
	accounts := &fakeAccountStore{}
	httpStore := newFakeHTTPStore()
	alpnStore := newFakeALPNStore(true)
	gate := NewGate()
	cfg := testConfig("example.com")

	cases := []struct {
		name string
		err  string
		make func() (*Issuer, error)
	}{
		{"nil authority", "authority", func() (*Issuer, error) {
			return New(nil, accounts, httpStore, alpnStore, gate, cfg, nil)
		}},
		{"nil account store", "account store", func() (*Issuer, error) {
			return New(authority, nil, httpStore, alpnStore, gate, cfg, nil)
		}},
		{"nil http store", "HTTP challenge store", func() (*Issuer, error) {
			return New(authority, accounts, nil, alpnStore, gate, cfg, nil)
		}},
		{"nil alpn store", "TLS-ALPN challenge store", func() (*Issuer, error) {
			return New(authority, accounts, httpStore, nil, gate, cfg, nil)
		}},
		{"nil gate", "readiness gate", func() (*Issuer, error) {
			return New(authority, accounts, httpStore, alpnStore, nil, cfg, nil)
		}},
		{"no domains", "at least one domain", func() (*Issuer, error) {
			return New(authority, accounts, httpStore, alpnStore, gate, Config{}, nil)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.make()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.err)
		})
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	iss, err := New(&fakeAuthority{}, &fakeAccountStore{}, newFakeHTTPStore(),
		newFakeALPNStore(true), NewGate(), Config{
			Domains:      []string{"example.com"},
			ContactEmail: "admin@example.com",
		}, nil)
	require.NoError(t, err)

	assert.Equal(t, "ecdsa", iss.cfg.KeyAlgorithm)
	assert.Equal(t, defaultPollInterval, iss.cfg.PollInterval)
	assert.Equal(t, defaultPollAttempts, iss.cfg.PollAttempts)
}

func TestIssueHappyPath(t *testing.T) {
	domains := []string{"example.com", "www.example.com"}
	leafCert, _, err := selfSignedCert("example.com")
	require.NoError(t, err)
	issuerCert, _, err := selfSignedCert("ca.test")
	require.NoError(t, err)

	scripts := map[string][]resources.Authorization{}
	for _, domain := range domains {
		scripts["https://ca.test/authz/"+domain] = []resources.Authorization{
			pendingAuthz(domain),
			authzInState(domain, resources.AuthorizationValid),
		}
	}
	authority := &fakeAuthority{
		fetchAuthz: authzScript(scripts),
		fetchCert: func(string) ([]*x509.Certificate, error) {
			return []*x509.Certificate{leafCert, issuerCert}, nil
		},
	}
	accounts := &fakeAccountStore{}
	alpnStore := newFakeALPNStore(true)

	iss, err := New(authority, accounts, newFakeHTTPStore(), alpnStore,
		firedGate(), testConfig(domains...), nil)
	require.NoError(t, err)

	bundle, err := iss.Issue(context.Background())
	require.NoError(t, err)

	require.Len(t, bundle.Chain, 2)
	assert.Same(t, leafCert, bundle.Leaf())
	assert.NotNil(t, bundle.Key)

	// The submitted CSR names the first domain as subject and covers all of
	// them as SANs.
	require.Len(t, authority.finalizedCSRs, 1)
	csr, err := x509.ParseCertificateRequest(authority.finalizedCSRs[0])
	require.NoError(t, err)
	assert.Equal(t, "example.com", csr.Subject.CommonName)
	assert.ElementsMatch(t, domains, csr.DNSNames)

	// One account was registered and persisted.
	assert.Equal(t, 1, authority.registers)
	assert.Equal(t, 1, accounts.saveCount())

	// Every prepared throwaway certificate was discarded again.
	assert.ElementsMatch(t, domains, alpnStore.discardedDomains())
}

func TestIssueFailingDomainDoesNotStarveSiblings(t *testing.T) {
	domains := []string{"a.example.com", "b.example.com", "c.example.com"}

	invalid := authzInState("b.example.com", resources.AuthorizationInvalid)
	invalid.Challenges[0].Error = &resources.Problem{
		Type:   "urn:ietf:params:acme:error:dns",
		Detail: "NXDOMAIN looking up b.example.com",
		Status: 400,
	}
	scripts := map[string][]resources.Authorization{
		// a needs two polls, b fails on its first poll, c needs four.
		"https://ca.test/authz/a.example.com": {
			pendingAuthz("a.example.com"),
			pendingAuthz("a.example.com"),
			authzInState("a.example.com", resources.AuthorizationValid),
		},
		"https://ca.test/authz/b.example.com": {
			pendingAuthz("b.example.com"),
			invalid,
		},
		"https://ca.test/authz/c.example.com": {
			pendingAuthz("c.example.com"),
			pendingAuthz("c.example.com"),
			pendingAuthz("c.example.com"),
			pendingAuthz("c.example.com"),
			authzInState("c.example.com", resources.AuthorizationValid),
		},
	}
	authority := &fakeAuthority{fetchAuthz: authzScript(scripts)}
	alpnStore := newFakeALPNStore(true)

	iss, err := New(authority, &fakeAccountStore{}, newFakeHTTPStore(), alpnStore,
		firedGate(), testConfig(domains...), nil)
	require.NoError(t, err)

	_, err = iss.Issue(context.Background())

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "b.example.com", verr.Domain)
	assert.Equal(t, FailureInvalid, verr.Kind)
	assert.Contains(t, verr.Error(), "NXDOMAIN")

	// Every domain ran its validation to completion: each one prepared a
	// throwaway certificate and discarded it, b's early failure included.
	discarded := alpnStore.discardedDomains()
	sort.Strings(discarded)
	assert.Equal(t, domains, discarded)

	// The slowest sibling finished its full poll sequence despite b's
	// failure: both of c's challenges were signalled.
	validated := authority.validatedChallenges()
	assert.Contains(t, validated, "https://ca.test/chall/c.example.com/http")
	assert.Contains(t, validated, "https://ca.test/chall/c.example.com/alpn")

	// Nothing was finalized on a failed issuance.
	assert.Empty(t, authority.finalizedCSRs)
}

func TestIssueFailsWhenOrderTurnsInvalidDuringFinalization(t *testing.T) {
	scripts := map[string][]resources.Authorization{
		"https://ca.test/authz/example.com": {
			authzInState("example.com", resources.AuthorizationValid),
		},
	}
	authority := &fakeAuthority{
		fetchAuthz: authzScript(scripts),
		finalize: func(order *resources.Order, _ []byte) error {
			order.Status = resources.OrderProcessing
			order.Certificate = ""
			return nil
		},
		fetchOrder: func(orderURL string) (*resources.Order, error) {
			return &resources.Order{
				URL:    orderURL,
				Status: resources.OrderInvalid,
			}, nil
		},
	}

	iss, err := New(authority, &fakeAccountStore{}, newFakeHTTPStore(),
		newFakeALPNStore(true), firedGate(), testConfig("example.com"), nil)
	require.NoError(t, err)

	_, err = iss.Issue(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "became invalid")
}
