// Package resources provides types for representing and interacting with ACME
// protocol resources.
package resources

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"
)

// Account holds information related to a single ACME Account resource. If the
// account has an empty URL it has not yet been registered server-side with the
// ACME server.
//
// The URL field holds the server assigned Account URL that is assigned at the
// time of account creation and used as the JWS KeyID for authenticating ACME
// requests with the Account's registered keypair.
//
// The ID field is the numeric tail of the Account URL. Servers that do not use
// numeric account identifiers leave it zero.
//
// For information about the Account resource see
// https://tools.ietf.org/html/rfc8555#section-7.1.2
type Account struct {
	// The server assigned Account URL. This is used for the JWS KeyID when
	// authenticating ACME requests using the Account's registered keypair.
	URL string
	// The numeric identifier parsed from the final segment of the Account
	// URL, or zero when the segment is not numeric.
	ID uint64
	// If not nil, a slice of one or more email addresses to be used as the
	// ACME Account's "mailto://" Contact addresses.
	Contact []string
	// The private key used for the ACME account's keypair. The public
	// component is computed from this key automatically.
	Signer crypto.Signer
	// The Status of the account as reported by the server ("valid",
	// "deactivated" or "revoked").
	// See https://tools.ietf.org/html/rfc8555#section-7.1.6
	Status string
	// Whether the account has agreed to the server's terms of service.
	TermsAgreed bool
	// A URL from which a list of the account's order URLs can be fetched.
	OrdersURL string
}

// String returns the Account's URL or an empty string if it has not been
// registered with the ACME server.
func (a Account) String() string {
	return a.URL
}

// SetURL stores the server assigned Account URL and derives the numeric ID
// from its final path segment. A non-numeric segment leaves the ID zero.
func (a *Account) SetURL(url string) {
	a.URL = url
	segments := strings.Split(strings.TrimRight(url, "/"), "/")
	if len(segments) == 0 {
		return
	}
	if id, err := strconv.ParseUint(segments[len(segments)-1], 10, 64); err == nil {
		a.ID = id
	} else {
		a.ID = 0
	}
}

// AccountValid is the Status an ACME server reports for a usable account.
const AccountValid = "valid"

// NewAccount creates an ACME account in-memory. *Important:* the created
// Account is *not* registered with the ACME server until it is explicitly
// created server-side using a client instance's RegisterAccount function.
//
// The emails argument is a slice of zero or more email addresses that should
// be used as the Account's Contact information.
//
// The signer argument is a private key that should be used for the Account
// keypair. If it is nil a new randomly generated ECDSA key is used.
func NewAccount(emails []string, signer crypto.Signer) (*Account, error) {
	var contacts []string
	for _, e := range emails {
		if e == "" {
			continue
		}
		contacts = append(contacts, fmt.Sprintf("mailto:%s", e))
	}

	if signer == nil {
		randKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, err
		}
		signer = randKey
	}

	return &Account{
		Contact: contacts,
		Signer:  signer,
	}, nil
}
