// Package acme provides ACME protocol constants. See RFC 8555.
package acme

const (
	// Directory constants
	// See https://tools.ietf.org/html/rfc8555#section-9.7.5

	// NewNonceEndpoint is the ACME directory key for the newNonce endpoint.
	NewNonceEndpoint = "newNonce"
	// NewAccountEndpoint is the ACME directory key for the newAccount endpoint.
	NewAccountEndpoint = "newAccount"
	// NewOrderEndpoint is the ACME directory key for the newOrder endpoint.
	NewOrderEndpoint = "newOrder"

	// ReplayNonceHeader is the HTTP response header used by ACME to
	// communicate a fresh nonce.
	// See https://tools.ietf.org/html/rfc8555#section-9.3
	ReplayNonceHeader = "Replay-Nonce"

	// Challenge type identifiers.
	// See https://tools.ietf.org/html/rfc8555#section-8 and RFC 8737.
	ChallengeHTTP01    = "http-01"
	ChallengeTLSALPN01 = "tls-alpn-01"
	ChallengeDNS01     = "dns-01"

	// IdentifierDNS is the only identifier type supported by most ACME
	// servers in practice.
	IdentifierDNS = "dns"

	// HTTP01BasePath is the well-known path prefix the CA probes for
	// HTTP-01 challenge responses. See RFC 8555 section 8.3.
	HTTP01BasePath = "/.well-known/acme-challenge/"

	// ALPNProto is the TLS ALPN protocol identifier a server must negotiate
	// to answer a TLS-ALPN-01 validation probe. See RFC 8737 section 4.
	ALPNProto = "acme-tls/1"

	// ProblemTypeAccountDoesNotExist is the problem document type an ACME
	// server returns for an onlyReturnExisting lookup of an unknown key.
	// See https://tools.ietf.org/html/rfc8555#section-7.3.1
	ProblemTypeAccountDoesNotExist = "urn:ietf:params:acme:error:accountDoesNotExist"
)
