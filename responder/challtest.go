package responder

import (
	"github.com/letsencrypt/challtestsrv"
)

// ChallSrvStore adapts a running challtestsrv instance to the issuer's
// challenge store interfaces. It is meant for development against a local
// authority such as Pebble, where the test server answers HTTP-01,
// TLS-ALPN-01 and DNS queries in one process.
type ChallSrvStore struct {
	srv *challtestsrv.ChallSrv
}

// NewChallSrvStore wraps srv. The caller owns the server's lifecycle.
func NewChallSrvStore(srv *challtestsrv.ChallSrv) *ChallSrvStore {
	return &ChallSrvStore{srv: srv}
}

// AddChallengeResponse registers an HTTP-01 response with the test server.
func (c *ChallSrvStore) AddChallengeResponse(token, keyAuth string) {
	c.srv.AddHTTPOneChallenge(token, keyAuth)
}

// DeleteChallengeResponse removes an HTTP-01 response.
func (c *ChallSrvStore) DeleteChallengeResponse(token string) {
	c.srv.DeleteHTTPOneChallenge(token)
}

// Enabled reports true: the test server always runs a TLS-ALPN-01 listener.
func (c *ChallSrvStore) Enabled() bool {
	return true
}

// PrepareChallengeCert registers the key authorization for the domain with
// the test server, which mints the challenge certificate itself.
func (c *ChallSrvStore) PrepareChallengeCert(domain, keyAuth string) error {
	c.srv.AddTLSALPNChallenge(domain, keyAuth)
	return nil
}

// DiscardChallenge removes the domain's TLS-ALPN-01 registration.
func (c *ChallSrvStore) DiscardChallenge(domain string) {
	c.srv.DeleteTLSALPNChallenge(domain)
}
