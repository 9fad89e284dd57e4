// Package responder implements the challenge response stores that serve
// proof material to the certificate authority's validation probes: an
// HTTP-01 token store with its well-known path handler, and a TLS-ALPN-01
// store that presents throwaway certificates during handshakes.
package responder

import (
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/certmint/certmint/acme"
)

// HTTPStore holds HTTP-01 challenge responses keyed by token and answers
// the authority's validation probes at the well-known challenge path. It is
// safe for concurrent use; concurrent validations never share a token.
type HTTPStore struct {
	log *zap.Logger

	mu        sync.RWMutex
	responses map[string]string
}

// NewHTTPStore creates an empty HTTPStore.
func NewHTTPStore(logger *zap.Logger) *HTTPStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPStore{
		log:       logger,
		responses: map[string]string{},
	}
}

// AddChallengeResponse makes keyAuth retrievable by token at the well-known
// challenge path.
func (s *HTTPStore) AddChallengeResponse(token, keyAuth string) {
	s.mu.Lock()
	s.responses[token] = keyAuth
	s.mu.Unlock()
	s.log.Debug("added HTTP-01 challenge response", zap.String("token", token))
}

// DeleteChallengeResponse removes a token's response.
func (s *HTTPStore) DeleteChallengeResponse(token string) {
	s.mu.Lock()
	delete(s.responses, token)
	s.mu.Unlock()
}

// ServeHTTP answers GET /.well-known/acme-challenge/{token} with the stored
// key authorization, or 404 for unknown tokens and other paths.
func (s *HTTPStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, ok := strings.CutPrefix(r.URL.Path, acme.HTTP01BasePath)
	if !ok || token == "" || strings.Contains(token, "/") {
		http.NotFound(w, r)
		return
	}

	s.mu.RLock()
	keyAuth, found := s.responses[token]
	s.mu.RUnlock()

	if !found {
		s.log.Debug("no HTTP-01 challenge response for token", zap.String("token", token))
		http.NotFound(w, r)
		return
	}

	s.log.Debug("served HTTP-01 challenge response", zap.String("token", token))
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(keyAuth))
}
