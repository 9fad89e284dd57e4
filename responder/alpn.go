package responder

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/certmint/certmint/acme"
)

// idPeACMEIdentifier is the X.509 extension OID carrying the TLS-ALPN-01
// challenge digest. See RFC 8737 section 3.
var idPeACMEIdentifier = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 31}

// ALPNStore holds throwaway TLS-ALPN-01 challenge certificates keyed by
// domain name and selects them during handshakes that request the domain
// via SNI with the acme-tls/1 protocol. A disabled store never prepares
// certificates and never matches a handshake.
type ALPNStore struct {
	enabled bool
	log     *zap.Logger

	mu    sync.RWMutex
	certs map[string]*tls.Certificate
}

// NewALPNStore creates an empty ALPNStore.
func NewALPNStore(enabled bool, logger *zap.Logger) *ALPNStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ALPNStore{
		enabled: enabled,
		log:     logger,
		certs:   map[string]*tls.Certificate{},
	}
}

// Enabled reports whether TLS-ALPN-01 challenges should be attempted.
func (s *ALPNStore) Enabled() bool {
	return s.enabled
}

// PrepareChallengeCert generates and registers the self-signed challenge
// certificate for the domain, carrying the SHA-256 digest of the key
// authorization in the critical acmeIdentifier extension required by
// RFC 8737.
func (s *ALPNStore) PrepareChallengeCert(domain, keyAuth string) error {
	cert, err := makeChallengeCert(domain, keyAuth)
	if err != nil {
		return fmt.Errorf("building TLS-ALPN-01 certificate for %q: %w", domain, err)
	}

	s.mu.Lock()
	s.certs[domain] = cert
	s.mu.Unlock()
	s.log.Debug("registered TLS-ALPN-01 challenge certificate", zap.String("domain", domain))
	return nil
}

// DiscardChallenge removes the domain's challenge certificate. Discarding
// a domain that was never prepared is a no-op.
func (s *ALPNStore) DiscardChallenge(domain string) {
	s.mu.Lock()
	delete(s.certs, domain)
	s.mu.Unlock()
	s.log.Debug("discarded TLS-ALPN-01 challenge certificate", zap.String("domain", domain))
}

// GetCertificate selects the challenge certificate for handshakes that
// offer the acme-tls/1 protocol and request a prepared domain through SNI.
// All other handshakes get (nil, nil) so an outer tls.Config can fall back
// to its regular certificate selection.
func (s *ALPNStore) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if !s.enabled || !offersALPNProto(hello) {
		return nil, nil
	}

	domain := strings.TrimSuffix(hello.ServerName, ".")
	s.mu.RLock()
	cert := s.certs[domain]
	s.mu.RUnlock()

	if cert == nil {
		return nil, fmt.Errorf("no TLS-ALPN-01 challenge prepared for %q", domain)
	}
	s.log.Debug("presenting TLS-ALPN-01 challenge certificate", zap.String("domain", domain))
	return cert, nil
}

// TLSConfig returns a tls.Config that answers acme-tls/1 validation probes
// from this store.
func (s *ALPNStore) TLSConfig() *tls.Config {
	return &tls.Config{
		NextProtos:     []string{acme.ALPNProto},
		GetCertificate: s.GetCertificate,
	}
}

func offersALPNProto(hello *tls.ClientHelloInfo) bool {
	for _, proto := range hello.SupportedProtos {
		if proto == acme.ALPNProto {
			return true
		}
	}
	return false
}

// makeChallengeCert self-signs a short-lived certificate for the domain
// with the acmeIdentifier extension over SHA-256(keyAuth).
func makeChallengeCert(domain, keyAuth string) (*tls.Certificate, error) {
	digest := sha256.Sum256([]byte(keyAuth))
	extValue, err := asn1.Marshal(digest[:])
	if err != nil {
		return nil, err
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName: domain,
		},
		NotBefore: time.Now().Add(-time.Hour),
		NotAfter:  time.Now().Add(24 * time.Hour),
		DNSNames:  []string{domain},
		ExtraExtensions: []pkix.Extension{
			{
				Id:       idPeACMEIdentifier,
				Critical: true,
				Value:    extValue,
			},
		},
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, key.Public(), key)
	if err != nil {
		return nil, err
	}

	leaf, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, err
	}

	return &tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  key,
		Leaf:        leaf,
	}, nil
}
