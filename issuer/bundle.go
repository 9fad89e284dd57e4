package issuer

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	pkcs12 "software.sslmate.com/src/go-pkcs12"

	"github.com/certmint/certmint/acme/keys"
)

// Bundle is the result of a successful issuance: the issued certificate
// chain, leaf first, together with the private key the signing request was
// built with.
type Bundle struct {
	Chain []*x509.Certificate
	Key   crypto.Signer
}

// Leaf returns the end-entity certificate.
func (b *Bundle) Leaf() *x509.Certificate {
	if len(b.Chain) == 0 {
		return nil
	}
	return b.Chain[0]
}

// Export packages the key and chain into a password-protected PKCS#12
// container. An empty password is accepted and produces a container
// importable by tooling that expects one.
func (b *Bundle) Export(password string) ([]byte, error) {
	leaf := b.Leaf()
	if leaf == nil {
		return nil, fmt.Errorf("bundle has no certificates")
	}
	return pkcs12.Modern.Encode(b.Key, leaf, b.Chain[1:], password)
}

// CertificatePEM serializes the full chain, leaf first, as concatenated PEM
// blocks.
func (b *Bundle) CertificatePEM() []byte {
	var out []byte
	for _, cert := range b.Chain {
		out = append(out, pem.EncodeToMemory(&pem.Block{
			Type:  "CERTIFICATE",
			Bytes: cert.Raw,
		})...)
	}
	return out
}

// KeyPEM serializes the private key as a PEM block.
func (b *Bundle) KeyPEM() ([]byte, error) {
	return keys.SignerToPEM(b.Key)
}
