// Package keys offers utility functions for working with crypto.Signers,
// JWKs, key authorizations and PEM serialization.
package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"

	jose "github.com/go-jose/go-jose/v4"
)

// Key algorithm names accepted by NewSigner.
const (
	AlgorithmECDSA = "ecdsa"
	AlgorithmRSA   = "rsa"
)

// NewSigner generates a fresh private key for the named algorithm. ECDSA keys
// use the P-256 curve, RSA keys are 2048 bits.
func NewSigner(algorithm string) (crypto.Signer, error) {
	switch algorithm {
	case AlgorithmECDSA:
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case AlgorithmRSA:
		return rsa.GenerateKey(rand.Reader, 2048)
	}
	return nil, fmt.Errorf("unknown key algorithm %q", algorithm)
}

// SignatureAlgorithm returns the JWS signature algorithm matching the
// signer's key type.
func SignatureAlgorithm(signer crypto.Signer) (jose.SignatureAlgorithm, error) {
	switch signer.(type) {
	case *ecdsa.PrivateKey:
		return jose.ES256, nil
	case *rsa.PrivateKey:
		return jose.RS256, nil
	}
	return "", fmt.Errorf("signer was unknown type: %T", signer)
}

// JWKForSigner wraps the signer's public key in a JWK.
func JWKForSigner(signer crypto.Signer) jose.JSONWebKey {
	return jose.JSONWebKey{
		Key: signer.Public(),
	}
}

// JWKThumbprint computes the base64url encoded SHA-256 thumbprint of the
// signer's public key JWK. See RFC 7638.
func JWKThumbprint(signer crypto.Signer) (string, error) {
	jwk := JWKForSigner(signer)
	thumbBytes, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(thumbBytes), nil
}

// KeyAuth computes the key authorization for a challenge token: the token
// joined with the account key's JWK thumbprint.
// See https://tools.ietf.org/html/rfc8555#section-8.1
func KeyAuth(signer crypto.Signer, token string) (string, error) {
	thumbprint, err := JWKThumbprint(signer)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s.%s", token, thumbprint), nil
}

// MarshalSigner serializes a private key to DER bytes along with the
// algorithm name NewSigner would accept to recreate a key of the same type.
func MarshalSigner(signer crypto.Signer) ([]byte, string, error) {
	switch k := signer.(type) {
	case *ecdsa.PrivateKey:
		keyBytes, err := x509.MarshalECPrivateKey(k)
		return keyBytes, AlgorithmECDSA, err
	case *rsa.PrivateKey:
		return x509.MarshalPKCS1PrivateKey(k), AlgorithmRSA, nil
	}
	return nil, "", fmt.Errorf("signer was unknown type: %T", signer)
}

// UnmarshalSigner deserializes a private key produced by MarshalSigner.
func UnmarshalSigner(keyBytes []byte, algorithm string) (crypto.Signer, error) {
	switch algorithm {
	case AlgorithmECDSA:
		return x509.ParseECPrivateKey(keyBytes)
	case AlgorithmRSA:
		return x509.ParsePKCS1PrivateKey(keyBytes)
	}
	return nil, fmt.Errorf("unknown key algorithm %q", algorithm)
}

// SignerToPEM serializes a private key to a PEM block.
func SignerToPEM(signer crypto.Signer) ([]byte, error) {
	var keyBytes []byte
	var keyHeader string
	var err error
	switch k := signer.(type) {
	case *ecdsa.PrivateKey:
		keyBytes, err = x509.MarshalECPrivateKey(k)
		keyHeader = "EC PRIVATE KEY"
	case *rsa.PrivateKey:
		keyBytes = x509.MarshalPKCS1PrivateKey(k)
		keyHeader = "RSA PRIVATE KEY"
	default:
		err = fmt.Errorf("unknown key type: %T", k)
	}
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:  keyHeader,
		Bytes: keyBytes,
	}), nil
}
