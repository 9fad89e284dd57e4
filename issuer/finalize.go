package issuer

import (
	"context"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/certmint/certmint/acme/keys"
	"github.com/certmint/certmint/acme/resources"
)

// finalizeOrder builds the certificate signing request, submits it against
// the fully-authorized order, waits for the authority to issue, and
// packages the chain with the fresh private key. The subject common name is
// always the first configured domain.
func (i *Issuer) finalizeOrder(ctx context.Context, sess session) (*Bundle, error) {
	certKey, err := keys.NewSigner(i.cfg.KeyAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("generating certificate key: %w", err)
	}

	template := x509.CertificateRequest{
		Subject: pkix.Name{
			CommonName: i.cfg.Domains[0],
		},
		DNSNames: i.cfg.Domains,
	}
	csrDER, err := x509.CreateCertificateRequest(rand.Reader, &template, certKey)
	if err != nil {
		return nil, fmt.Errorf("creating certificate request: %w", err)
	}

	order := sess.order
	if err := i.authority.FinalizeOrder(ctx, sess.account, order, csrDER); err != nil {
		return nil, err
	}

	certURL, err := i.awaitCertificate(ctx, sess)
	if err != nil {
		return nil, err
	}

	chain, err := i.authority.FetchCertificate(ctx, sess.account, certURL)
	if err != nil {
		return nil, err
	}

	i.log.Info("certificate issued",
		zap.String("order", order.URL),
		zap.String("commonName", i.cfg.Domains[0]),
		zap.Int("chainLength", len(chain)))
	return &Bundle{
		Chain: chain,
		Key:   certKey,
	}, nil
}

// awaitCertificate waits for the finalized order to carry a certificate
// URL, re-fetching while the authority reports the order as still
// processing.
// See https://tools.ietf.org/html/rfc8555#section-7.4
func (i *Issuer) awaitCertificate(ctx context.Context, sess session) (string, error) {
	order := sess.order
	if order.Certificate != "" {
		return order.Certificate, nil
	}

	timer := time.NewTimer(i.cfg.PollInterval)
	defer timer.Stop()

	for attempt := 1; attempt <= i.cfg.PollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}

		current, err := i.authority.FetchOrder(ctx, sess.account, order.URL)
		if err != nil {
			return "", err
		}

		switch current.Status {
		case resources.OrderValid:
			if current.Certificate == "" {
				return "", fmt.Errorf("order %q is valid but has no certificate URL", order.URL)
			}
			return current.Certificate, nil
		case resources.OrderInvalid:
			return "", fmt.Errorf("order %q became invalid during finalization", order.URL)
		default:
			// pending, ready or processing: the CA is still working.
			timer.Reset(i.cfg.PollInterval)
		}
	}

	return "", fmt.Errorf("order %q did not issue a certificate after %d poll attempts",
		order.URL, i.cfg.PollAttempts)
}
