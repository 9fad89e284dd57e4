package issuer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/certmint/certmint/acme"
	"github.com/certmint/certmint/acme/keys"
	"github.com/certmint/certmint/acme/resources"
)

// validateAuthorization drives one domain's authorization to a terminal
// state. An authorization that is already valid completes immediately with
// no challenge work. A pending one has its challenge responses prepared
// (held on the readiness gate), the authority is signalled to check them,
// and the status is polled until valid, terminally failed, or the attempt
// budget is exhausted.
func (i *Issuer) validateAuthorization(ctx context.Context, sess session, authzURL string) error {
	authz, err := i.authority.FetchAuthorization(ctx, sess.account, authzURL)
	if err != nil {
		return err
	}
	domain := authz.Identifier.Value

	switch authz.StatusKind() {
	case resources.AuthorizationValid:
		// Already satisfied, never re-challenged.
		i.log.Info("authorization already valid", zap.String("domain", domain))
		return nil
	case resources.AuthorizationPending:
	case resources.AuthorizationInvalid, resources.AuthorizationRevoked,
		resources.AuthorizationExpired, resources.AuthorizationUnknown:
		return terminalFailure(authz)
	}

	if i.alpn.Enabled() {
		discard, err := i.prepareTLSALPN(ctx, sess, authz)
		if err != nil {
			return err
		}
		// The throwaway certificate must not outlive this validation; the
		// handshake store would otherwise inspect every inbound handshake
		// for the domain indefinitely.
		defer discard()
	}

	// The HTTP-01 challenge is prepared regardless of whether TLS-ALPN-01
	// already was for this domain, giving the authority both options.
	if err := i.prepareHTTP01(ctx, sess, authz); err != nil {
		return err
	}

	return i.pollAuthorization(ctx, sess, authz)
}

// prepareTLSALPN registers the domain's throwaway challenge certificate,
// waits for the serving endpoint to be ready, and asks the authority to
// validate the TLS-ALPN-01 challenge. The returned discard function is
// non-nil exactly when the certificate was registered.
func (i *Issuer) prepareTLSALPN(ctx context.Context, sess session, authz *resources.Authorization) (func(), error) {
	domain := authz.Identifier.Value
	chall := authz.ChallengeByType(acme.ChallengeTLSALPN01)
	if chall == nil {
		return nil, &ValidationError{
			Domain:        domain,
			Kind:          FailureMissingChallenge,
			ChallengeType: acme.ChallengeTLSALPN01,
		}
	}

	keyAuth, err := keys.KeyAuth(sess.account.Signer, chall.Token)
	if err != nil {
		return nil, fmt.Errorf("computing key authorization for %q: %w", domain, err)
	}

	if err := i.alpn.PrepareChallengeCert(domain, keyAuth); err != nil {
		return nil, fmt.Errorf("preparing TLS-ALPN-01 certificate for %q: %w", domain, err)
	}
	discard := func() { i.alpn.DiscardChallenge(domain) }

	if err := i.ready.Wait(ctx); err != nil {
		discard()
		return nil, err
	}
	if err := i.authority.ValidateChallenge(ctx, sess.account, chall); err != nil {
		discard()
		return nil, err
	}
	i.log.Debug("TLS-ALPN-01 challenge prepared", zap.String("domain", domain))
	return discard, nil
}

// prepareHTTP01 publishes the domain's key authorization under its token,
// waits for the serving endpoint to be ready, and asks the authority to
// validate the HTTP-01 challenge.
func (i *Issuer) prepareHTTP01(ctx context.Context, sess session, authz *resources.Authorization) error {
	domain := authz.Identifier.Value
	chall := authz.ChallengeByType(acme.ChallengeHTTP01)
	if chall == nil {
		return &ValidationError{
			Domain:        domain,
			Kind:          FailureMissingChallenge,
			ChallengeType: acme.ChallengeHTTP01,
		}
	}

	keyAuth, err := keys.KeyAuth(sess.account.Signer, chall.Token)
	if err != nil {
		return fmt.Errorf("computing key authorization for %q: %w", domain, err)
	}

	i.http.AddChallengeResponse(chall.Token, keyAuth)

	if err := i.ready.Wait(ctx); err != nil {
		return err
	}
	if err := i.authority.ValidateChallenge(ctx, sess.account, chall); err != nil {
		return err
	}
	i.log.Debug("HTTP-01 challenge prepared", zap.String("domain", domain))
	return nil
}

// pollAuthorization re-fetches the authorization until it leaves the
// pending state or the attempt budget runs out, waiting PollInterval
// between attempts and honoring cancellation at every step.
func (i *Issuer) pollAuthorization(ctx context.Context, sess session, authz *resources.Authorization) error {
	domain := authz.Identifier.Value
	timer := time.NewTimer(i.cfg.PollInterval)
	defer timer.Stop()

	for attempt := 1; attempt <= i.cfg.PollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		current, err := i.authority.FetchAuthorization(ctx, sess.account, authz.URL)
		if err != nil {
			return err
		}

		switch current.StatusKind() {
		case resources.AuthorizationValid:
			i.log.Info("authorization validated",
				zap.String("domain", domain),
				zap.Int("attempts", attempt))
			return nil
		case resources.AuthorizationPending:
			timer.Reset(i.cfg.PollInterval)
		case resources.AuthorizationInvalid, resources.AuthorizationRevoked,
			resources.AuthorizationExpired, resources.AuthorizationUnknown:
			return terminalFailure(current)
		}
	}

	return &ValidationError{
		Domain:   domain,
		Kind:     FailureTimeout,
		Attempts: i.cfg.PollAttempts,
	}
}

// terminalFailure maps a terminally failed authorization to its
// ValidationError, aggregating every challenge-level problem the authority
// attached.
func terminalFailure(authz *resources.Authorization) *ValidationError {
	domain := authz.Identifier.Value
	switch authz.StatusKind() {
	case resources.AuthorizationInvalid:
		var problems []resources.Problem
		for _, chall := range authz.Challenges {
			if chall.Error != nil {
				problems = append(problems, *chall.Error)
			}
		}
		return &ValidationError{
			Domain:   domain,
			Kind:     FailureInvalid,
			Problems: problems,
		}
	case resources.AuthorizationRevoked:
		return &ValidationError{Domain: domain, Kind: FailureRevoked}
	case resources.AuthorizationExpired:
		return &ValidationError{Domain: domain, Kind: FailureExpired}
	}
	return &ValidationError{
		Domain: domain,
		Kind:   FailureUnexpectedStatus,
		Status: authz.Status,
	}
}
