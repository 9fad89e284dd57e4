package issuer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/certmint/certmint/acme/resources"
)

// ensureAccount returns a usable authority account: the stored one when the
// authority still considers it valid, or a freshly registered one. A new
// registration is persisted exactly once; validating a stored account never
// writes to the store.
func (i *Issuer) ensureAccount(ctx context.Context) (*resources.Account, error) {
	stored, err := i.accounts.GetAccount()
	if err != nil {
		return nil, fmt.Errorf("reading stored account: %w", err)
	}

	if stored != nil {
		if acct, ok := i.revalidateAccount(ctx, stored); ok {
			return acct, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	return i.registerAccount(ctx)
}

// revalidateAccount asks the authority whether the stored account is still
// usable. Any lookup failure or non-valid status means the account is
// treated as absent so a new one gets registered with the same flow as
// a first run.
func (i *Issuer) revalidateAccount(ctx context.Context, stored *resources.Account) (*resources.Account, bool) {
	if err := i.authority.LookupAccount(ctx, stored); err != nil {
		i.log.Warn("stored account not recognized by authority, registering a new one",
			zap.String("account", stored.URL),
			zap.Error(err))
		return nil, false
	}

	if stored.Status != resources.AccountValid {
		i.log.Warn("stored account is no longer valid, registering a new one",
			zap.String("account", stored.URL),
			zap.String("status", stored.Status))
		return nil, false
	}

	if !stored.TermsAgreed {
		if err := i.authority.UpdateAccount(ctx, stored); err != nil {
			i.log.Warn("re-submitting terms agreement failed, registering a new account",
				zap.String("account", stored.URL),
				zap.Error(err))
			return nil, false
		}
	}

	i.log.Info("reusing stored authority account",
		zap.String("account", stored.URL),
		zap.Uint64("id", stored.ID))
	return stored, true
}

// registerAccount creates a new account with the authority after the
// configured terms-of-service policy accepts the current terms, then
// persists it.
func (i *Issuer) registerAccount(ctx context.Context) (*resources.Account, error) {
	tosURL, err := i.authority.TermsOfService(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching terms of service: %w", err)
	}

	if i.cfg.AcceptTOS == nil || !i.cfg.AcceptTOS(tosURL) {
		return nil, fmt.Errorf("registration requires agreement to %s: %w",
			tosURL, ErrTermsRejected)
	}

	acct, err := resources.NewAccount([]string{i.cfg.ContactEmail}, nil)
	if err != nil {
		return nil, fmt.Errorf("generating account key: %w", err)
	}

	if err := i.authority.RegisterAccount(ctx, acct); err != nil {
		return nil, fmt.Errorf("registering account: %w", err)
	}

	if err := i.accounts.SaveAccount(acct); err != nil {
		return nil, fmt.Errorf("persisting account: %w", err)
	}

	i.log.Info("registered new authority account",
		zap.String("account", acct.URL),
		zap.Uint64("id", acct.ID))
	return acct, nil
}
