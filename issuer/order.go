package issuer

import (
	"context"

	"go.uber.org/zap"

	"github.com/certmint/certmint/acme"
	"github.com/certmint/certmint/acme/resources"
)

// resolveOrder returns an order covering exactly the configured domains:
// the account's first pending order whose DNS identifier set equals the
// requested set, or a newly created one. Orders in any other state are
// never reused; a failed or finalized order always leads to a fresh one.
func (i *Issuer) resolveOrder(ctx context.Context, sess session) (*resources.Order, error) {
	want := domainSet(i.cfg.Domains)

	orderURLs, err := i.authority.ListOrders(ctx, sess.account)
	if err != nil {
		// Resolution still succeeds by creating a new order.
		i.log.Warn("listing existing orders failed, creating a new order", zap.Error(err))
		orderURLs = nil
	}

	for _, orderURL := range orderURLs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		order, err := i.authority.FetchOrder(ctx, sess.account, orderURL)
		if err != nil {
			i.log.Debug("skipping unfetchable order",
				zap.String("order", orderURL),
				zap.Error(err))
			continue
		}
		if order.Status != resources.OrderPending {
			continue
		}
		if setsEqual(order.DomainSet(), want) {
			i.log.Info("reusing pending order",
				zap.String("order", order.URL),
				zap.Strings("domains", i.cfg.Domains))
			return order, nil
		}
	}

	identifiers := make([]resources.Identifier, len(i.cfg.Domains))
	for idx, domain := range i.cfg.Domains {
		identifiers[idx] = resources.Identifier{
			Type:  acme.IdentifierDNS,
			Value: domain,
		}
	}
	return i.authority.CreateOrder(ctx, sess.account, identifiers)
}

func domainSet(domains []string) map[string]struct{} {
	set := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		set[d] = struct{}{}
	}
	return set
}

func setsEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
