package payment

import (
	"context"
	"fmt"
)

// Lookup is the read side of the transaction store used by the guard.
type Lookup interface {
	Exists(ctx context.Context, phoneNumber string, amount int64) (bool, error)
}

// Guard decides whether a payer/amount pair was already handled. It does not
// look at the status of the matching record: a prior failure blocks a new push
// just like a prior success.
type Guard struct {
	store Lookup
}

func NewGuard(store Lookup) *Guard {
	return &Guard{store: store}
}

func (g *Guard) Exists(ctx context.Context, phoneNumber string, amount int64) (bool, error) {
	ok, err := g.store.Exists(ctx, phoneNumber, amount)
	if err != nil {
		return false, newError(ErrStorage, "", err)
	}
	return ok, nil
}

// DedupKey is the lock key for a payer/amount pair.
func DedupKey(phoneNumber string, amount int64) string {
	return fmt.Sprintf("stk:%s:%d", phoneNumber, amount)
}
