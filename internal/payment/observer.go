package payment

import (
	"context"
)

// Event is emitted once per push when it reaches a terminal state.
type Event struct {
	AccountNo   string   `json:"accountNo"`
	PhoneNumber string   `json:"phoneNumber"`
	Amount      int64    `json:"amount"`
	Outcome     *Outcome `json:"outcome,omitempty"`
	Err         error    `json:"-"`
}

func (e Event) Succeeded() bool {
	return e.Outcome != nil && e.Err == nil
}

// Observer receives terminal events. Implementations handle their own errors.
type Observer interface {
	PaymentResolved(ctx context.Context, ev Event)
}
