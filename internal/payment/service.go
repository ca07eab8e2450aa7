package payment

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/NgigiN/stkpush/internal/mpesa"
)

// Workflow runs a single push to completion.
type Workflow interface {
	InitiateAndConfirm(ctx context.Context, phoneNumber string, amount int64) (*Outcome, error)
}

// Service is the entry point for inbound payment requests: it normalizes the
// payer, consults the guard and runs the workflow while holding the dedup key.
type Service struct {
	guard    *Guard
	workflow Workflow
	locker   Locker
	log      *zap.Logger
}

func NewService(guard *Guard, workflow Workflow, locker Locker, log *zap.Logger) *Service {
	if locker == nil {
		locker = NewMemoryLocker()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{guard: guard, workflow: workflow, locker: locker, log: log}
}

func (s *Service) Pay(ctx context.Context, rawPhone string, amount int64) (*Outcome, error) {
	phone, err := mpesa.NormalizeMSISDN(rawPhone)
	if err != nil {
		return nil, newError(ErrInvalidRequest, "", err)
	}
	if amount <= 0 {
		return nil, newError(ErrInvalidRequest, "", fmt.Errorf("amount must be positive, got %d", amount))
	}

	paid, err := s.guard.Exists(ctx, phone, amount)
	if err != nil {
		return nil, err
	}
	if paid {
		return nil, ErrAlreadyPaid
	}

	key := DedupKey(phone, amount)
	unlock, ok, err := s.locker.TryLock(ctx, key)
	if err != nil {
		return nil, newError(ErrStorage, "", fmt.Errorf("failed to acquire %s: %w", key, err))
	}
	if !ok {
		return nil, ErrInFlight
	}
	defer unlock()

	// The previous holder may have finished between the first check and the lock.
	paid, err = s.guard.Exists(ctx, phone, amount)
	if err != nil {
		return nil, err
	}
	if paid {
		return nil, ErrAlreadyPaid
	}

	s.log.Info("starting stk push", zap.String("msisdn", phone), zap.Int64("amount", amount))
	return s.workflow.InitiateAndConfirm(ctx, phone, amount)
}

// Paid answers the guard question for an unnormalized phone number.
func (s *Service) Paid(ctx context.Context, rawPhone string, amount int64) (bool, error) {
	phone, err := mpesa.NormalizeMSISDN(rawPhone)
	if err != nil {
		return false, newError(ErrInvalidRequest, "", err)
	}
	return s.guard.Exists(ctx, phone, amount)
}
