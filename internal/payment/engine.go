package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/NgigiN/stkpush/internal/mpesa"
	"github.com/NgigiN/stkpush/internal/storage"
)

// Upstream is the two-call aggregator protocol.
type Upstream interface {
	Initialize(ctx context.Context, req mpesa.InitializeRequest) error
	Status(ctx context.Context, accountNo string) (*mpesa.StatusResponse, error)
}

// Recorder persists terminal outcomes.
type Recorder interface {
	SaveTransaction(ctx context.Context, tx *storage.Transaction) error
}

type Config struct {
	// Warmup is the settlement window before the first status read.
	Warmup       time.Duration
	PollInterval time.Duration
	// MaxPollAttempts bounds the number of status reads; 0 means unbounded
	// (PollTimeout still applies).
	MaxPollAttempts int
	// PollTimeout bounds the whole workflow, warm-up included.
	PollTimeout     time.Duration
	PersistFailures bool
}

// Outcome describes a confirmed payment.
type Outcome struct {
	AccountNo   string    `json:"accountNo"`
	PhoneNumber string    `json:"phoneNumber"`
	Amount      int64     `json:"amount"`
	SyncStatus  string    `json:"syncStatus"`
	CreatedAt   time.Time `json:"createdAt"`
	Receipt     string    `json:"receipt"`
}

// Engine drives one push from initialization to a terminal state.
type Engine struct {
	upstream  Upstream
	store     Recorder
	cfg       Config
	log       *zap.Logger
	observers []Observer

	newAccountNo func() string
	now          func() time.Time
}

func NewEngine(upstream Upstream, store Recorder, cfg Config, log *zap.Logger, observers ...Observer) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		upstream:     upstream,
		store:        store,
		cfg:          cfg,
		log:          log,
		observers:    observers,
		newAccountNo: newAccountNo,
		now:          time.Now,
	}
}

// Observe registers an additional observer. Call it before the engine is used.
func (e *Engine) Observe(o Observer) {
	e.observers = append(e.observers, o)
}

func newAccountNo() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// InitiateAndConfirm pushes a payment prompt to phoneNumber, waits for the
// settlement window and polls until the aggregator reports a final answer.
// A confirmed payment is persisted before returning. If that write fails the
// outcome is still returned alongside an ErrStorage error.
func (e *Engine) InitiateAndConfirm(ctx context.Context, phoneNumber string, amount int64) (*Outcome, error) {
	accountNo := e.newAccountNo()
	log := e.log.With(
		zap.String("account_no", accountNo),
		zap.String("msisdn", phoneNumber),
		zap.Int64("amount", amount),
	)

	runCtx := ctx
	if e.cfg.PollTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.cfg.PollTimeout)
		defer cancel()
	}

	outcome, err := e.run(runCtx, log, accountNo, phoneNumber, amount)

	// Persist even when the polling deadline has already fired.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err != nil {
		log.Warn("stk push failed", zap.Error(err))
		if e.cfg.PersistFailures {
			if serr := e.store.SaveTransaction(saveCtx, &storage.Transaction{
				PhoneNumber: phoneNumber,
				Amount:      amount,
				SyncStatus:  storage.StatusFailed,
				CreatedAt:   e.now().UTC(),
				AccountNo:   accountNo,
			}); serr != nil {
				log.Error("failed to record failed push", zap.Error(serr))
			}
		}
		e.notify(saveCtx, Event{AccountNo: accountNo, PhoneNumber: phoneNumber, Amount: amount, Err: err})
		return nil, err
	}

	receipt := outcome.Receipt
	tx := &storage.Transaction{
		PhoneNumber:  outcome.PhoneNumber,
		Amount:       outcome.Amount,
		SyncStatus:   outcome.SyncStatus,
		CreatedAt:    outcome.CreatedAt,
		MpesaReceipt: &receipt,
		AccountNo:    accountNo,
	}
	if serr := e.store.SaveTransaction(saveCtx, tx); serr != nil {
		log.Error("payment confirmed but not recorded", zap.String("receipt", receipt), zap.Error(serr))
		err = newError(ErrStorage, accountNo, serr)
		e.notify(saveCtx, Event{AccountNo: accountNo, PhoneNumber: phoneNumber, Amount: amount, Outcome: outcome, Err: err})
		return outcome, err
	}

	log.Info("stk push confirmed", zap.String("receipt", receipt), zap.Uint("record_id", tx.ID))
	e.notify(saveCtx, Event{AccountNo: accountNo, PhoneNumber: phoneNumber, Amount: amount, Outcome: outcome})
	return outcome, nil
}

func (e *Engine) run(ctx context.Context, log *zap.Logger, accountNo, phoneNumber string, amount int64) (*Outcome, error) {
	err := e.upstream.Initialize(ctx, mpesa.InitializeRequest{
		Amount:    amount,
		MSISDN:    phoneNumber,
		AccountNo: accountNo,
	})
	if err != nil {
		return nil, newError(ErrInit, accountNo, err)
	}
	log.Debug("stk push initialized", zap.Duration("warmup", e.cfg.Warmup))

	if err := sleep(ctx, e.cfg.Warmup); err != nil {
		return nil, newError(ErrTimeout, accountNo, err)
	}

	for attempt := 1; ; attempt++ {
		st, err := e.upstream.Status(ctx, accountNo)
		if err != nil {
			if ctx.Err() != nil {
				return nil, newError(ErrTimeout, accountNo, ctx.Err())
			}
			return nil, newError(ErrStatus, accountNo, err)
		}

		if raw := st.Receipt(); raw != "" {
			return e.confirmed(log, accountNo, phoneNumber, amount, st, raw), nil
		}
		if !st.Pending() {
			return nil, newError(ErrRejected, accountNo, fmt.Errorf("upstream status %q", st.SyncStatus))
		}
		if e.cfg.MaxPollAttempts > 0 && attempt >= e.cfg.MaxPollAttempts {
			return nil, newError(ErrTimeout, accountNo, fmt.Errorf("still pending after %d status checks", attempt))
		}

		log.Debug("stk push pending", zap.Int("attempt", attempt), zap.String("sync_status", st.SyncStatus))
		if err := sleep(ctx, e.cfg.PollInterval); err != nil {
			return nil, newError(ErrTimeout, accountNo, err)
		}
	}
}

func (e *Engine) confirmed(log *zap.Logger, accountNo, phoneNumber string, amount int64, st *mpesa.StatusResponse, raw string) *Outcome {
	receipt, err := mpesa.ParseReceipt(raw)
	if err != nil {
		log.Warn("unexpected receipt format", zap.String("receipt", raw))
		receipt = raw
	}
	syncStatus := st.SyncStatus
	if syncStatus == "" {
		syncStatus = storage.StatusSuccess
	}
	createdAt, ok := st.CreatedTime()
	if !ok {
		createdAt = e.now()
	}
	// Records are kept in UTC.
	createdAt = createdAt.UTC()
	return &Outcome{
		AccountNo:   accountNo,
		PhoneNumber: phoneNumber,
		Amount:      amount,
		SyncStatus:  syncStatus,
		CreatedAt:   createdAt,
		Receipt:     receipt,
	}
}

func (e *Engine) notify(ctx context.Context, ev Event) {
	for _, o := range e.observers {
		o.PaymentResolved(ctx, ev)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
