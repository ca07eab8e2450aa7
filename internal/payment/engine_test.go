package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/NgigiN/stkpush/internal/mpesa"
	"github.com/NgigiN/stkpush/internal/storage"
)

type fakeUpstream struct {
	mu          sync.Mutex
	initErr     error
	statuses    []*mpesa.StatusResponse
	statusErr   error
	initCalls   int
	statusCalls int
	accounts    []string
}

func (f *fakeUpstream) Initialize(_ context.Context, req mpesa.InitializeRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	f.accounts = append(f.accounts, req.AccountNo)
	return f.initErr
}

func (f *fakeUpstream) Status(_ context.Context, accountNo string) (*mpesa.StatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if len(f.statuses) == 0 {
		return pending(), nil
	}
	st := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return st, nil
}

type fakeRecorder struct {
	mu  sync.Mutex
	txs []storage.Transaction
	err error
}

func (f *fakeRecorder) SaveTransaction(_ context.Context, tx *storage.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	tx.ID = uint(len(f.txs) + 1)
	f.txs = append(f.txs, *tx)
	return nil
}

func (f *fakeRecorder) Exists(_ context.Context, phone string, amount int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.txs {
		if tx.PhoneNumber == phone && tx.Amount == amount {
			return true, nil
		}
	}
	return false, f.err
}

type recordingObserver struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingObserver) PaymentResolved(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func strptr(s string) *string { return &s }

func complete(receipt string) *mpesa.StatusResponse {
	return &mpesa.StatusResponse{
		IsComplete:   mpesa.Completion{Known: true, Complete: true},
		SyncStatus:   "success",
		MpesaReceipt: strptr(receipt),
		CreatedAt:    "2024-01-02T10:00:00Z",
	}
}

func pending() *mpesa.StatusResponse {
	return &mpesa.StatusResponse{IsComplete: mpesa.Completion{Known: true}, SyncStatus: "pending"}
}

func rejected() *mpesa.StatusResponse {
	return &mpesa.StatusResponse{IsComplete: mpesa.Completion{Known: true, Complete: true}, SyncStatus: "Request cancelled by user"}
}

func fastConfig() Config {
	return Config{
		Warmup:          time.Millisecond,
		PollInterval:    time.Millisecond,
		MaxPollAttempts: 5,
		PollTimeout:     5 * time.Second,
	}
}

func TestEngineSuccessPersistsRecord(t *testing.T) {
	up := &fakeUpstream{statuses: []*mpesa.StatusResponse{complete("QAA1B2C3")}}
	rec := &fakeRecorder{}
	obs := &recordingObserver{}
	eng := NewEngine(up, rec, fastConfig(), nil, obs)

	out, err := eng.InitiateAndConfirm(context.Background(), "254700000000", 100)
	if err != nil {
		t.Fatalf("InitiateAndConfirm: %v", err)
	}
	if out.Receipt != "QAA1B2C3" || out.PhoneNumber != "254700000000" || out.Amount != 100 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(rec.txs) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(rec.txs))
	}
	tx := rec.txs[0]
	if !tx.Paid() || *tx.MpesaReceipt != "QAA1B2C3" || tx.SyncStatus != "success" {
		t.Fatalf("unexpected record %+v", tx)
	}
	if tx.AccountNo != up.accounts[0] {
		t.Fatalf("record account %q does not match pushed account %q", tx.AccountNo, up.accounts[0])
	}
	if !tx.CreatedAt.Equal(time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected created_at echoed from upstream, got %v", tx.CreatedAt)
	}
	if len(obs.events) != 1 || !obs.events[0].Succeeded() {
		t.Fatalf("expected one success event, got %+v", obs.events)
	}
}

func TestEngineRecordsTimestampsInUTC(t *testing.T) {
	st := complete("QAA1B2C3")
	st.CreatedAt = ""
	up := &fakeUpstream{statuses: []*mpesa.StatusResponse{st}}
	rec := &fakeRecorder{}
	eng := NewEngine(up, rec, fastConfig(), nil)
	local := time.Date(2024, 1, 2, 13, 0, 0, 0, time.FixedZone("EAT", 3*60*60))
	eng.now = func() time.Time { return local }

	out, err := eng.InitiateAndConfirm(context.Background(), "254700000000", 100)
	if err != nil {
		t.Fatalf("InitiateAndConfirm: %v", err)
	}
	if out.CreatedAt.Location() != time.UTC || !out.CreatedAt.Equal(local) {
		t.Fatalf("expected %v in UTC, got %v", local, out.CreatedAt)
	}
	if rec.txs[0].CreatedAt.Location() != time.UTC {
		t.Fatalf("record stored with zone %v", rec.txs[0].CreatedAt.Location())
	}

	failing := NewEngine(&fakeUpstream{statuses: []*mpesa.StatusResponse{rejected()}}, rec, Config{
		PollInterval: time.Millisecond, MaxPollAttempts: 1, PersistFailures: true,
	}, nil)
	failing.now = func() time.Time { return local }
	if _, err := failing.InitiateAndConfirm(context.Background(), "254711111111", 100); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if rec.txs[1].CreatedAt.Location() != time.UTC {
		t.Fatalf("failure record stored with zone %v", rec.txs[1].CreatedAt.Location())
	}
}

func TestEngineInitFailureSkipsStatus(t *testing.T) {
	up := &fakeUpstream{initErr: &mpesa.HTTPError{StatusCode: 500}}
	rec := &fakeRecorder{}
	eng := NewEngine(up, rec, fastConfig(), nil)

	_, err := eng.InitiateAndConfirm(context.Background(), "254700000000", 100)
	if !errors.Is(err, ErrInit) {
		t.Fatalf("expected ErrInit, got %v", err)
	}
	if up.statusCalls != 0 {
		t.Fatalf("expected no status calls, got %d", up.statusCalls)
	}
	if len(rec.txs) != 0 {
		t.Fatalf("expected nothing persisted, got %d", len(rec.txs))
	}
}

func TestEngineRejected(t *testing.T) {
	up := &fakeUpstream{statuses: []*mpesa.StatusResponse{rejected()}}
	rec := &fakeRecorder{}
	obs := &recordingObserver{}
	eng := NewEngine(up, rec, fastConfig(), nil, obs)

	_, err := eng.InitiateAndConfirm(context.Background(), "254700000000", 100)
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if up.statusCalls != 1 {
		t.Fatalf("expected a single status read, got %d", up.statusCalls)
	}
	if len(rec.txs) != 0 {
		t.Fatalf("expected no success record, got %+v", rec.txs)
	}
	if len(obs.events) != 1 || obs.events[0].Succeeded() {
		t.Fatalf("expected one failure event, got %+v", obs.events)
	}
}

func TestEngineCancelledWhileIncompleteIsRejected(t *testing.T) {
	cancelled := &mpesa.StatusResponse{IsComplete: mpesa.Completion{Known: true}, SyncStatus: "Request cancelled by user"}
	up := &fakeUpstream{statuses: []*mpesa.StatusResponse{pending(), cancelled}}
	eng := NewEngine(up, &fakeRecorder{}, fastConfig(), nil)

	_, err := eng.InitiateAndConfirm(context.Background(), "254700000000", 100)
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if up.statusCalls != 2 {
		t.Fatalf("expected polling to stop at the cancellation, got %d status reads", up.statusCalls)
	}
}

func TestEngineRejectedPersistsFailureWhenEnabled(t *testing.T) {
	up := &fakeUpstream{statuses: []*mpesa.StatusResponse{rejected()}}
	rec := &fakeRecorder{}
	cfg := fastConfig()
	cfg.PersistFailures = true
	eng := NewEngine(up, rec, cfg, nil)

	if _, err := eng.InitiateAndConfirm(context.Background(), "254700000000", 100); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if len(rec.txs) != 1 {
		t.Fatalf("expected one failure record, got %d", len(rec.txs))
	}
	if rec.txs[0].Paid() || rec.txs[0].SyncStatus != storage.StatusFailed {
		t.Fatalf("failure record must have no receipt: %+v", rec.txs[0])
	}
}

func TestEnginePollsWhilePending(t *testing.T) {
	up := &fakeUpstream{statuses: []*mpesa.StatusResponse{pending(), pending(), complete("QAB9Z8Y7")}}
	rec := &fakeRecorder{}
	eng := NewEngine(up, rec, fastConfig(), nil)

	out, err := eng.InitiateAndConfirm(context.Background(), "254700000000", 50)
	if err != nil {
		t.Fatalf("InitiateAndConfirm: %v", err)
	}
	if up.statusCalls != 3 {
		t.Fatalf("expected 3 status reads, got %d", up.statusCalls)
	}
	if out.Receipt != "QAB9Z8Y7" {
		t.Fatalf("unexpected receipt %q", out.Receipt)
	}
}

func TestEngineBoundedAttempts(t *testing.T) {
	up := &fakeUpstream{statuses: []*mpesa.StatusResponse{pending()}}
	rec := &fakeRecorder{}
	cfg := fastConfig()
	cfg.MaxPollAttempts = 3
	eng := NewEngine(up, rec, cfg, nil)

	_, err := eng.InitiateAndConfirm(context.Background(), "254700000000", 50)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if up.statusCalls != 3 {
		t.Fatalf("expected 3 status reads, got %d", up.statusCalls)
	}
}

func TestEngineDeadline(t *testing.T) {
	up := &fakeUpstream{statuses: []*mpesa.StatusResponse{pending()}}
	cfg := fastConfig()
	cfg.MaxPollAttempts = 0
	cfg.PollTimeout = 30 * time.Millisecond
	eng := NewEngine(up, &fakeRecorder{}, cfg, nil)

	start := time.Now()
	_, err := eng.InitiateAndConfirm(context.Background(), "254700000000", 50)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("deadline not honored")
	}
}

func TestEngineStatusError(t *testing.T) {
	up := &fakeUpstream{statusErr: &mpesa.HTTPError{StatusCode: 503}}
	eng := NewEngine(up, &fakeRecorder{}, fastConfig(), nil)

	_, err := eng.InitiateAndConfirm(context.Background(), "254700000000", 50)
	if !errors.Is(err, ErrStatus) {
		t.Fatalf("expected ErrStatus, got %v", err)
	}
	var perr *Error
	if !errors.As(err, &perr) || perr.AccountNo == "" {
		t.Fatalf("expected typed error with account number, got %v", err)
	}
}

func TestEngineStorageFailureReturnsOutcome(t *testing.T) {
	up := &fakeUpstream{statuses: []*mpesa.StatusResponse{complete("QAA1B2C3")}}
	rec := &fakeRecorder{err: errors.New("disk full")}
	eng := NewEngine(up, rec, fastConfig(), nil)

	out, err := eng.InitiateAndConfirm(context.Background(), "254700000000", 100)
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if out == nil || out.Receipt != "QAA1B2C3" {
		t.Fatalf("expected outcome with receipt, got %+v", out)
	}
}

func TestAccountNumbersAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		acc := newAccountNo()
		if seen[acc] {
			t.Fatalf("duplicate account number %s", acc)
		}
		seen[acc] = true
	}
}
