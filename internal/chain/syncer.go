package chain

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Koushith/Web3-Invoice-sub000/internal/invoices"
	"github.com/Koushith/Web3-Invoice-sub000/internal/payments"
	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

const (
	cursorKey   = "invoices:chain:sync:cursor"
	syncLockTTL = 10 * time.Minute
)

// EventSource lists settlements.
type EventSource interface {
	ListEvents(ctx context.Context, cursor string) ([]Event, string, error)
}

// InvoiceLookup finds the invoice a request id was issued for.
type InvoiceLookup interface {
	GetByChainRequestID(ctx context.Context, requestID string) (invoices.Invoice, error)
}

// PaymentRecorder stores payments.
type PaymentRecorder interface {
	Record(ctx context.Context, orgID uuid.UUID, input payments.RecordInput) (payments.Result, error)
}

// SyncSummary reports one sync.
type SyncSummary struct {
	Events   int `json:"events"`
	Recorded int `json:"recorded"`
	Skipped  int `json:"skipped"`
	Rejected int `json:"rejected"`
	Failed   int `json:"failed"`
}

// Syncer reconciles recorder events into payments. The transaction hash is
// the payment reference, so replays are skipped as duplicates.
type Syncer struct {
	source   EventSource
	lookup   InvoiceLookup
	recorder PaymentRecorder
	redis    *redis.Client
	logger   *slog.Logger
}

// NewSyncer constructs a Syncer. With a nil redis client the cursor is not
// persisted and every sync starts from the beginning.
func NewSyncer(source EventSource, lookup InvoiceLookup, recorder PaymentRecorder, client *redis.Client, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{source: source, lookup: lookup, recorder: recorder, redis: client, logger: logger}
}

// Sync pulls new events once. The cursor only moves when no event failed
// for a retryable reason.
func (s *Syncer) Sync(ctx context.Context) (SyncSummary, error) {
	var summary SyncSummary
	cursor := ""
	if s.redis != nil {
		lock, err := shared.AcquireRunLock(ctx, s.redis, shared.ChainSyncLockKey(), syncLockTTL)
		if err != nil {
			return summary, err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release chain sync lock", slog.Any("error", err))
			}
		}()
		cursor, err = s.redis.Get(ctx, cursorKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return summary, err
		}
	}

	events, next, err := s.source.ListEvents(ctx, cursor)
	if err != nil {
		return summary, err
	}
	for _, ev := range events {
		summary.Events++
		switch err := s.apply(ctx, ev); {
		case err == nil:
			summary.Recorded++
		case errors.Is(err, payments.ErrDuplicatePaymentReference):
			summary.Skipped++
		case errors.Is(err, shared.ErrNotFound),
			errors.Is(err, shared.ErrInvalidTransition),
			errors.Is(err, shared.ErrValidation):
			summary.Rejected++
			s.logger.Warn("chain event rejected",
				slog.String("request_id", ev.RequestID),
				slog.String("tx_hash", ev.TxHash),
				slog.Any("error", err))
		default:
			summary.Failed++
			s.logger.Error("chain event failed",
				slog.String("request_id", ev.RequestID),
				slog.String("tx_hash", ev.TxHash),
				slog.Any("error", err))
		}
	}

	if s.redis != nil && summary.Failed == 0 && next != cursor {
		if err := s.redis.Set(ctx, cursorKey, next, 0).Err(); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

func (s *Syncer) apply(ctx context.Context, ev Event) error {
	if strings.TrimSpace(ev.TxHash) == "" {
		return shared.NewValidationError("txHash", "is required")
	}
	inv, err := s.lookup.GetByChainRequestID(ctx, ev.RequestID)
	if err != nil {
		return err
	}
	if ev.Currency != "" && !strings.EqualFold(ev.Currency, inv.Currency) {
		return shared.NewValidationError("currency", "does not match invoice currency "+inv.Currency)
	}
	paidAt := ev.PaidAt
	input := payments.RecordInput{
		InvoiceID: inv.ID,
		Amount:    ev.Amount,
		Method:    payments.MethodCrypto,
		Reference: ev.TxHash,
		Notes:     "On-chain settlement for request " + ev.RequestID,
	}
	if !paidAt.IsZero() {
		input.ProcessedAt = &paidAt
	}
	_, err = s.recorder.Record(ctx, inv.OrganizationID, input)
	return err
}
