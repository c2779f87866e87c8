package ports

import (
	"context"
	"errors"

	"github.com/betbot/lagbot/internal/domain"
	"github.com/shopspring/decimal"
)

// Small capability interfaces shared across layers (detector/execution/session/orchestrator).
//
// NOTE: defined in a neutral package so the core never imports a concrete
// exchange client, prompt UI or journal.

var (
	// ErrOrderRejected the exchange refused to place the order.
	ErrOrderRejected = errors.New("order rejected")
	// ErrCancelFailed the exchange refused or failed to cancel; treated as an implicit close.
	ErrCancelFailed = errors.New("cancel failed")
	// ErrDataSource quote fetch failed or returned an unsuccessful envelope.
	ErrDataSource = errors.New("data source error")
)

// QuoteSource public market data.
type QuoteSource interface {
	AllQuotes(ctx context.Context) ([]domain.Quote, error)
	Quote(ctx context.Context, market string) (domain.Quote, error)
}

// Account private trading endpoints.
type Account interface {
	GetBalance(ctx context.Context, currency string) (domain.Balance, error)
	PlaceBuyOrder(ctx context.Context, spec domain.OrderSpec) (string, error)
	PlaceSellOrder(ctx context.Context, spec domain.OrderSpec) (string, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// Exchange is what a live or paper venue provides.
type Exchange interface {
	QuoteSource
	Account
}

// Prompter operator interaction.
type Prompter interface {
	Confirm(ctx context.Context, msg string) (bool, error)
	PromptAmount(ctx context.Context, msg string) (decimal.Decimal, error)
}

// Recorder audit trail. Implementations must be safe for concurrent use;
// chunk sessions record from their own goroutines.
type Recorder interface {
	RecordSignal(ctx context.Context, sig domain.Signal) error
	RecordSettlement(ctx context.Context, chunkID string, s domain.SettledOrder) error
	RecordOutcome(ctx context.Context, o domain.ChunkOutcome) error
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RecordSignal(context.Context, domain.Signal) error { return nil }
func (NopRecorder) RecordSettlement(context.Context, string, domain.SettledOrder) error {
	return nil
}
func (NopRecorder) RecordOutcome(context.Context, domain.ChunkOutcome) error { return nil }
