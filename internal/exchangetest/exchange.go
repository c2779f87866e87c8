// Package exchangetest provides a scripted in-memory exchange for tests.
package exchangetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/lagbot/internal/domain"
	"github.com/betbot/lagbot/internal/ports"
)

// OrderState one GetOrder observation.
type OrderState struct {
	Filled       decimal.Decimal
	Open         bool
	PricePerUnit decimal.Decimal
}

// Open returns an open order state with filled quantity.
func Open(filled string) OrderState {
	return OrderState{Filled: decimal.RequireFromString(filled), Open: true}
}

// Closed returns a closed order state with filled quantity.
func Closed(filled string) OrderState {
	return OrderState{Filled: decimal.RequireFromString(filled)}
}

// OrderScript drives one placed order.
type OrderScript struct {
	RejectErr   error        // placement fails with this error (wrapped with ports.ErrOrderRejected)
	States      []OrderState // successive GetOrder observations; the last one repeats
	AfterCancel *OrderState  // state after a successful cancel; default: last observed, closed
	CancelErr   error        // cancel fails with this error (wrapped with ports.ErrCancelFailed)
	GetOrderErr error        // every GetOrder fails with this error
}

type order struct {
	spec      domain.OrderSpec
	script    OrderScript
	reads     int
	last      OrderState
	cancelled bool
}

// Exchange is a scripted ports.Exchange.
type Exchange struct {
	mu sync.Mutex

	// Response data
	QuoteCycles [][]domain.Quote // AllQuotes returns one entry per call; the last one repeats
	Tickers     map[string]domain.Quote
	Balances    map[string]domain.Balance
	BuyScripts  []OrderScript // consumed in placement order; default fills fully on first read
	SellScripts []OrderScript

	// Call tracking
	Calls  map[string]int
	Placed []domain.OrderSpec

	// Error injection
	ErrorOnNext map[string]error

	quoteReads int
	orders     map[string]*order
	seq        int
	now        func() time.Time
}

// New creates an empty scripted exchange.
func New() *Exchange {
	return &Exchange{
		Tickers:     make(map[string]domain.Quote),
		Balances:    make(map[string]domain.Balance),
		Calls:       make(map[string]int),
		ErrorOnNext: make(map[string]error),
		orders:      make(map[string]*order),
		now:         time.Now,
	}
}

var _ ports.Exchange = (*Exchange)(nil)

// SetNowFunc sets the clock used for Order.Closed timestamps.
func (e *Exchange) SetNowFunc(now func() time.Time) {
	e.mu.Lock()
	e.now = now
	e.mu.Unlock()
}

// trackCall must be called with e.mu held.
func (e *Exchange) trackCall(name string) error {
	e.Calls[name]++
	if err, ok := e.ErrorOnNext[name]; ok {
		delete(e.ErrorOnNext, name)
		return err
	}
	return nil
}

// CallCount returns how many times method was called.
func (e *Exchange) CallCount(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Calls[name]
}

// SetTicker replaces the quote returned by Quote(market).
func (e *Exchange) SetTicker(q domain.Quote) {
	e.mu.Lock()
	e.Tickers[q.MarketName] = q
	e.mu.Unlock()
}

func (e *Exchange) AllQuotes(ctx context.Context) ([]domain.Quote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.trackCall("AllQuotes"); err != nil {
		return nil, err
	}
	if len(e.QuoteCycles) == 0 {
		return nil, nil
	}
	i := e.quoteReads
	if i >= len(e.QuoteCycles) {
		i = len(e.QuoteCycles) - 1
	}
	e.quoteReads++
	return append([]domain.Quote(nil), e.QuoteCycles[i]...), nil
}

func (e *Exchange) Quote(ctx context.Context, market string) (domain.Quote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.trackCall("Quote"); err != nil {
		return domain.Quote{}, err
	}
	q, ok := e.Tickers[market]
	if !ok {
		return domain.Quote{}, fmt.Errorf("%w: unknown market %s", ports.ErrDataSource, market)
	}
	return q, nil
}

func (e *Exchange) GetBalance(ctx context.Context, currency string) (domain.Balance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.trackCall("GetBalance"); err != nil {
		return domain.Balance{}, err
	}
	b, ok := e.Balances[currency]
	if !ok {
		return domain.Balance{Currency: currency}, nil
	}
	return b, nil
}

func (e *Exchange) PlaceBuyOrder(ctx context.Context, spec domain.OrderSpec) (string, error) {
	spec.Side = domain.SideBuy
	return e.place("PlaceBuyOrder", spec, &e.BuyScripts)
}

func (e *Exchange) PlaceSellOrder(ctx context.Context, spec domain.OrderSpec) (string, error) {
	spec.Side = domain.SideSell
	return e.place("PlaceSellOrder", spec, &e.SellScripts)
}

func (e *Exchange) place(name string, spec domain.OrderSpec, scripts *[]OrderScript) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Placed = append(e.Placed, spec)
	if err := e.trackCall(name); err != nil {
		return "", fmt.Errorf("%w: %v", ports.ErrOrderRejected, err)
	}

	script := OrderScript{States: []OrderState{{Filled: spec.Quantity}}}
	if len(*scripts) > 0 {
		script = (*scripts)[0]
		*scripts = (*scripts)[1:]
	}
	if script.RejectErr != nil {
		return "", fmt.Errorf("%w: %v", ports.ErrOrderRejected, script.RejectErr)
	}

	e.seq++
	id := fmt.Sprintf("%s-%d", spec.Side, e.seq)
	e.orders[id] = &order{spec: spec, script: script}
	return id, nil
}

func (e *Exchange) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.trackCall("GetOrder"); err != nil {
		return domain.Order{}, err
	}
	o, ok := e.orders[orderID]
	if !ok {
		return domain.Order{}, fmt.Errorf("unknown order %s", orderID)
	}
	o.reads++
	if o.script.GetOrderErr != nil {
		return domain.Order{}, o.script.GetOrderErr
	}

	var st OrderState
	switch {
	case o.cancelled && o.script.AfterCancel != nil:
		st = *o.script.AfterCancel
	case o.cancelled:
		st = o.last
		st.Open = false
	case len(o.script.States) == 0:
		st = OrderState{Filled: o.spec.Quantity}
	default:
		i := o.reads - 1
		if i >= len(o.script.States) {
			i = len(o.script.States) - 1
		}
		st = o.script.States[i]
	}
	o.last = st

	out := domain.Order{
		ID:                orderID,
		Market:            o.spec.Market,
		Side:              o.spec.Side,
		Quantity:          o.spec.Quantity,
		QuantityRemaining: o.spec.Quantity.Sub(st.Filled),
		Limit:             o.spec.Rate,
		PricePerUnit:      st.PricePerUnit,
		IsOpen:            st.Open,
	}
	if !st.Open {
		closed := e.now()
		out.Closed = &closed
	}
	return out, nil
}

func (e *Exchange) CancelOrder(ctx context.Context, orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.trackCall("CancelOrder"); err != nil {
		return fmt.Errorf("%w: %v", ports.ErrCancelFailed, err)
	}
	o, ok := e.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: unknown order %s", ports.ErrCancelFailed, orderID)
	}
	if o.script.CancelErr != nil {
		return fmt.Errorf("%w: %v", ports.ErrCancelFailed, o.script.CancelErr)
	}
	o.cancelled = true
	return nil
}

// Reads returns how many GetOrder calls hit orderID.
func (e *Exchange) Reads(orderID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if o, ok := e.orders[orderID]; ok {
		return o.reads
	}
	return 0
}

// Cancelled reports whether orderID received a successful cancel.
func (e *Exchange) Cancelled(orderID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if o, ok := e.orders[orderID]; ok {
		return o.cancelled
	}
	return false
}

// PlacedBySide returns placed specs of one side in order.
func (e *Exchange) PlacedBySide(side domain.Side) []domain.OrderSpec {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []domain.OrderSpec
	for _, s := range e.Placed {
		if s.Side == side {
			out = append(out, s)
		}
	}
	return out
}

// Quote is a test helper building a quote from strings.
func Quote(market, last, bid, ask string) domain.Quote {
	return domain.Quote{
		MarketName: market,
		Last:       decimal.RequireFromString(last),
		Bid:        decimal.RequireFromString(bid),
		Ask:        decimal.RequireFromString(ask),
	}
}
