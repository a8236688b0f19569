package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alejandrodnm/alphaquant/internal/domain"
	"github.com/alejandrodnm/alphaquant/internal/ports"
	"github.com/google/uuid"
)

// StatusFilled is the status the paper broker reports for every order.
const StatusFilled = "Filled"

// ErrNoMarketData is returned when a feed has nothing for the symbol.
var ErrNoMarketData = errors.New("no market data")

// Paper simulates order execution on top of a real or static market data
// feed. Every order fills immediately: stock orders at the last close,
// spreads at the requested credit.
type Paper struct {
	feed ports.MarketData
	now  func() time.Time

	mu     sync.Mutex
	orders []PaperFill
}

// PaperFill is one simulated execution.
type PaperFill struct {
	Ack    domain.OrderAck
	Stock  *domain.OrderRequest
	Spread *domain.SpreadOrder
}

var _ ports.Broker = (*Paper)(nil)

// NewPaper wraps feed with simulated execution.
func NewPaper(feed ports.MarketData) *Paper {
	return &Paper{feed: feed, now: time.Now}
}

func (p *Paper) Bars(ctx context.Context, symbol, barSize string, count int) ([]domain.Bar, error) {
	return p.feed.Bars(ctx, symbol, barSize, count)
}

func (p *Paper) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	return p.feed.Quote(ctx, symbol)
}

func (p *Paper) OptionStrikes(ctx context.Context, symbol, expiry string) ([]float64, error) {
	return p.feed.OptionStrikes(ctx, symbol, expiry)
}

// PlaceOrder fills req at the last traded price (quote last, else the last
// bar close).
func (p *Paper) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderAck, error) {
	price := req.LimitPrice
	if req.OrderType != domain.OrderTypeLimit || price <= 0 {
		var err error
		if price, err = p.lastPrice(ctx, req.Symbol); err != nil {
			return domain.OrderAck{}, fmt.Errorf("broker.Paper.PlaceOrder %s: %w", req.Symbol, err)
		}
	}
	ack := p.ack(price)

	p.mu.Lock()
	p.orders = append(p.orders, PaperFill{Ack: ack, Stock: &req})
	p.mu.Unlock()
	return ack, nil
}

// PlaceSpread fills the spread at its limit credit.
func (p *Paper) PlaceSpread(_ context.Context, o domain.SpreadOrder) (domain.OrderAck, error) {
	ack := p.ack(o.Credit)

	p.mu.Lock()
	p.orders = append(p.orders, PaperFill{Ack: ack, Spread: &o})
	p.mu.Unlock()
	return ack, nil
}

// Fills returns a copy of every simulated execution so far.
func (p *Paper) Fills() []PaperFill {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PaperFill, len(p.orders))
	copy(out, p.orders)
	return out
}

func (p *Paper) ack(price float64) domain.OrderAck {
	return domain.OrderAck{
		OrderID:     uuid.NewString(),
		Status:      StatusFilled,
		FilledPrice: price,
		SubmittedAt: p.now().UTC(),
	}
}

func (p *Paper) lastPrice(ctx context.Context, symbol string) (float64, error) {
	if q, err := p.feed.Quote(ctx, symbol); err == nil && q.Last > 0 {
		return q.Last, nil
	}
	bars, err := p.feed.Bars(ctx, symbol, "1 day", 1)
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, ErrNoMarketData
	}
	return bars[len(bars)-1].Close, nil
}

// StaticFeed is an in-memory ports.MarketData, used for dry runs and tests.
type StaticFeed struct {
	Series  map[string][]domain.Bar
	Quotes  map[string]domain.Quote
	Strikes map[string][]float64 // key: symbol + " " + expiry
}

var _ ports.MarketData = StaticFeed{}

// Bars returns the last count bars stored for symbol, ignoring barSize.
func (f StaticFeed) Bars(_ context.Context, symbol, _ string, count int) ([]domain.Bar, error) {
	bars, ok := f.Series[symbol]
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoMarketData, symbol)
	}
	if count > 0 && len(bars) > count {
		bars = bars[len(bars)-count:]
	}
	out := make([]domain.Bar, len(bars))
	copy(out, bars)
	return out, nil
}

func (f StaticFeed) Quote(_ context.Context, symbol string) (domain.Quote, error) {
	q, ok := f.Quotes[symbol]
	if !ok {
		return domain.Quote{}, fmt.Errorf("%w for %s", ErrNoMarketData, symbol)
	}
	return q, nil
}

func (f StaticFeed) OptionStrikes(_ context.Context, symbol, expiry string) ([]float64, error) {
	return f.Strikes[symbol+" "+expiry], nil
}
