package ports

import (
	"context"

	"github.com/alejandrodnm/alphaquant/internal/domain"
)

// MarketData serves historical bars and live quotes.
type MarketData interface {
	// Bars returns up to count bars of barSize ("1 day", "5 mins"...) ending
	// now, oldest first.
	Bars(ctx context.Context, symbol, barSize string, count int) ([]domain.Bar, error)

	// Quote returns the current snapshot for symbol.
	Quote(ctx context.Context, symbol string) (domain.Quote, error)

	// OptionStrikes returns the listed strikes for symbol at expiry
	// (YYYYMMDD). An expiry that is not listed returns an empty slice.
	OptionStrikes(ctx context.Context, symbol, expiry string) ([]float64, error)
}

// Broker places orders on the brokerage account.
type Broker interface {
	MarketData

	// PlaceOrder submits a single-leg stock order.
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderAck, error)

	// PlaceSpread submits a two-leg put spread for a limit credit.
	PlaceSpread(ctx context.Context, order domain.SpreadOrder) (domain.OrderAck, error)
}
