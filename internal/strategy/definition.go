package strategy

import (
	"errors"
	"fmt"
	"time"
)

// Strategy kinds.
const (
	KindCrossover = "sma_crossover"
	KindBullPut   = "bull_put_spread"
)

// P&L models for the crossover.
const (
	PnLSMADistance = "sma_distance"
	PnLRoundTrip   = "round_trip"
)

// ErrInvalidDefinition wraps every validation failure.
var ErrInvalidDefinition = errors.New("invalid strategy definition")

// SymbolWindow is a traded symbol with its own SMA window.
type SymbolWindow struct {
	Symbol string `yaml:"symbol"`
	Window int    `yaml:"window"`
}

// Definition describe una estrategia configurada en el YAML.
// Los campos que no aplican al kind se ignoran.
type Definition struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`

	Quantity float64 `yaml:"quantity"`

	// sma_crossover
	Symbols          []SymbolWindow `yaml:"symbols"`
	BarSize          string         `yaml:"bar_size"`
	Cooldown         time.Duration  `yaml:"cooldown"`
	MinMove          float64        `yaml:"min_move"`     // absolute, vs the previous trade price
	MinMovePct       float64        `yaml:"min_move_pct"` // relative, only for a repeated action
	Positional       bool           `yaml:"positional"`
	DoubleOnReversal bool           `yaml:"double_on_reversal"`
	PnLModel         string         `yaml:"pnl_model"`

	// bull_put_spread
	Symbol      string  `yaml:"symbol"`
	Exchange    string  `yaml:"exchange"`
	OTMPct      float64 `yaml:"otm_pct"`
	StrikeBand  float64 `yaml:"strike_band"`
	Width       float64 `yaml:"width"`
	Credit      float64 `yaml:"credit"`
	DefaultOpen float64 `yaml:"default_open"`
}

func (d Definition) withDefaults() Definition {
	if d.Name == "" {
		d.Name = d.Kind
	}
	if d.Quantity <= 0 {
		d.Quantity = 1
	}
	switch d.Kind {
	case KindCrossover:
		if d.BarSize == "" {
			d.BarSize = "1 day"
		}
		if d.PnLModel == "" {
			d.PnLModel = PnLSMADistance
		}
	case KindBullPut:
		if d.Symbol == "" {
			d.Symbol = "SPX"
		}
		if d.Exchange == "" {
			d.Exchange = "CBOE"
		}
		if d.OTMPct <= 0 {
			d.OTMPct = 0.01
		}
		if d.StrikeBand <= 0 {
			d.StrikeBand = 50
		}
		if d.Width <= 0 {
			d.Width = 5
		}
		if d.Credit <= 0 {
			d.Credit = 0.50
		}
		if d.DefaultOpen <= 0 {
			d.DefaultOpen = 5000
		}
	}
	return d
}

func (d Definition) validateCrossover() error {
	if len(d.Symbols) == 0 {
		return fmt.Errorf("%w: %s: no symbols", ErrInvalidDefinition, d.Name)
	}
	for _, s := range d.Symbols {
		if s.Symbol == "" || s.Window < 1 {
			return fmt.Errorf("%w: %s: symbol %q window %d", ErrInvalidDefinition, d.Name, s.Symbol, s.Window)
		}
	}
	if d.PnLModel != PnLSMADistance && d.PnLModel != PnLRoundTrip {
		return fmt.Errorf("%w: %s: pnl_model %q", ErrInvalidDefinition, d.Name, d.PnLModel)
	}
	if d.MinMove < 0 || d.MinMovePct < 0 || d.Cooldown < 0 {
		return fmt.Errorf("%w: %s: negative threshold", ErrInvalidDefinition, d.Name)
	}
	return nil
}
