package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/alphaquant/internal/domain"
	"github.com/alejandrodnm/alphaquant/internal/ports"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "http://127.0.0.1:5000"

	// Market data pacing is far stricter than order entry on retail gateways:
	// ~60 historical requests per 10 minutes is the documented ceiling.
	marketDataRatePerSec = 5
	ordersRatePerSec     = 10

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Options configures a Client.
type Options struct {
	BaseURL string
	Account string
	Token   string
	Timeout time.Duration

	RetryWait time.Duration // base backoff, doubled on each retry
}

// Client es el HTTP client del gateway del broker con rate limiting y retries.
type Client struct {
	http        *http.Client
	baseURL     string
	account     string
	token       string
	dataLimiter *rate.Limiter
	ordLimiter  *rate.Limiter
	retryWait   time.Duration
}

var _ ports.Broker = (*Client)(nil)

// NewClient crea un Client. Si BaseURL está vacío usa el gateway local.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = baseRetryWait
	}
	return &Client{
		http:        &http.Client{Timeout: opts.Timeout},
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		account:     opts.Account,
		token:       opts.Token,
		dataLimiter: rate.NewLimiter(marketDataRatePerSec, 5),
		ordLimiter:  rate.NewLimiter(ordersRatePerSec, 10),
		retryWait:   opts.RetryWait,
	}
}

// --- wire types ---

type barJSON struct {
	Time   time.Time `json:"t"`
	Open   float64   `json:"o"`
	High   float64   `json:"h"`
	Low    float64   `json:"l"`
	Close  float64   `json:"c"`
	Volume float64   `json:"v"`
}

type barsResponse struct {
	Symbol string    `json:"symbol"`
	Bars   []barJSON `json:"bars"`
}

type quoteResponse struct {
	Symbol string  `json:"symbol"`
	Last   float64 `json:"last"`
	Open   float64 `json:"open"`
	Close  float64 `json:"close"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

type strikesResponse struct {
	Expirations []string  `json:"expirations"`
	Strikes     []float64 `json:"strikes"`
}

type orderPayload struct {
	Symbol     string  `json:"symbol"`
	SecType    string  `json:"sec_type"`
	Side       string  `json:"side"`
	Quantity   float64 `json:"quantity"`
	OrderType  string  `json:"order_type"`
	LimitPrice float64 `json:"limit_price,omitempty"`
	TIF        string  `json:"tif"`
}

type legPayload struct {
	Right  string  `json:"right"`
	Strike float64 `json:"strike"`
	Side   string  `json:"side"`
	Ratio  int     `json:"ratio"`
}

type spreadPayload struct {
	Symbol     string       `json:"symbol"`
	Exchange   string       `json:"exchange"`
	Expiry     string       `json:"expiry"`
	Side       string       `json:"side"`
	Quantity   float64      `json:"quantity"`
	OrderType  string       `json:"order_type"`
	LimitPrice float64      `json:"limit_price"`
	Legs       []legPayload `json:"legs"`
}

type orderResponse struct {
	OrderID     string    `json:"order_id"`
	Status      string    `json:"status"`
	FilledPrice float64   `json:"filled_price"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// --- ports.Broker ---

// Bars devuelve las velas históricas de symbol, la más antigua primero.
func (c *Client) Bars(ctx context.Context, symbol, barSize string, count int) ([]domain.Bar, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("bar", barSize)
	q.Set("limit", strconv.Itoa(count))

	var resp barsResponse
	if err := c.get(ctx, c.dataLimiter, "/v1/marketdata/bars?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("broker.Bars %s: %w", symbol, err)
	}

	bars := make([]domain.Bar, 0, len(resp.Bars))
	for _, b := range resp.Bars {
		bars = append(bars, domain.Bar{
			Time: b.Time, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume,
		})
	}
	return bars, nil
}

// Quote devuelve el snapshot actual de symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	var resp quoteResponse
	if err := c.get(ctx, c.dataLimiter, "/v1/marketdata/quote?symbol="+url.QueryEscape(symbol), &resp); err != nil {
		return domain.Quote{}, fmt.Errorf("broker.Quote %s: %w", symbol, err)
	}
	return domain.Quote{
		Symbol: symbol, Last: resp.Last, Open: resp.Open, Close: resp.Close, Bid: resp.Bid, Ask: resp.Ask,
	}, nil
}

// OptionStrikes devuelve los strikes listados para expiry, o nada si el
// vencimiento no cotiza.
func (c *Client) OptionStrikes(ctx context.Context, symbol, expiry string) ([]float64, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("expiry", expiry)

	var resp strikesResponse
	if err := c.get(ctx, c.dataLimiter, "/v1/options/strikes?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("broker.OptionStrikes %s %s: %w", symbol, expiry, err)
	}
	if len(resp.Expirations) > 0 && !contains(resp.Expirations, expiry) {
		return nil, nil
	}
	return resp.Strikes, nil
}

// PlaceOrder envía una orden de acciones de una sola pata.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderAck, error) {
	orderType := req.OrderType
	if orderType == "" {
		orderType = domain.OrderTypeMarket
	}
	body := orderPayload{
		Symbol:     req.Symbol,
		SecType:    "STK",
		Side:       req.Action,
		Quantity:   req.Quantity,
		OrderType:  orderType,
		LimitPrice: req.LimitPrice,
		TIF:        "DAY",
	}

	var resp orderResponse
	if err := c.post(ctx, c.ordLimiter, c.accountPath("orders"), body, &resp); err != nil {
		return domain.OrderAck{}, fmt.Errorf("broker.PlaceOrder %s %s: %w", req.Action, req.Symbol, err)
	}
	slog.Debug("order submitted", "symbol", req.Symbol, "action", req.Action, "qty", req.Quantity, "order_id", resp.OrderID)
	return toAck(resp), nil
}

// PlaceSpread envía un put spread vendido (credit) como orden combo.
func (c *Client) PlaceSpread(ctx context.Context, o domain.SpreadOrder) (domain.OrderAck, error) {
	right := o.Right
	if right == "" {
		right = "P"
	}
	body := spreadPayload{
		Symbol:     o.Symbol,
		Exchange:   o.Exchange,
		Expiry:     o.Expiry,
		Side:       domain.ActionSell,
		Quantity:   o.Quantity,
		OrderType:  domain.OrderTypeLimit,
		LimitPrice: o.Credit,
		Legs: []legPayload{
			{Right: right, Strike: o.SellStrike, Side: domain.ActionSell, Ratio: 1},
			{Right: right, Strike: o.BuyStrike, Side: domain.ActionBuy, Ratio: 1},
		},
	}

	var resp orderResponse
	if err := c.post(ctx, c.ordLimiter, c.accountPath("spreads"), body, &resp); err != nil {
		return domain.OrderAck{}, fmt.Errorf("broker.PlaceSpread %s %s: %w", o.Symbol, o.Expiry, err)
	}
	return toAck(resp), nil
}

func (c *Client) accountPath(resource string) string {
	return "/v1/accounts/" + url.PathEscape(c.account) + "/" + resource
}

func toAck(r orderResponse) domain.OrderAck {
	at := r.SubmittedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return domain.OrderAck{OrderID: r.OrderID, Status: r.Status, FilledPrice: r.FilledPrice, SubmittedAt: at}
}

// --- transporte ---

// get hace un GET con rate limiting y retries.
func (c *Client) get(ctx context.Context, limiter *rate.Limiter, path string, out any) error {
	return c.doWithRetry(ctx, limiter, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		c.setHeaders(req)
		return c.http.Do(req)
	}, out)
}

// post hace un POST JSON con rate limiting y retries.
func (c *Client) post(ctx context.Context, limiter *rate.Limiter, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	return c.doWithRetry(ctx, limiter, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		c.setHeaders(req)
		return c.http.Do(req)
	}, out)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// doWithRetry ejecuta la función con backoff exponencial, respetando el contexto.
func (c *Client) doWithRetry(ctx context.Context, limiter *rate.Limiter, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if attempt == maxRetries || ctx.Err() != nil {
				return fmt.Errorf("request failed after %d retries: %w", attempt, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("rate limited by broker", "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.retryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
