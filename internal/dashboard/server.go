package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/alphaquant/internal/adapters/notify"
	"github.com/alejandrodnm/alphaquant/internal/adapters/storage"
	"github.com/alejandrodnm/alphaquant/internal/application/engine"
	"github.com/alejandrodnm/alphaquant/internal/application/report"
	"github.com/alejandrodnm/alphaquant/internal/domain"
	"github.com/alejandrodnm/alphaquant/internal/metrics"
	"github.com/alejandrodnm/alphaquant/internal/ports"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultMaxUpload limita el tamaño de la request de un CSV subido.
const DefaultMaxUpload = 10 << 20

// Runner es lo que el dashboard necesita del engine.
type Runner interface {
	Run(ctx context.Context, cfg engine.RunConfig) (map[string][]domain.TradeRecord, error)
	Strategies() []string
}

// Server sirve el dashboard HTML y la API JSON sobre el trade log.
type Server struct {
	log     ports.TradeLog
	runner  Runner
	metrics *Metrics
	router  *gin.Engine
	reg     *prometheus.Registry

	maxUpload int64
}

// Option configura un Server.
type Option func(*Server)

// WithMaxUpload cambia el tamaño máximo de la request de subida de trades.
func WithMaxUpload(n int64) Option {
	return func(s *Server) { s.maxUpload = n }
}

// NewServer crea el servidor. runner puede ser nil: /api/run responde 503.
func NewServer(log ports.TradeLog, runner Runner, opts ...Option) *Server {
	reg := prometheus.NewRegistry()
	s := &Server{
		log:       log,
		runner:    runner,
		metrics:   NewMetrics(reg),
		reg:       reg,
		maxUpload: DefaultMaxUpload,
	}
	for _, o := range opts {
		o(s)
	}
	s.setupRoutes()
	return s
}

// Metrics devuelve los collectors del servidor (para engine.WithObserver).
func (s *Server) Metrics() *Metrics { return s.metrics }

// Handler devuelve el http.Handler del dashboard.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), s.metrics.Middleware())
	r.SetHTMLTemplate(indexTmpl)
	r.MaxMultipartMemory = s.maxUpload

	r.GET("/", s.index)
	r.GET("/healthz", s.healthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	{
		api.GET("/summary", s.getSummary)
		api.GET("/summary.csv", s.getSummaryCSV)
		api.GET("/strategies/:name", s.getStrategy)
		api.POST("/strategies/:name/trades", s.uploadTrades)
		api.POST("/run", s.run)
	}
	s.router = r
}

// ListenAndServe sirve en addr hasta que ctx se cancele y luego hace un
// shutdown ordenado.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("dashboard listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("dashboard.ListenAndServe: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("dashboard.ListenAndServe: shutdown: %w", err)
		}
		slog.Info("dashboard stopped")
		return nil
	}
}

// --- handlers ---

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) index(c *gin.Context) {
	rows, err := s.summary(c)
	if err != nil {
		c.String(statusFor(err), err.Error())
		return
	}
	table := make([][]string, len(rows))
	for i, r := range rows {
		table[i] = report.Row(r)
	}
	c.HTML(http.StatusOK, "index", gin.H{
		"Header": report.Header(),
		"Rows":   table,
		"Empty":  notify.NoSummary,
	})
}

func (s *Server) getSummary(c *gin.Context) {
	rows, err := s.summary(c)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategies": rows})
}

func (s *Server) getSummaryCSV(c *gin.Context) {
	rows, err := s.summary(c)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+report.SummaryFile+`"`)
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)
	if err := report.WriteCSV(c.Writer, rows); err != nil {
		c.Error(err)
	}
}

type tradeJSON struct {
	Timestamp time.Time         `json:"timestamp"`
	Symbol    string            `json:"symbol"`
	Action    string            `json:"action"`
	Price     float64           `json:"price"`
	PnL       string            `json:"pnl"`
	Duration  string            `json:"duration,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

type detailJSON struct {
	Strategy  string              `json:"strategy"`
	HasTrades bool                `json:"has_trades"`
	Message   string              `json:"message,omitempty"`
	Trades    []tradeJSON         `json:"trades"`
	Metrics   metrics.Result      `json:"metrics"`
	Curve     metrics.EquityCurve `json:"curve"`
}

func (s *Server) getStrategy(c *gin.Context) {
	name := c.Param("name")
	d, err := report.Detail(c.Request.Context(), s.log, name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !d.HasTrades() && !s.known(name) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown strategy " + strconv.Quote(name)})
		return
	}

	out := detailJSON{
		Strategy:  d.Strategy,
		HasTrades: d.HasTrades(),
		Trades:    make([]tradeJSON, 0, len(d.Trades)),
		Metrics:   d.Metrics,
		Curve:     d.Curve,
	}
	if !d.HasTrades() {
		out.Message = notify.NoTrades
	}
	for _, t := range d.Trades {
		out.Trades = append(out.Trades, tradeJSON{
			Timestamp: t.Timestamp, Symbol: t.Symbol, Action: t.Action, Price: t.Price,
			PnL: string(t.PnL), Duration: string(t.Duration), Extra: t.Extra,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) uploadTrades(c *gin.Context) {
	name := c.Param("name")
	if c.Request.ContentLength > s.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	// sin Content-Length (chunked) el límite lo impone la lectura
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	trades, err := storage.ReadCSV(f, name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := storage.Import(c.Request.Context(), s.log, trades)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.metrics.ObserveAppended(name, res.Inserted)
	slog.Info("trades uploaded", "strategy", name, "inserted", res.Inserted, "skipped", res.Skipped)
	c.JSON(http.StatusOK, gin.H{"strategy": name, "inserted": res.Inserted, "skipped": res.Skipped})
}

type runRequest struct {
	Live bool     `json:"live"`
	Only []string `json:"only"`
}

func (s *Server) run(c *gin.Context) {
	if s.runner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no strategies configured"})
		return
	}
	var req runRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}

	logs, err := s.runner.Run(c.Request.Context(), engine.RunConfig{Live: req.Live, Only: req.Only})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	rows := report.FromLogs(logs)
	s.metrics.ObserveSummary(rows)
	c.JSON(http.StatusOK, gin.H{"live": req.Live, "strategies": rows})
}

// summary construye el resumen aplicando ?strategy=, ?sort= y ?asc=.
func (s *Server) summary(c *gin.Context) ([]ports.StrategySummary, error) {
	rows, err := report.Build(c.Request.Context(), s.log, s.names(c.Request.Context()))
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveSummary(rows)

	rows = report.Filter(rows, splitList(c.QueryArray("strategy")))
	asc, _ := strconv.ParseBool(c.DefaultQuery("asc", "false"))
	sortKey := c.Query("sort")
	if sortKey == "" {
		sortKey, asc = report.KeyStrategy, true
	}
	if err := report.Sort(rows, sortKey, asc); err != nil {
		return nil, err
	}
	return rows, nil
}

// names une las estrategias configuradas con las que tienen log, para que
// una estrategia sin trades también aparezca.
func (s *Server) names(ctx context.Context) []string {
	if s.runner == nil {
		return nil
	}
	logged, err := s.log.Strategies(ctx)
	if err != nil {
		return nil
	}
	all := append(slices.Clone(s.runner.Strategies()), logged...)
	slices.Sort(all)
	return slices.Compact(all)
}

func (s *Server) known(name string) bool {
	return s.runner != nil && slices.Contains(s.runner.Strategies(), name)
}

func splitList(vals []string) []string {
	var out []string
	for _, v := range vals {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, report.ErrUnknownKey), errors.Is(err, engine.ErrUnknownStrategy):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNoBroker):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
