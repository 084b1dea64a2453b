package odoo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/xraph/odoosync"
	"github.com/xraph/odoosync/circuit"
)

const tracerName = "github.com/xraph/odoosync/odoo"

// Executor runs a model method on the remote server. Implementations must
// be safe for concurrent use.
type Executor interface {
	ExecuteKW(ctx context.Context, model, method string, args []any, kwargs map[string]any) (json.RawMessage, error)
}

// Config holds connection settings.
type Config struct {
	URL      string
	Database string
	Username string
	// APIKey is sent in place of the password.
	APIKey string

	// Timeout bounds each HTTP request. Zero means 30s.
	Timeout time.Duration
}

// Client is a JSON-RPC client for Odoo. It is safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	breaker *circuit.Breaker
	tracer  trace.Tracer
	logger  *slog.Logger

	mu     sync.Mutex
	uid    int64
	nextID atomic.Int64
}

var _ Executor = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit caps outbound calls per second. A burst below one is
// raised to one. Zero disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithBreaker gates every call on the breaker and reports outcomes to it.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithTracerProvider sets the provider used for call spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracer = tp.Tracer(tracerName) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client. No network traffic happens until the first call.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.URL == "" || cfg.Database == "" || cfg.Username == "" {
		return nil, errors.New("odoo: url, database and username are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		tracer: otel.Tracer(tracerName),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ──────────────────────────────────────────────────
// Calls
// ──────────────────────────────────────────────────

// ExecuteKW calls model.method through object/execute_kw.
func (c *Client) ExecuteKW(ctx context.Context, model, method string, args []any, kwargs map[string]any) (json.RawMessage, error) {
	ctx, span := c.tracer.Start(ctx, "odoo.execute_kw",
		trace.WithAttributes(
			attribute.String("odoo.model", model),
			attribute.String("odoo.method", method),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	res, err := c.execute(ctx, model, method, args, kwargs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return res, nil
}

func (c *Client) execute(ctx context.Context, model, method string, args []any, kwargs map[string]any) (json.RawMessage, error) {
	if c.breaker != nil && !c.breaker.IsAvailable(ctx) {
		return nil, fmt.Errorf("odoo %s.%s: %w", model, method, odoosync.ErrCircuitOpen)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("odoo: rate limit wait: %w", err)
		}
	}

	uid, err := c.login(ctx)
	if err == nil {
		if args == nil {
			args = []any{}
		}
		if kwargs == nil {
			kwargs = map[string]any{}
		}
		var res json.RawMessage
		res, err = c.call(ctx, "object", "execute_kw",
			[]any{c.cfg.Database, uid, c.cfg.APIKey, model, method, args, kwargs})
		if err == nil {
			c.recordSuccess(ctx)
			return res, nil
		}
	}

	if ctx.Err() == nil && countsAsOutage(err) {
		c.recordFailure(ctx)
	}
	return nil, err
}

// Version returns the server version info from common/version. It does
// not authenticate and bypasses the breaker, so it doubles as a probe.
func (c *Client) Version(ctx context.Context) (map[string]any, error) {
	raw, err := c.call(ctx, "common", "version", []any{})
	if err != nil {
		return nil, err
	}
	var v map[string]any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("odoo: decode version: %w", err)
	}
	return v, nil
}

// login returns the cached uid, authenticating on first use.
func (c *Client) login(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.uid != 0 {
		return c.uid, nil
	}

	raw, err := c.call(ctx, "common", "login", []any{c.cfg.Database, c.cfg.Username, c.cfg.APIKey})
	if err != nil {
		return 0, err
	}
	var uid int64
	if err := json.Unmarshal(raw, &uid); err != nil || uid == 0 {
		// Odoo answers false for bad credentials.
		return 0, &Error{
			HTTPStatus: http.StatusUnauthorized,
			Code:       http.StatusUnauthorized,
			Message:    fmt.Sprintf("access denied: login rejected for %q on %q", c.cfg.Username, c.cfg.Database),
		}
	}
	c.uid = uid
	c.logger.Debug("odoo login", slog.String("db", c.cfg.Database), slog.Int64("uid", uid))
	return uid, nil
}

// ──────────────────────────────────────────────────
// Wire format
// ──────────────────────────────────────────────────

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
	ID      int64     `json:"id"`
}

type rpcParams struct {
	Service string `json:"service"`
	Method  string `json:"method"`
	Args    []any  `json:"args"`
}

type rpcResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int       `json:"code"`
	Message string    `json:"message"`
	Data    ErrorData `json:"data"`
}

func (c *Client) call(ctx context.Context, service, method string, args []any) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  rpcParams{Service: service, Method: method, Args: args},
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return nil, fmt.Errorf("odoo: encode request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.URL, "/") + "/jsonrpc"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("odoo: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("odoo: http error: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("odoo: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{
			HTTPStatus: resp.StatusCode,
			Message:    fmt.Sprintf("http %d: %s", resp.StatusCode, snippet(data)),
		}
	}

	var out rpcResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("odoo: decode response: %w", err)
	}
	if out.Error != nil {
		code := out.Error.Code
		if code == 0 {
			code = http.StatusInternalServerError
		}
		return nil, &Error{
			HTTPStatus: http.StatusInternalServerError,
			Code:       code,
			Message:    out.Error.Message,
			Data:       out.Error.Data,
		}
	}
	return out.Result, nil
}

func (c *Client) recordSuccess(ctx context.Context) {
	if c.breaker == nil {
		return
	}
	if err := c.breaker.RecordSuccess(ctx); err != nil {
		c.logger.Warn("circuit record success failed", slog.String("error", err.Error()))
	}
}

func (c *Client) recordFailure(ctx context.Context) {
	if c.breaker == nil {
		return
	}
	if err := c.breaker.RecordFailure(context.WithoutCancel(ctx)); err != nil {
		c.logger.Warn("circuit record failure failed", slog.String("error", err.Error()))
	}
}

func snippet(b []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		s = s[:limit]
	}
	return s
}
