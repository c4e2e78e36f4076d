// Package client talks to a rosca node over its HTTP API. Its methods mirror
// the node's service so callers can swap a remote node for a local one.
// Liveness pings can go over the node's gRPC health listener instead.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/gezibash/arc-rosca/internal/archive"
	"github.com/gezibash/arc-rosca/internal/projection"
	"github.com/gezibash/arc-rosca/pkg/api"
	roscaerr "github.com/gezibash/arc-rosca/pkg/errors"
	"github.com/gezibash/arc-rosca/pkg/rosca"
)

const defaultTimeout = 30 * time.Second

// ErrNotServing is returned by Ping when the node reports it is not serving.
var ErrNotServing = errors.New("node not serving")

type Client struct {
	base   *url.URL
	http   *http.Client
	conn   *grpc.ClientConn
	health grpc_health_v1.HealthClient
}

type clientConfig struct {
	http       *http.Client
	timeout    time.Duration
	healthAddr string
}

// Option configures client behavior.
type Option func(*clientConfig)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *clientConfig) { c.http = hc }
}

// WithTimeout bounds every request. It is ignored with WithHTTPClient.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.timeout = d }
}

// WithHealthAddr sends Ping over the grpc.health.v1 service at addr rather
// than the HTTP health endpoint.
func WithHealthAddr(addr string) Option {
	return func(c *clientConfig) { c.healthAddr = addr }
}

// Dial returns a client for the node at addr. A bare host:port is treated
// as http. No request is made until the first call.
func Dial(addr string, opts ...Option) (*Client, error) {
	cfg := &clientConfig{timeout: defaultTimeout}
	for _, o := range opts {
		o(cfg)
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("dial %s: missing host", addr)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	hc := cfg.http
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}
	c := &Client{base: u, http: hc}
	if cfg.healthAddr != "" {
		conn, err := grpc.NewClient(cfg.healthAddr,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
		if err != nil {
			return nil, fmt.Errorf("dial health %s: %w", cfg.healthAddr, err)
		}
		c.conn = conn
		c.health = grpc_health_v1.NewHealthClient(conn)
	}
	return c, nil
}

func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Addr returns the base URL of the node.
func (c *Client) Addr() string { return c.base.String() }

// Ping measures the round trip of a health check.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if c.health == nil {
		if _, err := c.Health(ctx); err != nil {
			return 0, err
		}
		return time.Since(start), nil
	}
	resp, err := c.health.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		return 0, fmt.Errorf("health check: %w", err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		return 0, fmt.Errorf("%w: %s", ErrNotServing, resp.GetStatus())
	}
	return time.Since(start), nil
}

func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var out api.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/api/health", "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Create(ctx context.Context, creator rosca.AccountID, p rosca.CreateParams) (*rosca.Receipt, error) {
	return c.receipt(ctx, "/api/roscas", creator, api.NewCreateRequest(p))
}

func (c *Client) Join(ctx context.Context, id rosca.ID, who rosca.AccountID, position *uint32) (*rosca.Receipt, error) {
	return c.receipt(ctx, actionPath(id, "join"), who, api.JoinRequest{Position: position})
}

func (c *Client) Leave(ctx context.Context, id rosca.ID, who rosca.AccountID) (*rosca.Receipt, error) {
	return c.receipt(ctx, actionPath(id, "leave"), who, nil)
}

func (c *Client) Start(ctx context.Context, id rosca.ID, who rosca.AccountID) (*rosca.Receipt, error) {
	return c.receipt(ctx, actionPath(id, "start"), who, nil)
}

func (c *Client) Contribute(ctx context.Context, id rosca.ID, who rosca.AccountID) (*rosca.Receipt, error) {
	return c.receipt(ctx, actionPath(id, "contribute"), who, nil)
}

func (c *Client) ManuallyEnd(ctx context.Context, id rosca.ID, who rosca.AccountID) (*rosca.Receipt, error) {
	return c.receipt(ctx, actionPath(id, "end"), who, nil)
}

func (c *Client) AddDeposit(ctx context.Context, id rosca.ID, who rosca.AccountID, amount rosca.Balance) (*rosca.Receipt, error) {
	return c.receipt(ctx, actionPath(id, "deposit"), who, api.DepositRequest{Amount: amount})
}

func (c *Client) ClaimDeposit(ctx context.Context, id rosca.ID, who rosca.AccountID) (*rosca.Receipt, error) {
	return c.receipt(ctx, actionPath(id, "claim"), who, nil)
}

func (c *Client) Mint(ctx context.Context, asset rosca.Asset, account rosca.AccountID, amount rosca.Balance) (rosca.Balance, error) {
	var out api.BalanceResponse
	err := c.do(ctx, http.MethodPost, "/api/ledger/mint", "", api.MintRequest{Asset: asset, Account: account, Amount: amount}, &out)
	return out.Balance, err
}

func (c *Client) Balance(ctx context.Context, asset rosca.Asset, account rosca.AccountID) (rosca.Balance, error) {
	var out api.BalanceResponse
	path := "/api/ledger/" + asset.String() + "/" + url.PathEscape(string(account))
	err := c.do(ctx, http.MethodGet, path, "", nil, &out)
	return out.Balance, err
}

func (c *Client) Get(ctx context.Context, id rosca.ID) (*rosca.State, error) {
	var out rosca.State
	if err := c.do(ctx, http.MethodGet, roscaPath(id), "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) List(ctx context.Context, filter string) ([]*rosca.State, error) {
	path := "/api/roscas"
	if filter != "" {
		path += "?filter=" + url.QueryEscape(filter)
	}
	var out []*rosca.State
	err := c.do(ctx, http.MethodGet, path, "", nil, &out)
	return out, err
}

func (c *Client) Summary(ctx context.Context, id rosca.ID) (*projection.Summary, error) {
	var out projection.Summary
	if err := c.do(ctx, http.MethodGet, roscaPath(id)+"/summary", "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Rounds(ctx context.Context, id rosca.ID) ([]projection.RoundRecord, error) {
	var out []projection.RoundRecord
	err := c.do(ctx, http.MethodGet, roscaPath(id)+"/rounds", "", nil, &out)
	return out, err
}

func (c *Client) Events(ctx context.Context, id rosca.ID, after uint64) ([]projection.Record, error) {
	var out []projection.Record
	path := roscaPath(id) + "/events?after=" + strconv.FormatUint(after, 10)
	err := c.do(ctx, http.MethodGet, path, "", nil, &out)
	return out, err
}

func (c *Client) Archived(ctx context.Context, id rosca.ID) (*archive.Snapshot, error) {
	var out archive.Snapshot
	if err := c.do(ctx, http.MethodGet, roscaPath(id)+"/archive", "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func roscaPath(id rosca.ID) string { return "/api/roscas/" + id.String() }

func actionPath(id rosca.ID, action string) string { return roscaPath(id) + "/" + action }

func (c *Client) receipt(ctx context.Context, path string, who rosca.AccountID, body any) (*rosca.Receipt, error) {
	var out rosca.Receipt
	if err := c.do(ctx, http.MethodPost, path, who, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, who rosca.AccountID, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if who != "" {
		req.Header.Set(api.CallerHeader, string(who))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &retryableError{cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Error is a failure reported by the node. It matches the named rosca error
// and error kind it was raised with, so errors.Is works as it does locally.
type Error struct {
	Status    int
	Message   string
	Code      string
	Kind      string
	RequestID string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() []error {
	var out []error
	if named, ok := rosca.LookupError(e.Code); ok {
		out = append(out, named)
	} else if kind := roscaerr.KindByName(e.Kind); kind != nil {
		out = append(out, kind)
	}
	switch e.Status {
	case http.StatusNotFound:
		out = append(out, roscaerr.ErrNotFound)
	case http.StatusBadRequest:
		out = append(out, roscaerr.ErrInvalidInput)
	}
	return out
}

func decodeError(resp *http.Response) error {
	e := &Error{Status: resp.StatusCode, RequestID: resp.Header.Get(api.RequestIDHeader)}
	var body api.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil || body.Error == "" {
		e.Message = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	} else {
		e.Message, e.Code, e.Kind = body.Error, body.Code, body.Kind
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		return &retryableError{cause: e}
	}
	return e
}

type retryableError struct {
	cause error
}

func (e *retryableError) Error() string { return e.cause.Error() }
func (e *retryableError) Unwrap() error { return e.cause }

// Retryable reports whether err is a transport failure or a throttled or
// unavailable response that may succeed when retried.
func Retryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
