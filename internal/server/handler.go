// Package server exposes the rosca service as an HTTP JSON API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gezibash/arc-rosca/internal/archive"
	"github.com/gezibash/arc-rosca/internal/middleware"
	"github.com/gezibash/arc-rosca/internal/observability"
	"github.com/gezibash/arc-rosca/internal/projection"
	"github.com/gezibash/arc-rosca/pkg/api"
	roscaerr "github.com/gezibash/arc-rosca/pkg/errors"
	"github.com/gezibash/arc-rosca/pkg/rosca"
)

const maxBodyBytes = 1 << 20

// Service is the part of the rosca service the API exposes.
type Service interface {
	Now() rosca.Moment
	Create(ctx context.Context, creator rosca.AccountID, p rosca.CreateParams) (*rosca.Receipt, error)
	Join(ctx context.Context, id rosca.ID, who rosca.AccountID, position *uint32) (*rosca.Receipt, error)
	Leave(ctx context.Context, id rosca.ID, who rosca.AccountID) (*rosca.Receipt, error)
	Start(ctx context.Context, id rosca.ID, who rosca.AccountID) (*rosca.Receipt, error)
	Contribute(ctx context.Context, id rosca.ID, who rosca.AccountID) (*rosca.Receipt, error)
	ManuallyEnd(ctx context.Context, id rosca.ID, who rosca.AccountID) (*rosca.Receipt, error)
	AddDeposit(ctx context.Context, id rosca.ID, who rosca.AccountID, amount rosca.Balance) (*rosca.Receipt, error)
	ClaimDeposit(ctx context.Context, id rosca.ID, who rosca.AccountID) (*rosca.Receipt, error)
	Mint(ctx context.Context, asset rosca.Asset, account rosca.AccountID, amount rosca.Balance) (rosca.Balance, error)
	Balance(ctx context.Context, asset rosca.Asset, account rosca.AccountID) (rosca.Balance, error)
	Get(ctx context.Context, id rosca.ID) (*rosca.State, error)
	List(ctx context.Context, filter string) ([]*rosca.State, error)
	Summary(ctx context.Context, id rosca.ID) (*projection.Summary, error)
	Rounds(ctx context.Context, id rosca.ID) ([]projection.RoundRecord, error)
	Events(ctx context.Context, id rosca.ID, after uint64) ([]projection.Record, error)
	Archived(ctx context.Context, id rosca.ID) (*archive.Snapshot, error)
}

// Handler routes API requests to a Service.
type Handler struct {
	svc     Service
	chain   *middleware.Chain
	router  *mux.Router
	serving atomic.Bool
}

// NewHandler builds the API router. Every route runs through the tracing
// and metrics middleware and then the request id, rate limit and log hooks.
func NewHandler(svc Service, m *observability.Metrics, opts Options) *Handler {
	h := &Handler{
		svc: svc,
		chain: &middleware.Chain{
			Pre:  []middleware.Hook{middleware.RequestIDHook(), middleware.RateLimitHook(opts.RateLimit, opts.Burst)},
			Post: []middleware.Hook{middleware.LogHook()},
		},
	}
	h.serving.Store(true)

	r := mux.NewRouter()
	r.Use(observability.HTTPMiddleware(m, routeName), h.hooks)

	r.HandleFunc("/api/health", h.health).Methods(http.MethodGet).Name("health")

	r.HandleFunc("/api/roscas", h.create).Methods(http.MethodPost).Name("create")
	r.HandleFunc("/api/roscas", h.list).Methods(http.MethodGet).Name("list")
	r.HandleFunc("/api/roscas/{id:[0-9]+}", h.get).Methods(http.MethodGet).Name("get")
	r.HandleFunc("/api/roscas/{id:[0-9]+}/summary", h.summary).Methods(http.MethodGet).Name("summary")
	r.HandleFunc("/api/roscas/{id:[0-9]+}/rounds", h.rounds).Methods(http.MethodGet).Name("rounds")
	r.HandleFunc("/api/roscas/{id:[0-9]+}/events", h.events).Methods(http.MethodGet).Name("events")
	r.HandleFunc("/api/roscas/{id:[0-9]+}/archive", h.archived).Methods(http.MethodGet).Name("archive")

	r.HandleFunc("/api/roscas/{id:[0-9]+}/join", h.join).Methods(http.MethodPost).Name("join")
	r.HandleFunc("/api/roscas/{id:[0-9]+}/deposit", h.deposit).Methods(http.MethodPost).Name("deposit")
	r.HandleFunc("/api/roscas/{id:[0-9]+}/leave", h.action(svc.Leave)).Methods(http.MethodPost).Name("leave")
	r.HandleFunc("/api/roscas/{id:[0-9]+}/start", h.action(svc.Start)).Methods(http.MethodPost).Name("start")
	r.HandleFunc("/api/roscas/{id:[0-9]+}/contribute", h.action(svc.Contribute)).Methods(http.MethodPost).Name("contribute")
	r.HandleFunc("/api/roscas/{id:[0-9]+}/end", h.action(svc.ManuallyEnd)).Methods(http.MethodPost).Name("end")
	r.HandleFunc("/api/roscas/{id:[0-9]+}/claim", h.action(svc.ClaimDeposit)).Methods(http.MethodPost).Name("claim")

	r.HandleFunc("/api/ledger/mint", h.mint).Methods(http.MethodPost).Name("mint")
	r.HandleFunc("/api/ledger/{asset}/{account}", h.balance).Methods(http.MethodGet).Name("balance")

	if m != nil {
		r.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet).Name("metrics")
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "no such route"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, api.ErrorResponse{Error: "method not allowed"})
	})

	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// SetServing controls whether the health endpoint reports ok.
func (h *Handler) SetServing(serving bool) {
	h.serving.Store(serving)
}

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		return route.GetName()
	}
	return ""
}

func (h *Handler) hooks(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := &middleware.CallInfo{
			Method:     r.Method,
			Route:      routeName(r),
			RemoteAddr: r.RemoteAddr,
			Caller:     r.Header.Get(api.CallerHeader),
			RequestID:  r.Header.Get(api.RequestIDHeader),
		}
		ctx, err := h.chain.RunPre(r.Context(), info)
		if info.RequestID != "" {
			w.Header().Set(api.RequestIDHeader, info.RequestID)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
		_, _ = h.chain.RunPost(ctx, info)
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if !h.serving.Load() {
		writeJSON(w, http.StatusServiceUnavailable, api.HealthResponse{Status: "unavailable", Now: h.svc.Now()})
		return
	}
	writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok", Now: h.svc.Now()})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req api.CreateRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := h.svc.Create(r.Context(), who, req.Params())
	respond(w, r, http.StatusCreated, receipt, err)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	states, err := h.svc.List(r.Context(), r.URL.Query().Get("filter"))
	if states == nil {
		states = []*rosca.State{}
	}
	respond(w, r, http.StatusOK, states, err)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := roscaID(w, r)
	if !ok {
		return
	}
	st, err := h.svc.Get(r.Context(), id)
	respond(w, r, http.StatusOK, st, err)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	id, ok := roscaID(w, r)
	if !ok {
		return
	}
	sum, err := h.svc.Summary(r.Context(), id)
	respond(w, r, http.StatusOK, sum, err)
}

func (h *Handler) rounds(w http.ResponseWriter, r *http.Request) {
	id, ok := roscaID(w, r)
	if !ok {
		return
	}
	rounds, err := h.svc.Rounds(r.Context(), id)
	if rounds == nil {
		rounds = []projection.RoundRecord{}
	}
	respond(w, r, http.StatusOK, rounds, err)
}

func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	id, ok := roscaID(w, r)
	if !ok {
		return
	}
	var after uint64
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: after %q", roscaerr.ErrInvalidInput, v))
			return
		}
		after = n
	}
	records, err := h.svc.Events(r.Context(), id, after)
	if records == nil {
		records = []projection.Record{}
	}
	respond(w, r, http.StatusOK, records, err)
}

func (h *Handler) archived(w http.ResponseWriter, r *http.Request) {
	id, ok := roscaID(w, r)
	if !ok {
		return
	}
	snap, err := h.svc.Archived(r.Context(), id)
	respond(w, r, http.StatusOK, snap, err)
}

func (h *Handler) join(w http.ResponseWriter, r *http.Request) {
	id, who, ok := target(w, r)
	if !ok {
		return
	}
	var req api.JoinRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := h.svc.Join(r.Context(), id, who, req.Position)
	respond(w, r, http.StatusOK, receipt, err)
}

func (h *Handler) deposit(w http.ResponseWriter, r *http.Request) {
	id, who, ok := target(w, r)
	if !ok {
		return
	}
	var req api.DepositRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := h.svc.AddDeposit(r.Context(), id, who, req.Amount)
	respond(w, r, http.StatusOK, receipt, err)
}

// action adapts the operations that take only an id and a caller.
func (h *Handler) action(fn func(context.Context, rosca.ID, rosca.AccountID) (*rosca.Receipt, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, who, ok := target(w, r)
		if !ok {
			return
		}
		receipt, err := fn(r.Context(), id, who)
		respond(w, r, http.StatusOK, receipt, err)
	}
}

func (h *Handler) mint(w http.ResponseWriter, r *http.Request) {
	var req api.MintRequest
	if !decode(w, r, &req) {
		return
	}
	bal, err := h.svc.Mint(r.Context(), req.Asset, req.Account, req.Amount)
	respond(w, r, http.StatusOK, api.BalanceResponse{Asset: req.Asset, Account: req.Account, Balance: bal}, err)
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	asset, err := rosca.ParseAsset(vars["asset"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	account := rosca.AccountID(vars["account"])
	bal, err := h.svc.Balance(r.Context(), asset, account)
	respond(w, r, http.StatusOK, api.BalanceResponse{Asset: asset, Account: account, Balance: bal}, err)
}

func respond(w http.ResponseWriter, r *http.Request, code int, v any, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, code, v)
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, fmt.Errorf("%w: decode body: %v", roscaerr.ErrInvalidInput, err))
		return false
	}
	return true
}

func roscaID(w http.ResponseWriter, r *http.Request) (rosca.ID, bool) {
	id, err := rosca.ParseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", roscaerr.ErrInvalidInput, err))
		return 0, false
	}
	return id, true
}

func caller(w http.ResponseWriter, r *http.Request) (rosca.AccountID, bool) {
	who := rosca.AccountID(r.Header.Get(api.CallerHeader))
	if who == "" {
		writeError(w, r, fmt.Errorf("%w: missing %s header", roscaerr.ErrInvalidInput, api.CallerHeader))
		return "", false
	}
	return who, true
}

func target(w http.ResponseWriter, r *http.Request) (rosca.ID, rosca.AccountID, bool) {
	id, ok := roscaID(w, r)
	if !ok {
		return 0, "", false
	}
	who, ok := caller(w, r)
	return id, who, ok
}
