// Package api defines the JSON bodies exchanged by the rosca HTTP API and
// its client.
package api

import "github.com/gezibash/arc-rosca/pkg/rosca"

const (
	// CallerHeader names the account a request acts for. Identity is
	// established outside the node; the header is taken at face value.
	CallerHeader = "X-Rosca-Caller"
	// RequestIDHeader carries the request id, echoed on every response.
	RequestIDHeader = "X-Request-ID"
)

// CreateRequest is the body of POST /api/roscas.
type CreateRequest struct {
	Name            string            `json:"name,omitempty"`
	RandomOrder     bool              `json:"random_order,omitempty"`
	Invited         []rosca.AccountID `json:"invited"`
	MinParticipants uint32            `json:"min_participants"`
	Amount          rosca.Balance     `json:"amount"`
	Asset           rosca.Asset       `json:"asset"`
	Frequency       rosca.Moment      `json:"frequency"`
	StartBy         rosca.Moment      `json:"start_by"`
	Position        *uint32           `json:"position,omitempty"`
}

func NewCreateRequest(p rosca.CreateParams) CreateRequest {
	return CreateRequest{
		Name:            p.Name,
		RandomOrder:     p.RandomOrder,
		Invited:         p.Invited,
		MinParticipants: p.MinParticipants,
		Amount:          p.Amount,
		Asset:           p.Asset,
		Frequency:       p.Frequency,
		StartBy:         p.StartBy,
		Position:        p.Position,
	}
}

func (r CreateRequest) Params() rosca.CreateParams {
	return rosca.CreateParams{
		Name:            r.Name,
		RandomOrder:     r.RandomOrder,
		Invited:         r.Invited,
		MinParticipants: r.MinParticipants,
		Amount:          r.Amount,
		Asset:           r.Asset,
		Frequency:       r.Frequency,
		StartBy:         r.StartBy,
		Position:        r.Position,
	}
}

// JoinRequest is the optional body of POST /api/roscas/{id}/join.
type JoinRequest struct {
	Position *uint32 `json:"position,omitempty"`
}

// DepositRequest is the body of POST /api/roscas/{id}/deposit.
type DepositRequest struct {
	Amount rosca.Balance `json:"amount"`
}

// MintRequest is the body of POST /api/ledger/mint.
type MintRequest struct {
	Asset   rosca.Asset     `json:"asset"`
	Account rosca.AccountID `json:"account"`
	Amount  rosca.Balance   `json:"amount"`
}

// BalanceResponse reports one ledger balance.
type BalanceResponse struct {
	Asset   rosca.Asset     `json:"asset"`
	Account rosca.AccountID `json:"account"`
	Balance rosca.Balance   `json:"balance"`
}

type HealthResponse struct {
	Status string       `json:"status"`
	Now    rosca.Moment `json:"now"`
}

// ErrorResponse is the body of every non-2xx response. Code is set for
// named rosca errors and Kind for classified failures.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Kind  string `json:"kind,omitempty"`
}
