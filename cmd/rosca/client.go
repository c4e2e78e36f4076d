package main

import (
	"context"
	"time"

	"github.com/gezibash/arc-rosca/internal/archive"
	"github.com/gezibash/arc-rosca/internal/node"
	"github.com/gezibash/arc-rosca/internal/projection"
	"github.com/gezibash/arc-rosca/internal/service"
	"github.com/gezibash/arc-rosca/pkg/rosca"
)

// RoscaClient defines what the commands need from a rosca node.
// *client.Client satisfies it remotely and localClient in-process.
type RoscaClient interface {
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

	Ping(ctx context.Context) (time.Duration, error)
	Close() error
}

// localClient runs commands against a node opened in this process.
type localClient struct {
	*service.Service
	node *node.Node
}

func (l *localClient) Ping(context.Context) (time.Duration, error) { return 0, nil }

func (l *localClient) Close() error { return l.node.Close() }
