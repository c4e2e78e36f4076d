package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/gezibash/arc-rosca/internal/cli"
	"github.com/gezibash/arc-rosca/internal/projection"
	"github.com/gezibash/arc-rosca/pkg/rosca"
)

func newCircleCmd(s *session) *cobra.Command {
	cmd := s.hooks(&cobra.Command{
		Use:     "circle",
		Aliases: []string{"c"},
		Short:   "Create, run and inspect roscas",
	})
	cmd.PersistentFlags().String("as", "", "account acting in the command (env ROSCA_ACCOUNT)")
	_ = s.v.BindPFlag("account", cmd.PersistentFlags().Lookup("as"))
	_ = s.v.BindEnv("account", "ROSCA_ACCOUNT")

	cmd.AddCommand(
		newCreateCmd(s),
		newJoinCmd(s),
		newActionCmd(s, "leave", "Leave a pending rosca", "left", RoscaClient.Leave),
		newActionCmd(s, "start", "Start a pending rosca", "started", RoscaClient.Start),
		newActionCmd(s, "contribute", "Pay this round's contribution", "contributed to", RoscaClient.Contribute),
		newActionCmd(s, "end", "End an active rosca past its final deadline", "ended", RoscaClient.ManuallyEnd),
		newActionCmd(s, "claim", "Reclaim a security deposit after completion", "claimed from", RoscaClient.ClaimDeposit),
		newDepositCmd(s),
		newShowCmd(s),
		newListCmd(s),
		newRoundsCmd(s),
		newEventsCmd(s),
		newArchivedCmd(s),
	)
	return cmd
}

// renderReceipt lists what a call did and, for JSON, emits the receipt itself.
func (s *session) renderReceipt(ctx context.Context, verb string, r *rosca.Receipt, asset rosca.Asset) error {
	if asset == 0 {
		asset = s.assetOf(ctx, r.RoscaID, r)
	}
	return s.out.Render(cli.WithData(cli.ReceiptView(s.out, verb, r, asset), r))
}

func newCreateCmd(s *session) *cobra.Command {
	var (
		name     string
		invited  []string
		minimum  uint32
		amount   uint64
		asset    string
		every    time.Duration
		startBy  string
		random   bool
		position int
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a rosca and invite members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			who, err := s.caller()
			if err != nil {
				return err
			}
			a, err := rosca.ParseAsset(asset)
			if err != nil {
				return err
			}
			deadline, err := parseMoment(startBy, s.now())
			if err != nil {
				return fmt.Errorf("--start-by: %w", err)
			}
			p := rosca.CreateParams{
				Name:            name,
				RandomOrder:     random,
				MinParticipants: minimum,
				Amount:          rosca.Balance(amount),
				Asset:           a,
				Frequency:       rosca.DurationMoment(every),
				StartBy:         deadline,
			}
			for _, acct := range invited {
				p.Invited = append(p.Invited, rosca.AccountID(acct))
			}
			if position >= 0 {
				pos := uint32(position)
				p.Position = &pos
			}

			r, err := s.client.Create(cmd.Context(), who, p)
			if err != nil {
				return err
			}
			return s.renderReceipt(cmd.Context(), "created", r, a)
		},
	}

	f := cmd.Flags()
	f.StringVar(&name, "name", "", "display name")
	f.StringSliceVarP(&invited, "invite", "i", nil, "invited account (repeatable)")
	f.Uint32Var(&minimum, "min", 2, "minimum participants needed to start")
	f.Uint64Var(&amount, "amount", 0, "contribution per round in the asset's smallest unit")
	f.StringVar(&asset, "asset", "usdt", "settlement asset (usdt, usdc)")
	f.DurationVar(&every, "every", 7*24*time.Hour, "round length")
	f.StringVar(&startBy, "start-by", "72h", "start deadline: RFC3339, unix milliseconds or a duration from now")
	f.BoolVar(&random, "random", false, "shuffle the claim order at start")
	f.IntVar(&position, "position", -1, "the creator's slot in the claim order")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newJoinCmd(s *session) *cobra.Command {
	var position int

	cmd := &cobra.Command{
		Use:   "join <id>",
		Short: "Accept an invitation to a pending rosca",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := rosca.ParseID(args[0])
			if err != nil {
				return err
			}
			who, err := s.caller()
			if err != nil {
				return err
			}
			var pos *uint32
			if position >= 0 {
				p := uint32(position)
				pos = &p
			}
			r, err := s.client.Join(cmd.Context(), id, who, pos)
			if err != nil {
				return err
			}
			return s.renderReceipt(cmd.Context(), "joined", r, 0)
		},
	}
	cmd.Flags().IntVar(&position, "position", -1, "slot in the claim order (default: the end)")
	return cmd
}

type actionFunc func(c RoscaClient, ctx context.Context, id rosca.ID, who rosca.AccountID) (*rosca.Receipt, error)

// newActionCmd builds the commands that take only a rosca id and a caller.
func newActionCmd(s *session, use, short, verb string, fn actionFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := rosca.ParseID(args[0])
			if err != nil {
				return err
			}
			who, err := s.caller()
			if err != nil {
				return err
			}
			r, err := fn(s.client, cmd.Context(), id, who)
			if err != nil {
				return err
			}
			return s.renderReceipt(cmd.Context(), verb, r, 0)
		},
	}
}

func newDepositCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "deposit <id> <amount>",
		Short: "Add to your security deposit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := rosca.ParseID(args[0])
			if err != nil {
				return err
			}
			amount, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("parse amount %q: %w", args[1], err)
			}
			who, err := s.caller()
			if err != nil {
				return err
			}
			r, err := s.client.AddDeposit(cmd.Context(), id, who, rosca.Balance(amount))
			if err != nil {
				return err
			}
			return s.renderReceipt(cmd.Context(), "deposited into", r, 0)
		},
	}
}

func newShowCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a rosca",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := rosca.ParseID(args[0])
			if err != nil {
				return err
			}
			st, err := s.client.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			// The summary may lag the state; show what we have.
			sum, _ := s.client.Summary(cmd.Context(), id)
			data := struct {
				State   *rosca.State        `json:"state"`
				Summary *projection.Summary `json:"summary,omitempty"`
			}{st, sum}
			return s.out.Render(cli.WithData(cli.StateView(s.out, st, sum, s.now()), data))
		},
	}
}

func newListCmd(s *session) *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List roscas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			states, err := s.client.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if states == nil {
				states = []*rosca.State{}
			}
			return s.out.Render(cli.WithData(cli.StatesTable(s.out, states, s.now()), states))
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "", `CEL filter, e.g. 'status == "active" && round > 1'`)
	return cmd
}

func newRoundsCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "rounds <id>",
		Short: "Show the round schedule and who has paid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := rosca.ParseID(args[0])
			if err != nil {
				return err
			}
			rounds, err := s.client.Rounds(cmd.Context(), id)
			if err != nil {
				return err
			}
			if rounds == nil {
				rounds = []projection.RoundRecord{}
			}
			asset := s.assetOf(cmd.Context(), id, nil)
			return s.out.Render(cli.WithData(cli.RoundsTable(s.out, rounds, asset), rounds))
		},
	}
}

func newEventsCmd(s *session) *cobra.Command {
	var after uint64

	cmd := &cobra.Command{
		Use:   "events <id>",
		Short: "Show the event log of a rosca",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := rosca.ParseID(args[0])
			if err != nil {
				return err
			}
			records, err := s.client.Events(cmd.Context(), id, after)
			if err != nil {
				return err
			}
			if records == nil {
				records = []projection.Record{}
			}
			asset := s.assetOf(cmd.Context(), id, nil)
			return s.out.Render(cli.WithData(cli.EventsTable(s.out, records, asset), records))
		},
	}
	cmd.Flags().Uint64Var(&after, "after", 0, "only events after this sequence number")
	return cmd
}

func newArchivedCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "archived <id>",
		Short: "Print the archived snapshot of a completed rosca",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := rosca.ParseID(args[0])
			if err != nil {
				return err
			}
			snap, err := s.client.Archived(cmd.Context(), id)
			if err != nil {
				return err
			}
			return s.out.RenderValue("archive", snap)
		},
	}
}
