package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gezibash/arc-rosca/internal/cli"
	"github.com/gezibash/arc-rosca/internal/config"
	"github.com/gezibash/arc-rosca/internal/node"
	"github.com/gezibash/arc-rosca/internal/observability"
	"github.com/gezibash/arc-rosca/pkg/client"
	"github.com/gezibash/arc-rosca/pkg/rosca"
)

// session carries what every client command shares: the client, the output
// and the clock.
type session struct {
	v      *viper.Viper
	client RoscaClient
	out    *cli.Output
	clock  rosca.Clock
}

// open prepares the session for cmd. A client set beforehand is kept.
func (s *session) open(cmd *cobra.Command) error {
	name, _ := cmd.Flags().GetString("output")
	format, err := cli.ParseFormat(name)
	if err != nil {
		return err
	}
	s.out = cli.NewOutput(format, cmd.OutOrStdout())

	at, _ := cmd.Flags().GetString("at")
	if at != "" {
		m, err := parseMoment(at, rosca.SystemClock.Now())
		if err != nil {
			return fmt.Errorf("--at: %w", err)
		}
		s.clock = rosca.FixedClock(m)
	}

	if s.client != nil {
		return nil
	}

	nodeFlag, _ := cmd.Flags().GetString("node")
	if addr := config.NodeAddr(nodeFlag); addr != "" {
		if at != "" {
			return errors.New("--at only applies to an in-process node")
		}
		var opts []client.Option
		healthFlag, _ := cmd.Flags().GetString("node-health")
		if h := config.NodeHealthAddr(healthFlag); h != "" {
			opts = append(opts, client.WithHealthAddr(h))
		}
		c, err := client.Dial(addr, opts...)
		if err != nil {
			return fmt.Errorf("dial node: %w", err)
		}
		s.client = c
		s.out.WithNode(c.Addr())
		return nil
	}

	c, err := s.openLocal(cmd)
	if err != nil {
		return err
	}
	s.client = c
	return nil
}

func (s *session) openLocal(cmd *cobra.Command) (*localClient, error) {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(s.v, configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// In-process commands keep stderr quiet unless something goes wrong.
	logger := observability.SetupLogger("warn", cfg.Observability.LogFormat, cmd.ErrOrStderr())
	n, err := node.Open(cmd.Context(), &cfg, node.Options{
		Clock:   s.clock,
		Metrics: observability.NewMetrics(),
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open node: %w", err)
	}
	return &localClient{Service: n.Service, node: n}, nil
}

func (s *session) close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

func (s *session) now() rosca.Moment {
	if s.clock != nil {
		return s.clock.Now()
	}
	return rosca.SystemClock.Now()
}

// caller returns the account acting in circle commands.
func (s *session) caller() (rosca.AccountID, error) {
	who := strings.TrimSpace(s.v.GetString("account"))
	if who == "" {
		return "", errors.New("no account: pass --as or set ROSCA_ACCOUNT")
	}
	return rosca.AccountID(who), nil
}

// assetOf returns the settlement asset of a Rosca, preferring the transfers
// of a receipt over a lookup.
func (s *session) assetOf(ctx context.Context, id rosca.ID, r *rosca.Receipt) rosca.Asset {
	if r != nil && len(r.Transfers) > 0 {
		return r.Transfers[0].Asset
	}
	st, err := s.client.Get(ctx, id)
	if err != nil {
		return 0
	}
	return st.Config.Asset
}

// hooks opens the session before any command of a group runs. run closes
// it, whether or not the command failed.
func (s *session) hooks(cmd *cobra.Command) *cobra.Command {
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return s.open(cmd)
	}
	return cmd
}

// parseMoment accepts unix milliseconds, an RFC3339 time or a Go duration
// counted from now.
func parseMoment(v string, now rosca.Moment) (rosca.Moment, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, errors.New("empty time")
	}
	if ms, err := strconv.ParseUint(v, 10, 64); err == nil {
		return rosca.Moment(ms), nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return rosca.MomentOf(t), nil
	}
	if d, err := time.ParseDuration(strings.TrimPrefix(v, "+")); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("%q is in the past", v)
		}
		return now + rosca.DurationMoment(d), nil
	}
	return 0, fmt.Errorf("%q is not unix milliseconds, RFC3339 or a duration", v)
}
