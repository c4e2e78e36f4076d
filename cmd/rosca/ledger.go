package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gezibash/arc-rosca/internal/cli"
	"github.com/gezibash/arc-rosca/pkg/rosca"
)

func newLedgerCmd(s *session) *cobra.Command {
	cmd := s.hooks(&cobra.Command{
		Use:   "ledger",
		Short: "Fund accounts and read balances",
	})
	cmd.AddCommand(newMintCmd(s), newBalanceCmd(s))
	return cmd
}

func newMintCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "mint <asset> <account> <amount>",
		Short: "Credit an account out of thin air",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			asset, err := rosca.ParseAsset(args[0])
			if err != nil {
				return err
			}
			amount, err := strconv.ParseUint(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("parse amount %q: %w", args[2], err)
			}
			account := rosca.AccountID(args[1])
			balance, err := s.client.Mint(cmd.Context(), asset, account, rosca.Balance(amount))
			if err != nil {
				return err
			}
			return cli.BalanceView(s.out, asset, account, balance).Render()
		},
	}
}

func newBalanceCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <asset> <account>",
		Short: "Show the balance of an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			asset, err := rosca.ParseAsset(args[0])
			if err != nil {
				return err
			}
			account := rosca.AccountID(args[1])
			balance, err := s.client.Balance(cmd.Context(), asset, account)
			if err != nil {
				return err
			}
			return cli.BalanceView(s.out, asset, account, balance).Render()
		},
	}
}
