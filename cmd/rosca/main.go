package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gezibash/arc-rosca/internal/cli"
)

func main() {
	os.Exit(run(&session{v: viper.New()}, os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command tree and reports a failure in the selected
// output format. It returns the process exit code.
func run(s *session, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(s)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.Execute()
	if cerr := s.close(); err == nil {
		err = cerr
	}
	if err == nil {
		return 0
	}
	out := s.out
	if out == nil || out.Format() == cli.FormatText {
		out = cli.NewOutput(cli.FormatText, stderr)
	}
	_ = out.Error("command", err).Render()
	return 1
}

func newRootCmd(s *session) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "rosca",
		Short:         "Rotating savings and credit circles",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default ./rosca.yaml or ~/.rosca/rosca.yaml)")
	pf.String("data-dir", "", "data directory (default ~/.rosca)")
	pf.String("node", "", "remote node address; empty runs the service in-process (env ROSCA_NODE)")
	pf.String("node-health", "", "gRPC health address of the remote node, used by watch to ping it (env ROSCA_NODE_HEALTH)")
	pf.StringP("output", "o", "text", "output format: text, json or markdown")
	pf.String("at", "", "pin the clock to an RFC3339 time or unix milliseconds (in-process only)")
	_ = s.v.BindPFlag("data_dir", pf.Lookup("data-dir"))

	rootCmd.AddCommand(
		newCircleCmd(s),
		newLedgerCmd(s),
		newWatchCmd(s),
		newNodeCmd(s.v),
		newVersionCmd(),
	)
	return rootCmd
}
