package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Overridden at link time with -X main.version=... and friends.
var (
	version   = "dev"
	commit    = ""
	buildDate = ""
)

type buildInfo struct {
	Version, Commit, Date, Go string
	Modified                  bool
}

// readBuildInfo fills commit and date from the embedded VCS stamp when the
// linker flags left them empty.
func readBuildInfo() buildInfo {
	bi := buildInfo{Version: version, Commit: commit, Date: buildDate, Go: runtime.Version()}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return bi
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if bi.Commit == "" {
				bi.Commit = s.Value
			}
		case "vcs.time":
			if bi.Date == "" {
				bi.Date = s.Value
			}
		case "vcs.modified":
			bi.Modified = s.Value == "true"
		}
	}
	return bi
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			bi := readBuildInfo()
			if len(bi.Commit) > 12 {
				bi.Commit = bi.Commit[:12]
			}
			if bi.Modified {
				bi.Commit += "-dirty"
			}
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "rosca %s\n", bi.Version)
			for _, row := range [][2]string{{"commit", bi.Commit}, {"built", bi.Date}, {"go", bi.Go}} {
				if row[1] == "" {
					row[1] = "unknown"
				}
				_, _ = fmt.Fprintf(w, "  %-8s %s\n", row[0]+":", row[1])
			}
		},
	}
}
