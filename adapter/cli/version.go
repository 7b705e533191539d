package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Build metadata, overridden with -ldflags "-X" at release time.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
}

// Build returns the build metadata linked into the binary.
func Build() BuildInfo {
	return BuildInfo{Version: Version, Commit: Commit, BuildDate: BuildDate}
}

func (b BuildInfo) String() string {
	return fmt.Sprintf("fundsaga %s (commit %s, built %s)", b.Version, b.Commit, b.BuildDate)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show build version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if outputJSON {
			return printJSON(cmd.OutOrStdout(), Build())
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), Build())
		return err
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
