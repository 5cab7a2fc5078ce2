package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hb-chen/skillgate/internal/skill/direct"
)

// limitedCmd is started by the executor, never by users. It applies resource
// limits to itself and then execs the skill binary in place.
var limitedCmd = &cobra.Command{
	Use:                direct.LimitedExecCommand + " <cpu-seconds> <memory-bytes> <path> [args...]",
	Hidden:             true,
	DisableFlagParsing: true,
	PersistentPreRunE:  func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		if err := direct.ExecLimited(args); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(127)
		}
	},
}

func init() {
	rootCmd.AddCommand(limitedCmd)
}
