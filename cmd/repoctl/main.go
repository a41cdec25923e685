// Command repoctl drives the content-repository engine end to end: add,
// copy, move and remove nodes, and print repository stats, against a sqlite-backed
// repository file. It exists to exercise the engine's batched operations
// (spec.md §4.6) the way cmd/bd exercises the teacher's issue store, not as
// a production administration tool.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var jsonOutput bool

// cmdOut is where commands write their human/JSON results; a var so tests
// can redirect it.
var cmdOut io.Writer = os.Stdout

var rootCmd = &cobra.Command{
	Use:   "repoctl",
	Short: "Exercise the content-repository item-state engine",
	Long: `repoctl drives the item-state engine's batched operations against a
sqlite-backed repository: add nodes, copy/move/remove subtrees, and report
node and property counts for the repository.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("db", "repo.db", "path to the sqlite repository file")
	rootCmd.PersistentFlags().String("types", "", "path to a TOML node-type seed file (defaults to a minimal built-in registry)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "repoctl: %v\n", err)
		os.Exit(1)
	}
}
