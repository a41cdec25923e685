package main

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statCmd = &cobra.Command{
	Use:   "stat",
	Short: "Report node/property counts, file size and freshness for the repository",
	Args:  cobra.NoArgs,
	RunE:  runStat,
}

func init() {
	rootCmd.AddCommand(statCmd)
}

func runStat(cmd *cobra.Command, _ []string) error {
	eng, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer eng.Close()

	st, err := eng.store.Stat(context.Background())
	if err != nil {
		return err
	}

	fields := kv{
		{"nodes", humanize.Comma(st.Nodes)},
		{"properties", humanize.Comma(st.Properties)},
		{"size", humanize.Bytes(uint64(st.SizeBytes))},
	}
	lastUpdated := "never"
	if !st.LastUpdated.IsZero() {
		lastUpdated = humanize.Time(st.LastUpdated)
	}
	fields = append(fields, struct{ Key, Value string }{"last_updated", lastUpdated})
	return printResult(fields)
}
