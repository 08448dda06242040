package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "replay",
	Short: "Inspect and verify recorded grid worlds",
	Long: `replay reads the tick logs a server writes under data/worlds/<id>/events.
"verify" re-simulates them from a snapshot and checks every state digest;
"stats" summarizes stalls and swaps per agent.`,
	SilenceUsage: true,
}

var (
	worldDir string
	fromTick uint64
	toTick   uint64
)

func init() {
	rootCmd.PersistentFlags().StringVar(&worldDir, "world-dir", "./data/worlds/GRID", "world data directory")
	rootCmd.PersistentFlags().Uint64Var(&fromTick, "from-tick", 0, "first tick to consider (inclusive)")
	rootCmd.PersistentFlags().Uint64Var(&toTick, "to-tick", 0, "last tick to consider (inclusive, 0 = end of log)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
