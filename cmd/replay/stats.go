package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	persistlog "gridtraffic.ai/internal/persistence/log"
	"gridtraffic.ai/internal/sim/world"
)

var (
	statsTop  int
	statsJSON bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize stalls and swaps per agent",
	RunE: func(cmd *cobra.Command, _ []string) error {
		files, err := persistlog.TickFiles(worldDir)
		if err != nil {
			return err
		}
		s, err := collectStats(files, fromTick, toTick)
		if err != nil {
			return err
		}
		if statsJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(s.report(statsTop))
		}
		return s.writeTable(cmd.OutOrStdout(), statsTop)
	},
}

func init() {
	statsCmd.Flags().IntVar(&statsTop, "top", 20, "number of agents to list (0 = all)")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print JSON instead of a table")
	rootCmd.AddCommand(statsCmd)
}

type agentStats struct {
	AgentID string `json:"agent_id"`
	Stalls  int    `json:"stalls"`
	// Swaps counts commanded moves this agent made to let someone pass.
	Swaps int `json:"swaps"`
	// Unblocked counts swaps performed on this agent's behalf.
	Unblocked int `json:"unblocked"`
}

type summary struct {
	FirstTick     uint64
	LastTick      uint64
	Ticks         int
	Joins         int
	Leaves        int
	Removed       int
	ConfigChanges int
	Stalls        int
	Swaps         int

	agents map[string]*agentStats
}

type statsReport struct {
	FirstTick     uint64       `json:"first_tick"`
	LastTick      uint64       `json:"last_tick"`
	Ticks         int          `json:"ticks"`
	Joins         int          `json:"joins"`
	Leaves        int          `json:"leaves"`
	Removed       int          `json:"removed"`
	ConfigChanges int          `json:"config_changes"`
	Stalls        int          `json:"stalls"`
	Swaps         int          `json:"swaps"`
	Agents        []agentStats `json:"agents"`
}

func collectStats(files []string, from, to uint64) (*summary, error) {
	s := &summary{agents: make(map[string]*agentStats)}
	for _, path := range files {
		err := persistlog.ReadTicks(path, func(e world.TickLogEntry) error {
			if e.Tick < from {
				return nil
			}
			if to != 0 && e.Tick > to {
				return errStop
			}
			s.add(e)
			return nil
		})
		if errors.Is(err, errStop) {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *summary) agent(id string) *agentStats {
	a := s.agents[id]
	if a == nil {
		a = &agentStats{AgentID: id}
		s.agents[id] = a
	}
	return a
}

func (s *summary) add(e world.TickLogEntry) {
	if s.Ticks == 0 {
		s.FirstTick = e.Tick
	}
	s.LastTick = e.Tick
	s.Ticks++
	s.Joins += len(e.Joins)
	s.Leaves += len(e.Leaves)
	s.Removed += len(e.Removed)
	s.ConfigChanges += len(e.Config)
	s.Stalls += len(e.Stalls)
	s.Swaps += len(e.Swaps)
	for _, id := range e.Stalls {
		s.agent(id).Stalls++
	}
	for _, sw := range e.Swaps {
		s.agent(sw.BlockerID).Swaps++
		s.agent(sw.AgentID).Unblocked++
	}
}

// ranked orders agents by stalls, then swaps, then id.
func (s *summary) ranked(top int) []agentStats {
	out := make([]agentStats, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stalls != out[j].Stalls {
			return out[i].Stalls > out[j].Stalls
		}
		if out[i].Swaps != out[j].Swaps {
			return out[i].Swaps > out[j].Swaps
		}
		return out[i].AgentID < out[j].AgentID
	})
	if top > 0 && len(out) > top {
		out = out[:top]
	}
	return out
}

func (s *summary) report(top int) statsReport {
	return statsReport{
		FirstTick:     s.FirstTick,
		LastTick:      s.LastTick,
		Ticks:         s.Ticks,
		Joins:         s.Joins,
		Leaves:        s.Leaves,
		Removed:       s.Removed,
		ConfigChanges: s.ConfigChanges,
		Stalls:        s.Stalls,
		Swaps:         s.Swaps,
		Agents:        s.ranked(top),
	}
}

func (s *summary) writeTable(out io.Writer, top int) error {
	fmt.Fprintf(out, "ticks %d..%d (%d)  joins=%d leaves=%d removed=%d config_changes=%d stalls=%d swaps=%d\n\n",
		s.FirstTick, s.LastTick, s.Ticks, s.Joins, s.Leaves, s.Removed, s.ConfigChanges, s.Stalls, s.Swaps)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AGENT\tSTALLS\tSWAPPED\tUNBLOCKED")
	for _, a := range s.ranked(top) {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", a.AgentID, a.Stalls, a.Swaps, a.Unblocked)
	}
	return tw.Flush()
}
