package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	agentID := fs.String("agent", "", "agent_id filter (swaps, stalls)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := queryDB(os.Stdout, db, q, *limit, *agentID); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// indexQueries maps a query name to SQL. ?1 is the agent filter (empty
// matches everything, unused by some queries) and ?2 the row limit.
var indexQueries = map[string]string{
	"snapshots": `SELECT tick,path,width,height,agents,active_tasks FROM snapshots ORDER BY tick DESC LIMIT ?2`,
	"ticks":     `SELECT tick,digest,joins,leaves,removed,actions,swaps,stalls FROM ticks ORDER BY tick DESC LIMIT ?2`,
	"swaps": `SELECT tick,agent_id,blocker_id,x,y,dir,code FROM swaps
		WHERE ?1 = '' OR agent_id = ?1 OR blocker_id = ?1 ORDER BY tick DESC, seq DESC LIMIT ?2`,
	"stalls": `SELECT agent_id, COUNT(*) AS stalls, MAX(tick) AS last_tick FROM stalls
		WHERE ?1 = '' OR agent_id = ?1 GROUP BY agent_id ORDER BY stalls DESC, agent_id LIMIT ?2`,
	"blockers": `SELECT blocker_id, COUNT(*) AS swaps FROM swaps
		WHERE ?1 = '' OR blocker_id = ?1 GROUP BY blocker_id ORDER BY swaps DESC, blocker_id LIMIT ?2`,
	"audit": `SELECT seq,time,tick,source,stuck_limit,swap_delay,accepted,COALESCE(error,'') AS error FROM config_audit ORDER BY seq DESC LIMIT ?2`,
}

// queryDB runs a named query and prints one JSON object per row.
func queryDB(out io.Writer, db *sql.DB, q string, limit int, agentID string) error {
	stmt, ok := indexQueries[q]
	if !ok {
		return fmt.Errorf("unknown query %q (snapshots, ticks, swaps, stalls, blockers, audit)", q)
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(stmt, strings.TrimSpace(agentID), limit)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	return rows.Err()
}
