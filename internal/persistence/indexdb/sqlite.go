package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	tlog "gridtraffic.ai/internal/persistence/log"
	"gridtraffic.ai/internal/persistence/snapshot"
	"gridtraffic.ai/internal/sim/world"
)

// SQLiteIndex is a queryable read model of the tick log. Writes are
// queued to a single writer goroutine and dropped when it falls behind.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropSnapshot atomic.Uint64
	dropAudit    atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqSnapshot
	reqAudit
)

type req struct {
	kind reqKind

	tick     world.TickLogEntry
	snapshot snapshotRow
	audit    tlog.ConfigAuditEntry
}

type snapshotRow struct {
	Tick        uint64
	Path        string
	Width       int
	Height      int
	Agents      int
	ActiveTasks int
}

// Stats reports queue pressure of the writer goroutine.
type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropTickTotal     uint64 `json:"drop_tick_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
	DropAuditTotal    uint64 `json:"drop_audit_total"`
}

// BlockerCount is how often an agent was ordered out of someone's way.
type BlockerCount struct {
	AgentID string `json:"agent_id"`
	Swaps   int    `json:"swaps"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			joins INTEGER NOT NULL,
			leaves INTEGER NOT NULL,
			removed INTEGER NOT NULL,
			actions INTEGER NOT NULL,
			swaps INTEGER NOT NULL,
			stalls INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS joins (
			tick INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			name TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			PRIMARY KEY (tick, agent_id)
		);`,
		`CREATE TABLE IF NOT EXISTS actions (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			act_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_actions_agent_tick ON actions(agent_id, tick);`,
		`CREATE TABLE IF NOT EXISTS swaps (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			blocker_id TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			dir TEXT NOT NULL,
			code TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_swaps_blocker_tick ON swaps(blocker_id, tick);`,
		`CREATE TABLE IF NOT EXISTS stalls (
			tick INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			PRIMARY KEY (tick, agent_id)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			agents INTEGER NOT NULL,
			active_tasks INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS config_audit (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			time TEXT NOT NULL,
			tick INTEGER NOT NULL,
			source TEXT NOT NULL,
			stuck_limit INTEGER NOT NULL,
			swap_delay INTEGER NOT NULL,
			accepted INTEGER NOT NULL,
			error TEXT
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.dropTick.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		DropAuditTotal:    s.dropAudit.Load(),
	}
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteAudit(entry tlog.ConfigAuditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqAudit, audit: entry}:
	default:
		s.dropAudit.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Tick:   snap.Header.Tick,
		Path:   path,
		Agents: len(snap.Agents),
	}
	if len(snap.Map.Rows) > 0 {
		r.Height = len(snap.Map.Rows)
		r.Width = len(snap.Map.Rows[0])
	}
	for _, a := range snap.Agents {
		if a.Task != nil {
			r.ActiveTasks++
		}
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// TopBlockers returns the agents most often swapped out of the way,
// highest count first.
func (s *SQLiteIndex) TopBlockers(ctx context.Context, limit int) ([]BlockerCount, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT blocker_id, COUNT(*) AS n FROM swaps GROUP BY blocker_id ORDER BY n DESC, blocker_id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BlockerCount
	for rows.Next() {
		var bc BlockerCount
		if err := rows.Scan(&bc.AgentID, &bc.Swaps); err != nil {
			return nil, err
		}
		out = append(out, bc)
	}
	return out, rows.Err()
}

// LatestSnapshot returns the path of the newest recorded snapshot.
func (s *SQLiteIndex) LatestSnapshot(ctx context.Context) (tick uint64, path string, err error) {
	var t int64
	err = s.db.QueryRowContext(ctx, `SELECT tick, path FROM snapshots ORDER BY tick DESC LIMIT 1`).Scan(&t, &path)
	if err != nil {
		return 0, "", err
	}
	return uint64(t), path, nil
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,joins,leaves,removed,actions,swaps,stalls,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertJoin, _ := s.db.Prepare(`INSERT OR REPLACE INTO joins(tick,agent_id,name,x,y) VALUES(?,?,?,?,?)`)
	insertAction, _ := s.db.Prepare(`INSERT OR REPLACE INTO actions(tick,seq,agent_id,act_json) VALUES(?,?,?,?)`)
	insertSwap, _ := s.db.Prepare(`INSERT OR REPLACE INTO swaps(tick,seq,agent_id,blocker_id,x,y,dir,code) VALUES(?,?,?,?,?,?,?,?)`)
	insertStall, _ := s.db.Prepare(`INSERT OR REPLACE INTO stalls(tick,agent_id) VALUES(?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,width,height,agents,active_tasks) VALUES(?,?,?,?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT INTO config_audit(time,tick,source,stuck_limit,swap_delay,accepted,error) VALUES(?,?,?,?,?,?,?)`)
	stmts := []*sql.Stmt{insertTick, insertJoin, insertAction, insertSwap, insertStall, insertSnapshot, insertAudit}
	defer func() {
		for _, st := range stmts {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			e := r.tick
			tick := int64(e.Tick)
			b, _ := json.Marshal(e)
			if !exec(insertTick, tick, e.Digest, len(e.Joins), len(e.Leaves), len(e.Removed), len(e.Actions), len(e.Swaps), len(e.Stalls), string(b)) {
				continue
			}
			for _, j := range e.Joins {
				if !exec(insertJoin, tick, j.AgentID, j.Name, j.Pos[0], j.Pos[1]) {
					break
				}
			}
			for i, a := range e.Actions {
				actJSON, _ := json.Marshal(a.Act)
				if !exec(insertAction, tick, i, a.AgentID, string(actJSON)) {
					break
				}
			}
			for i, sw := range e.Swaps {
				if !exec(insertSwap, tick, i, sw.AgentID, sw.BlockerID, sw.Cell[0], sw.Cell[1], sw.Dir, sw.Code) {
					break
				}
			}
			for _, id := range e.Stalls {
				if !exec(insertStall, tick, id) {
					break
				}
			}

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.Width, sn.Height, sn.Agents, sn.ActiveTasks)

		case reqAudit:
			a := r.audit
			accepted := 0
			if a.Accepted {
				accepted = 1
			}
			exec(insertAudit, a.Time, int64(a.Tick), a.Source, int64(a.StuckLimit), int64(a.SwapDelay), accepted, a.Error)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
