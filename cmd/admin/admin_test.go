package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridtraffic.ai/internal/persistence/indexdb"
	tlog "gridtraffic.ai/internal/persistence/log"
	"gridtraffic.ai/internal/sim/world"
)

func TestAdminRequest_Routes(t *testing.T) {
	m, p, body, err := adminRequest("traffic", "", 3, 6, 0)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, m)
	assert.Equal(t, "/admin/v1/traffic", p)
	assert.Equal(t, map[string]uint64{"stuck_limit": 3, "swap_delay": 6}, body)

	m, p, _, err = adminRequest("remove", "A7", 0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, m)
	assert.Equal(t, "/admin/v1/agents/A7", p)

	_, p, _, err = adminRequest("blockers", "", 0, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, "/admin/v1/blockers?limit=5", p)

	_, _, _, err = adminRequest("traffic", "", 3, 0, 0)
	assert.Error(t, err)
	_, _, _, err = adminRequest("agent", " ", 0, 0, 0)
	assert.Error(t, err)
}

func TestCall_SendsJSONBody(t *testing.T) {
	var gotMethod, gotPath, gotType string
	var gotBody map[string]uint64
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath, gotType = r.Method, r.URL.Path, r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		rw.WriteHeader(http.StatusBadRequest)
		_, _ = rw.Write([]byte(`{"err":"bad"}`))
	}))
	defer srv.Close()

	status, out, err := call(srv.Client(), srv.URL+"/", http.MethodPut, "/admin/v1/traffic", map[string]uint64{"stuck_limit": 4, "swap_delay": 3})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.JSONEq(t, `{"err":"bad"}`, string(out))
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/admin/v1/traffic", gotPath)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, uint64(4), gotBody["stuck_limit"])
}

func TestQueryDB_ReadsIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.sqlite")
	idx, err := indexdb.OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, idx.WriteTick(world.TickLogEntry{
		Tick:   3,
		Swaps:  []world.RecordedSwap{{AgentID: "A1", BlockerID: "A2", Dir: "LEFT", Code: "OK"}},
		Stalls: []string{"A1"},
		Digest: "d3",
	}))
	require.NoError(t, idx.WriteTick(world.TickLogEntry{
		Tick:   4,
		Swaps:  []world.RecordedSwap{{AgentID: "A3", BlockerID: "A4", Dir: "UP", Code: "OK"}},
		Stalls: []string{"A1", "A3"},
		Digest: "d4",
	}))
	require.NoError(t, idx.WriteAudit(tlog.ConfigAuditEntry{Tick: 4, Source: "admin", StuckLimit: 5, SwapDelay: 3, Error: "invalid"}))
	require.NoError(t, idx.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var buf bytes.Buffer
	require.NoError(t, queryDB(&buf, db, "stalls", 10, ""))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "A1", first["agent_id"])
	assert.Equal(t, 2.0, first["stalls"])

	buf.Reset()
	require.NoError(t, queryDB(&buf, db, "swaps", 10, "A4"))
	lines = strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"blocker_id":"A4"`)

	buf.Reset()
	require.NoError(t, queryDB(&buf, db, "audit", 10, ""))
	assert.Contains(t, buf.String(), `"error":"invalid"`)
	assert.Contains(t, buf.String(), `"source":"admin"`)

	assert.Error(t, queryDB(&buf, db, "chunks", 10, ""))
}
