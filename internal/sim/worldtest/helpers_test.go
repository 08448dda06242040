package worldtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"gridtraffic.ai/internal/protocol"
	"gridtraffic.ai/internal/sim/gridmap"
	world "gridtraffic.ai/internal/sim/world"
)

// corridorRows is a one-cell-wide east-west corridor from (1,1) to (5,1).
var corridorRows = []string{
	"#######",
	"#.....#",
	"#######",
}

func mustMap(t *testing.T, rows ...string) gridmap.Map {
	t.Helper()
	m, err := gridmap.FromRows("test", rows)
	require.NoError(t, err)
	return m
}

func testConfig(t *testing.T, rows ...string) world.WorldConfig {
	t.Helper()
	return world.WorldConfig{
		ID:         "test",
		TickRateHz: 5,
		Map:        mustMap(t, rows...),
	}
}

func v(x, y int) world.Vec2i { return world.Vec2i{X: x, Y: y} }

func findEvent(events []protocol.Event, typ string) (protocol.Event, bool) {
	for _, e := range events {
		if e["type"] == typ {
			return e, true
		}
	}
	return nil, false
}

func countEvents(events []protocol.Event, typ string) int {
	n := 0
	for _, e := range events {
		if e["type"] == typ {
			n++
		}
	}
	return n
}

func actionResultCode(events []protocol.Event, ref string) string {
	for _, e := range events {
		if typ, _ := e["type"].(string); typ != "ACTION_RESULT" {
			continue
		}
		if got, _ := e["ref"].(string); got != ref {
			continue
		}
		if ok, _ := e["ok"].(bool); ok {
			return ""
		}
		if code, _ := e["code"].(string); code != "" {
			return code
		}
		return "E_INTERNAL"
	}
	return "E_INTERNAL"
}
