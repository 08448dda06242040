package worldtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridtraffic.ai/internal/protocol"
	"gridtraffic.ai/internal/sim/world/feature/traffic"
)

func TestSwap_IdleBlockerInCorridor(t *testing.T) {
	h := NewHarness(t, testConfig(t, corridorRows...))
	a := h.JoinAt("mover", v(1, 1))
	b := h.JoinAt("blocker", v(2, 1))
	t0 := h.W.CurrentTick()

	h.StepMulti(h.MoveTo(a, "K1", v(5, 1), true))
	require.Equal(t, "", actionResultCode(h.Events(a), "K1"))
	rec, ok := h.W.DebugTrackerRecord(a)
	require.True(t, ok)
	assert.Equal(t, traffic.Record{Tick: t0, X: 1, Y: 1}, rec)

	// Within the stuck limit the mover waits in place.
	h.StepN(2)
	assert.Equal(t, v(1, 1), h.Pos(a))
	assert.Equal(t, v(2, 1), h.Pos(b))
	_, swapped := findEvent(h.Events(b), "SWAPPED")
	assert.False(t, swapped)

	// One tick past the limit the blocker is ordered back and both cells exchange.
	h.StepNoop()
	assert.Equal(t, v(2, 1), h.Pos(a))
	assert.Equal(t, v(1, 1), h.Pos(b))

	ev, ok := findEvent(h.Events(b), "SWAPPED")
	require.True(t, ok)
	assert.Equal(t, a, ev["by"])
	assert.Equal(t, "LEFT", ev["dir"])
	assert.Equal(t, protocol.MoveOK, ev["code"])

	brec, ok := h.W.DebugTrackerRecord(b)
	require.True(t, ok)
	assert.Equal(t, traffic.Record{Tick: t0 + 3, X: 2, Y: 1, SwapPending: true}, brec)

	// The mover walks the rest of the corridor.
	h.StepN(3)
	assert.Equal(t, v(5, 1), h.Pos(a))
	_, done := findEvent(h.Events(a), "TASK_DONE")
	assert.True(t, done)
	_, tracked := h.W.DebugTrackerRecord(a)
	assert.False(t, tracked, "finished task purges the record")

	m := h.W.Metrics()
	assert.Equal(t, uint64(1), m.Traffic.Swaps)
	assert.Equal(t, uint64(1), m.Traffic.Stalls)
}

func TestSwap_BlockerLaterInOrderLosesItsTurn(t *testing.T) {
	h := NewHarness(t, testConfig(t, corridorRows...))
	a := h.JoinAt("mover", v(1, 1))
	b := h.JoinAt("blocker", v(2, 1))
	require.Less(t, a, b)

	h.StepMulti(h.MoveTo(a, "K1", v(5, 1), true))
	h.StepN(2)

	// The blocker starts its own task on the tick the mover stalls.
	h.StepMulti(h.MoveTo(b, "K2", v(4, 1), true))
	assert.Equal(t, v(2, 1), h.Pos(a))
	assert.Equal(t, v(1, 1), h.Pos(b))

	obs := h.LastObsFor(b)
	assert.Equal(t, protocol.ErrNoPath, obs.Self.LastMove)
	require.NotNil(t, obs.Task, "a forfeited turn keeps the task")
	assert.Zero(t, obs.Task.PathLeft, "the blocker never planned its own move")

	rec, ok := h.W.DebugTrackerRecord(b)
	require.True(t, ok)
	assert.False(t, rec.SwapPending)

	// Next tick both agents head east in a chain.
	h.StepNoop()
	assert.Equal(t, v(3, 1), h.Pos(a))
	assert.Equal(t, v(2, 1), h.Pos(b))
	assert.Equal(t, protocol.MoveOK, h.LastObsFor(b).Self.LastMove)
	assert.Equal(t, uint64(1), h.W.Metrics().Traffic.SwapsConsumed)
}

func TestSwap_BlockerEarlierInOrderForfeitsNextTurn(t *testing.T) {
	h := NewHarness(t, testConfig(t, corridorRows...))
	b := h.JoinAt("blocker", v(2, 1))
	a := h.JoinAt("mover", v(1, 1))
	require.Less(t, b, a)

	h.StepMulti(h.MoveTo(a, "K1", v(5, 1), true))
	h.StepN(2)

	// The blocker moves first this tick; the mover's swap replaces its intent.
	h.StepMulti(h.MoveTo(b, "K2", v(4, 1), true))
	assert.Equal(t, v(2, 1), h.Pos(a))
	assert.Equal(t, v(1, 1), h.Pos(b))
	assert.Equal(t, protocol.MoveOK, h.LastObsFor(b).Self.LastMove)

	rec, ok := h.W.DebugTrackerRecord(b)
	require.True(t, ok)
	assert.True(t, rec.SwapPending)

	// The pending swap is consumed on the blocker's next invocation.
	h.StepNoop()
	assert.Equal(t, v(1, 1), h.Pos(b))
	assert.Equal(t, v(3, 1), h.Pos(a))
	assert.Equal(t, protocol.ErrNoPath, h.LastObsFor(b).Self.LastMove)
	rec, _ = h.W.DebugTrackerRecord(b)
	assert.False(t, rec.SwapPending)

	// Then it resumes normally.
	h.StepNoop()
	assert.Equal(t, v(2, 1), h.Pos(b))
	assert.Equal(t, protocol.MoveOK, h.LastObsFor(b).Self.LastMove)
}

func TestSwap_CommandedMoveWinsContestedCell(t *testing.T) {
	// Three agents in the corridor: the lead one is idle and the middle one
	// stalls against it. On the swap tick the rear agent also wants the
	// middle cell; the commanded move into it takes precedence.
	h := NewHarness(t, testConfig(t, corridorRows...))
	rear := h.JoinAt("rear", v(1, 1))
	mid := h.JoinAt("mid", v(2, 1))
	lead := h.JoinAt("lead", v(3, 1))

	// Mid starts first so its stall clock runs ahead of rear's.
	h.StepMulti(h.MoveTo(mid, "K2", v(5, 1), true))
	h.StepMulti(h.MoveTo(rear, "K1", v(5, 1), true))
	h.StepN(2)

	// Mid stalls (age 3) and swaps with the idle lead; rear is not stalled
	// yet and stays put.
	assert.Equal(t, v(3, 1), h.Pos(mid))
	assert.Equal(t, v(2, 1), h.Pos(lead))
	assert.Equal(t, v(1, 1), h.Pos(rear))

	_, rearSwapped := findEvent(h.Events(rear), "SWAPPED")
	assert.False(t, rearSwapped)
}

func TestSwap_RemovingAgentPurgesTracker(t *testing.T) {
	h := NewHarness(t, testConfig(t, corridorRows...))
	a := h.JoinAt("mover", v(1, 1))
	h.JoinAt("blocker", v(2, 1))

	h.StepMulti(h.MoveTo(a, "K1", v(5, 1), true))
	_, ok := h.W.DebugTrackerRecord(a)
	require.True(t, ok)

	h.Remove(a)
	_, ok = h.W.DebugTrackerRecord(a)
	assert.False(t, ok)
	assert.Zero(t, h.W.Metrics().TrackedAgents)
}

func TestMove_AvoidsAgentsWhenNotIgnoring(t *testing.T) {
	h := NewHarness(t, testConfig(t,
		".....",
		".....",
		".....",
	))
	a := h.JoinAt("mover", v(0, 1))
	b := h.JoinAt("blocker", v(1, 1))

	h.StepMulti(h.MoveTo(a, "K1", v(3, 1), false))
	h.StepN(3)
	assert.Equal(t, v(3, 1), h.Pos(a))
	assert.Equal(t, v(1, 1), h.Pos(b))
	assert.Zero(t, countEvents(h.Events(b), "SWAPPED"))
}
