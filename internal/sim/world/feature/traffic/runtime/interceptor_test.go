package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridtraffic.ai/internal/protocol"
	"gridtraffic.ai/internal/sim/tasks"
	"gridtraffic.ai/internal/sim/world/feature/traffic"
	"gridtraffic.ai/internal/sim/world/logic/pathfind"
)

type commandedMove struct {
	AgentID string
	Dir     pathfind.Direction
}

// stubEnv is a frozen world: the primitive never changes positions, which
// models an agent whose step was accepted but blocked.
type stubEnv struct {
	pos      map[string]Pos
	dest     map[string]Pos
	next     map[string]Pos
	stepCode string
	moveCode string

	steps    []string
	commands []commandedMove
}

func newStubEnv() *stubEnv {
	return &stubEnv{
		pos:      map[string]Pos{},
		dest:     map[string]Pos{},
		next:     map[string]Pos{},
		stepCode: protocol.MoveOK,
		moveCode: protocol.MoveOK,
	}
}

func (s *stubEnv) StepToward(agentID string, _ Pos, _ tasks.MoveOptions) string {
	s.steps = append(s.steps, agentID)
	return s.stepCode
}

func (s *stubEnv) AgentPos(agentID string) (Pos, bool) {
	p, ok := s.pos[agentID]
	return p, ok
}

func (s *stubEnv) Destination(agentID string) (Pos, bool) {
	p, ok := s.dest[agentID]
	return p, ok
}

func (s *stubEnv) NextStep(agentID string) (Pos, bool) {
	p, ok := s.next[agentID]
	return p, ok
}

func (s *stubEnv) OccupantAt(p Pos) (string, bool) {
	for id, ap := range s.pos {
		if ap == p {
			return id, true
		}
	}
	return "", false
}

func (s *stubEnv) MoveInDirection(agentID string, dir pathfind.Direction) string {
	s.commands = append(s.commands, commandedMove{AgentID: agentID, Dir: dir})
	return s.moveCode
}

type recordingObserver struct {
	verdicts    []Verdict
	resolutions []Resolution
	consumed    []string
}

func (o *recordingObserver) OnVerdict(_ string, v Verdict, _ uint64) {
	o.verdicts = append(o.verdicts, v)
}
func (o *recordingObserver) OnResolution(_ string, r Resolution, _ uint64) {
	o.resolutions = append(o.resolutions, r)
}
func (o *recordingObserver) OnSwapConsumed(agentID string, _ uint64) {
	o.consumed = append(o.consumed, agentID)
}

func blockedScenario() (*stubEnv, *Interceptor, *recordingObserver) {
	env := newStubEnv()
	env.pos["A"] = Pos{X: 5, Y: 5}
	env.dest["A"] = Pos{X: 5, Y: 8}
	env.next["A"] = Pos{X: 5, Y: 6}
	env.pos["B"] = Pos{X: 5, Y: 6}
	obs := &recordingObserver{}
	return env, NewInterceptor(env, traffic.NewTracker(), traffic.DefaultConfig(), obs), obs
}

func TestInterceptor_BlockedAgentSwapsAfterStuckLimit(t *testing.T) {
	env, ic, obs := blockedScenario()
	target := env.dest["A"]

	require.Equal(t, protocol.MoveOK, ic.Move("A", target, tasks.MoveOptions{}, 10))
	rec, ok := ic.Tracker().Get("A")
	require.True(t, ok)
	assert.Equal(t, traffic.Record{Tick: 10, X: 5, Y: 5}, rec)

	for tick := uint64(11); tick <= 12; tick++ {
		require.Equal(t, protocol.MoveOK, ic.Move("A", target, tasks.MoveOptions{}, tick))
		assert.Empty(t, env.commands, "tick %d must not swap", tick)
	}

	require.Equal(t, protocol.MoveOK, ic.Move("A", target, tasks.MoveOptions{}, 13))
	require.Len(t, env.commands, 1)
	assert.Equal(t, commandedMove{AgentID: "B", Dir: pathfind.DirTop}, env.commands[0])

	brec, ok := ic.Tracker().Get("B")
	require.True(t, ok)
	assert.Equal(t, traffic.Record{Tick: 13, X: 5, Y: 6, SwapPending: true}, brec)

	assert.Equal(t, []Verdict{VerdictProgressing, VerdictWaiting, VerdictWaiting, VerdictStalled}, obs.verdicts)
	require.Len(t, obs.resolutions, 1)
	assert.Equal(t, OutcomeSwapped, obs.resolutions[0].Outcome)
	assert.Equal(t, "B", obs.resolutions[0].BlockerID)
}

func TestInterceptor_SwapTargetLaterInTickShortCircuits(t *testing.T) {
	env, ic, obs := blockedScenario()
	env.dest["B"] = Pos{X: 9, Y: 9}
	ic.Tracker().Set("A", traffic.Record{Tick: 10, X: 5, Y: 5})

	ic.Move("A", env.dest["A"], tasks.MoveOptions{}, 13)
	stepsBefore := len(env.steps)

	// B runs after A in the same tick.
	assert.Equal(t, protocol.ErrNoPath, ic.Move("B", env.dest["B"], tasks.MoveOptions{}, 13))
	assert.Len(t, env.steps, stepsBefore, "B must not attempt its planned move")
	rec, _ := ic.Tracker().Get("B")
	assert.False(t, rec.SwapPending)
	assert.Equal(t, []string{"B"}, obs.consumed)
}

func TestInterceptor_SwapConsumptionIsOneShot(t *testing.T) {
	env := newStubEnv()
	env.pos["B"] = Pos{X: 1, Y: 1}
	env.dest["B"] = Pos{X: 4, Y: 1}
	ic := NewInterceptor(env, traffic.NewTracker(), traffic.DefaultConfig(), nil)
	ic.Tracker().Set("B", traffic.Record{Tick: 7, X: 1, Y: 1, SwapPending: true})

	assert.Equal(t, protocol.ErrNoPath, ic.Move("B", env.dest["B"], tasks.MoveOptions{}, 8))
	rec, ok := ic.Tracker().Get("B")
	require.True(t, ok)
	assert.False(t, rec.SwapPending)

	assert.Equal(t, protocol.MoveOK, ic.Move("B", env.dest["B"], tasks.MoveOptions{}, 9))
	assert.Equal(t, []string{"B"}, env.steps)
}

func TestInterceptor_PrimaryFailurePassesThrough(t *testing.T) {
	env, ic, obs := blockedScenario()
	env.stepCode = protocol.ErrTired

	assert.Equal(t, protocol.ErrTired, ic.Move("A", env.dest["A"], tasks.MoveOptions{}, 10))
	assert.Zero(t, ic.Tracker().Len())
	assert.Empty(t, obs.verdicts)
}

func TestInterceptor_ArrivalClearsRecord(t *testing.T) {
	env := newStubEnv()
	env.pos["A"] = Pos{X: 2, Y: 2}
	env.dest["A"] = Pos{X: 2, Y: 2}
	ic := NewInterceptor(env, traffic.NewTracker(), traffic.DefaultConfig(), nil)

	for _, rec := range []traffic.Record{
		{Tick: 1, X: 2, Y: 1},
		{Tick: 1, X: 2, Y: 2},
		{Tick: 1, X: 9, Y: 9},
	} {
		ic.Tracker().Set("A", rec)
		require.Equal(t, protocol.MoveOK, ic.Move("A", env.dest["A"], tasks.MoveOptions{}, 20))
		_, ok := ic.Tracker().Get("A")
		assert.False(t, ok, "record %+v must be purged on arrival", rec)
	}

	require.Equal(t, protocol.MoveOK, ic.Move("A", env.dest["A"], tasks.MoveOptions{}, 21))
	assert.Zero(t, ic.Tracker().Len())
}

func TestInterceptor_ArrivalAfterConsumedSwapClearsRecord(t *testing.T) {
	env := newStubEnv()
	env.pos["A"] = Pos{X: 2, Y: 2}
	env.dest["A"] = Pos{X: 2, Y: 2}
	ic := NewInterceptor(env, traffic.NewTracker(), traffic.DefaultConfig(), nil)
	ic.Tracker().Set("A", traffic.Record{Tick: 19, X: 2, Y: 1, SwapPending: true})

	// A pending swap wins over arrival for one invocation.
	require.Equal(t, protocol.ErrNoPath, ic.Move("A", env.dest["A"], tasks.MoveOptions{}, 20))
	rec, ok := ic.Tracker().Get("A")
	require.True(t, ok)
	assert.False(t, rec.SwapPending)

	require.Equal(t, protocol.MoveOK, ic.Move("A", env.dest["A"], tasks.MoveOptions{}, 21))
	_, ok = ic.Tracker().Get("A")
	assert.False(t, ok)
}

func TestInterceptor_FallsBackToTargetWithoutCachedDestination(t *testing.T) {
	env := newStubEnv()
	env.pos["A"] = Pos{X: 3, Y: 3}
	ic := NewInterceptor(env, traffic.NewTracker(), traffic.DefaultConfig(), nil)
	ic.Tracker().Set("A", traffic.Record{Tick: 1, X: 3, Y: 2})

	ic.Move("A", Pos{X: 3, Y: 3}, tasks.MoveOptions{}, 5)
	assert.Zero(t, ic.Tracker().Len())
}

func TestInterceptor_OnAgentRemoved(t *testing.T) {
	_, ic, _ := blockedScenario()
	ic.Tracker().Set("A", traffic.Record{Tick: 1})
	ic.OnAgentRemoved("A")
	assert.Zero(t, ic.Tracker().Len())
}

func TestInterceptor_SetConfig(t *testing.T) {
	_, ic, _ := blockedScenario()
	require.Error(t, ic.SetConfig(traffic.Config{StuckLimit: 5, SwapDelay: 3}))
	assert.Equal(t, traffic.DefaultConfig(), ic.Config())

	require.NoError(t, ic.SetConfig(traffic.Config{StuckLimit: 3, SwapDelay: 6}))
	assert.Equal(t, traffic.Config{StuckLimit: 3, SwapDelay: 6}, ic.Config())
}

func TestInterceptor_CommandedMoveFailureIsSilent(t *testing.T) {
	env, ic, obs := blockedScenario()
	env.moveCode = protocol.ErrInvalidTarget
	ic.Tracker().Set("A", traffic.Record{Tick: 10, X: 5, Y: 5})

	assert.Equal(t, protocol.MoveOK, ic.Move("A", env.dest["A"], tasks.MoveOptions{}, 13))
	require.Len(t, obs.resolutions, 1)
	assert.Equal(t, protocol.ErrInvalidTarget, obs.resolutions[0].MoveCode)
	rec, _ := ic.Tracker().Get("B")
	assert.True(t, rec.SwapPending)
}
