package tasks

type Kind string

const (
	KindMoveTo Kind = "MOVE_TO"
)

// MoveOptions is passed through the traffic interceptor to the move
// primitive untouched.
type MoveOptions struct {
	// ReusePath is how many ticks a cached path stays valid. Zero means the
	// world default; negative forces a recompute every tick.
	ReusePath int
	// IgnoreAgents plans through cells occupied by other agents.
	IgnoreAgents bool
}

type MovementTask struct {
	TaskID      string
	Kind        Kind
	Target      Vec2i
	Options     MoveOptions
	StartPos    Vec2i
	StartedTick uint64

	// Cached path, decoded once when computed. Path[Cursor] is the next cell.
	Path     []Vec2i
	Cursor   int
	PathTick uint64

	NoPathStreak int
}

// NextStep returns the next cell on the cached path.
func (t *MovementTask) NextStep() (Vec2i, bool) {
	if t == nil || t.Cursor < 0 || t.Cursor >= len(t.Path) {
		return Vec2i{}, false
	}
	return t.Path[t.Cursor], true
}

// ClearPath drops the cached path so the next step recomputes it.
func (t *MovementTask) ClearPath() {
	if t == nil {
		return
	}
	t.Path = nil
	t.Cursor = 0
	t.PathTick = 0
}

// Vec2i is duplicated here to avoid import cycles (tasks is used by world).
type Vec2i struct{ X, Y int }
