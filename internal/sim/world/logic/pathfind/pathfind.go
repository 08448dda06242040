package pathfind

type Pos struct {
	X int
	Y int
}

// Direction follows the usual grid-game numbering: TOP=1, clockwise to TOP_LEFT=8.
type Direction int

const (
	DirNone Direction = iota
	DirTop
	DirTopRight
	DirRight
	DirBottomRight
	DirBottom
	DirBottomLeft
	DirLeft
	DirTopLeft
)

var dirOffsets = [...]Pos{
	DirNone:        {},
	DirTop:         {X: 0, Y: -1},
	DirTopRight:    {X: 1, Y: -1},
	DirRight:       {X: 1, Y: 0},
	DirBottomRight: {X: 1, Y: 1},
	DirBottom:      {X: 0, Y: 1},
	DirBottomLeft:  {X: -1, Y: 1},
	DirLeft:        {X: -1, Y: 0},
	DirTopLeft:     {X: -1, Y: -1},
}

var dirNames = [...]string{
	DirNone:        "NONE",
	DirTop:         "TOP",
	DirTopRight:    "TOP_RIGHT",
	DirRight:       "RIGHT",
	DirBottomRight: "BOTTOM_RIGHT",
	DirBottom:      "BOTTOM",
	DirBottomLeft:  "BOTTOM_LEFT",
	DirLeft:        "LEFT",
	DirTopLeft:     "TOP_LEFT",
}

func (d Direction) Valid() bool { return d >= DirTop && d <= DirTopLeft }

func (d Direction) String() string {
	if d < DirNone || d > DirTopLeft {
		return "INVALID"
	}
	return dirNames[d]
}

// Offset returns the unit step for d; invalid directions yield a zero offset.
func (d Direction) Offset() (dx, dy int) {
	if !d.Valid() {
		return 0, 0
	}
	o := dirOffsets[d]
	return o.X, o.Y
}

func (p Pos) Step(d Direction) Pos {
	dx, dy := d.Offset()
	return Pos{X: p.X + dx, Y: p.Y + dy}
}

// DirectionBetween returns the direction of the first step from "from"
// toward "to", using the sign of each axis delta. Equal positions give DirNone.
func DirectionBetween(from, to Pos) Direction {
	dx := sign(to.X - from.X)
	dy := sign(to.Y - from.Y)
	for d := DirTop; d <= DirTopLeft; d++ {
		o := dirOffsets[d]
		if o.X == dx && o.Y == dy {
			return d
		}
	}
	return DirNone
}

// Chebyshev is the 8-connected grid distance.
func Chebyshev(a, b Pos) int {
	dx := abs(a.X - b.X)
	dy := abs(a.Y - b.Y)
	if dx > dy {
		return dx
	}
	return dy
}

// neighbourOrder is fixed for determinism: orthogonal first, then diagonals.
var neighbourOrder = [...]Direction{DirTop, DirRight, DirBottom, DirLeft, DirTopRight, DirBottomRight, DirBottomLeft, DirTopLeft}

// FindPath runs a breadth-first search from start to goal on an 8-connected
// grid and returns the cells to walk, excluding start and including goal.
// passable is consulted for every cell except start; the goal must be
// passable too. maxNodes bounds the search (<=0 means unbounded).
func FindPath(start, goal Pos, maxNodes int, passable func(Pos) bool) ([]Pos, bool) {
	if start == goal {
		return nil, true
	}
	if passable == nil || !passable(goal) {
		return nil, false
	}

	prev := make(map[Pos]Pos, 256)
	prev[start] = start
	queue := make([]Pos, 0, 256)
	queue = append(queue, start)

	for head := 0; head < len(queue); head++ {
		if maxNodes > 0 && head >= maxNodes {
			return nil, false
		}
		cur := queue[head]
		for _, d := range neighbourOrder {
			np := cur.Step(d)
			if _, seen := prev[np]; seen {
				continue
			}
			if !passable(np) {
				continue
			}
			prev[np] = cur
			if np == goal {
				return unwind(prev, start, goal), true
			}
			queue = append(queue, np)
		}
	}
	return nil, false
}

func unwind(prev map[Pos]Pos, start, goal Pos) []Pos {
	n := 0
	for p := goal; p != start; p = prev[p] {
		n++
	}
	out := make([]Pos, n)
	for p := goal; p != start; p = prev[p] {
		n--
		out[n] = p
	}
	return out
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
