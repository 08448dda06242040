package world

import (
	"gridtraffic.ai/internal/sim/tasks"
	"gridtraffic.ai/internal/sim/world/logic/intents"
	"gridtraffic.ai/internal/sim/world/logic/pathfind"
)

type Vec2i = tasks.Vec2i

func (w *World) inBounds(p Vec2i) bool { return w.grid.InBounds(p.X, p.Y) }

// walkable reports whether terrain allows standing on p. Agents are not considered.
func (w *World) walkable(p Vec2i) bool {
	return w.grid.InBounds(p.X, p.Y) && !w.grid.Solid(p.X, p.Y)
}

func toPos(v Vec2i) pathfind.Pos   { return pathfind.Pos{X: v.X, Y: v.Y} }
func fromPos(p pathfind.Pos) Vec2i { return Vec2i{X: p.X, Y: p.Y} }

func toIntentPos(v Vec2i) intents.Pos { return intents.Pos{X: v.X, Y: v.Y} }

func vecArray(v Vec2i) [2]int { return [2]int{v.X, v.Y} }
