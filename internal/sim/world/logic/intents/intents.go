package intents

import "sort"

type Pos struct {
	X int
	Y int
}

// Intent is one agent's request to enter an adjacent cell this tick.
type Intent struct {
	AgentID string
	From    Pos
	To      Pos
	// Forced marks a commanded move. Forced intents claim contested cells
	// before ordinary ones.
	Forced bool
}

// Resolve applies all intents simultaneously and returns the agents that
// move, keyed by ID with their new position.
//
// Rules, all deterministic:
//   - intents into impassable cells fail; only the first passable intent per agent counts;
//   - when several agents target the same cell, a forced intent wins, then
//     the lowest agent ID;
//   - a move into a cell occupied by another agent succeeds only if that
//     occupant also moves out this tick. Chains, swaps and rotations all
//     move together.
func Resolve(in []Intent, occupant map[Pos]string, passable func(Pos) bool) map[string]Pos {
	if len(in) == 0 {
		return nil
	}
	sorted := make([]Intent, len(in))
	copy(sorted, in)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Forced != sorted[j].Forced {
			return sorted[i].Forced
		}
		return sorted[i].AgentID < sorted[j].AgentID
	})

	claims := make(map[Pos]string, len(sorted))
	alive := make(map[string]Intent, len(sorted))
	for _, it := range sorted {
		if it.From == it.To {
			continue
		}
		if _, dup := alive[it.AgentID]; dup {
			continue
		}
		if passable != nil && !passable(it.To) {
			continue
		}
		if _, taken := claims[it.To]; taken {
			continue
		}
		claims[it.To] = it.AgentID
		alive[it.AgentID] = it
	}

	// Drop moves into cells whose occupant stays put until nothing changes.
	for changed := true; changed; {
		changed = false
		for _, it := range sorted {
			cur, ok := alive[it.AgentID]
			if !ok || cur != it {
				continue
			}
			occ, occupied := occupant[it.To]
			if !occupied || occ == it.AgentID {
				continue
			}
			if _, leaving := alive[occ]; leaving {
				continue
			}
			delete(alive, it.AgentID)
			delete(claims, it.To)
			changed = true
		}
	}

	out := make(map[string]Pos, len(alive))
	for id, it := range alive {
		out[id] = it.To
	}
	return out
}
