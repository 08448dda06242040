package world

import (
	"encoding/json"

	"gridtraffic.ai/internal/observerproto"
)

// ObserverJoinRequest registers a spectator that receives a TICK frame
// every EveryTicks ticks on Out. Frames are dropped when Out is full.
type ObserverJoinRequest struct {
	SessionID   string
	Out         chan []byte
	EveryTicks  int
	WithTracker bool
}

type observerState struct {
	out         chan []byte
	everyTicks  uint64
	withTracker bool
}

func (w *World) ObserverJoin() chan<- ObserverJoinRequest { return w.observerJoin }
func (w *World) ObserverLeave() chan<- string             { return w.observerLeave }

// MapRows renders the static map. The grid only changes on snapshot import,
// which happens before the loop starts.
func (w *World) MapRows() []string { return w.grid.Rows() }

func (w *World) handleObserverJoin(req ObserverJoinRequest) {
	every := req.EveryTicks
	if every <= 0 {
		every = 1
	}
	// A re-subscribe keeps the session's channel.
	if prev := w.observers[req.SessionID]; prev != nil && req.Out == nil {
		req.Out = prev.out
	}
	if req.Out == nil {
		return
	}
	w.observers[req.SessionID] = &observerState{out: req.Out, everyTicks: uint64(every), withTracker: req.WithTracker}
}

// broadcastObservers sends this tick's frame to every due spectator. The
// frame is built at most twice: with and without the tracker table.
func (w *World) broadcastObservers(nowTick uint64, entry TickLogEntry) {
	if len(w.observers) == 0 {
		return
	}
	var plain, full []byte
	for id, o := range w.observers {
		if nowTick%o.everyTicks != 0 {
			continue
		}
		buf := &plain
		if o.withTracker {
			buf = &full
		}
		if *buf == nil {
			b, err := json.Marshal(w.observerFrame(nowTick, entry, o.withTracker))
			if err != nil {
				w.log.Error().Err(err).Str("observer", id).Msg("encode observer frame")
				return
			}
			*buf = b
		}
		sendLatest(o.out, *buf)
	}
}

func (w *World) observerFrame(nowTick uint64, entry TickLogEntry, withTracker bool) observerproto.TickMsg {
	msg := observerproto.TickMsg{
		Type:            observerproto.TypeTick,
		ProtocolVersion: observerproto.Version,
		Tick:            nowTick,
		Digest:          entry.Digest,
		Leaves:          entry.Leaves,
		Removed:         entry.Removed,
		Stalls:          entry.Stalls,
	}
	for _, j := range entry.Joins {
		msg.Joins = append(msg.Joins, j.AgentID)
	}
	for _, s := range entry.Swaps {
		msg.Swaps = append(msg.Swaps, observerproto.SwapInfo{AgentID: s.AgentID, BlockerID: s.BlockerID, Dir: s.Dir, Code: s.Code})
	}
	for _, a := range w.sortedAgents() {
		st := observerproto.AgentState{
			ID:        a.ID,
			Pos:       vecArray(a.Pos),
			Connected: w.clients[a.ID] != nil,
		}
		if mt := a.MoveTask; mt != nil {
			t := vecArray(mt.Target)
			st.Target = &t
			st.Stalled = w.isStalled(a, nowTick)
		}
		msg.Agents = append(msg.Agents, st)
	}
	if withTracker {
		for _, e := range w.traffic.Tracker().Entries() {
			msg.Tracker = append(msg.Tracker, observerproto.TrackerRow{
				AgentID:     e.AgentID,
				Tick:        e.Tick,
				Pos:         [2]int{e.X, e.Y},
				SwapPending: e.SwapPending,
			})
		}
	}
	return msg
}
