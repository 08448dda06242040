package traffic

import "sort"

// Record is the last known movement status of one agent.
type Record struct {
	Tick        uint64 `json:"tick"`
	X           int    `json:"x"`
	Y           int    `json:"y"`
	SwapPending bool   `json:"swap_pending,omitempty"`
}

type Entry struct {
	AgentID string `json:"agent_id"`
	Record
}

// Tracker maps agent IDs to their last record. It is owned by the world
// loop and is not safe for concurrent use; every engine component receives
// it explicitly.
type Tracker struct {
	recs map[string]Record
}

func NewTracker() *Tracker {
	return &Tracker{recs: map[string]Record{}}
}

func (t *Tracker) Get(agentID string) (Record, bool) {
	if t == nil {
		return Record{}, false
	}
	r, ok := t.recs[agentID]
	return r, ok
}

func (t *Tracker) Set(agentID string, r Record) {
	if t == nil {
		return
	}
	if t.recs == nil {
		t.recs = map[string]Record{}
	}
	t.recs[agentID] = r
}

// Remove drops an agent's record. Callers must remove destroyed agents;
// a forgotten entry is never read again but stays in memory.
func (t *Tracker) Remove(agentID string) {
	if t == nil {
		return
	}
	delete(t.recs, agentID)
}

func (t *Tracker) Len() int {
	if t == nil {
		return 0
	}
	return len(t.recs)
}

func (t *Tracker) Reset() {
	if t == nil {
		return
	}
	clear(t.recs)
}

// Entries returns a copy of all records sorted by agent ID.
func (t *Tracker) Entries() []Entry {
	if t == nil || len(t.recs) == 0 {
		return nil
	}
	out := make([]Entry, 0, len(t.recs))
	for id, r := range t.recs {
		out = append(out, Entry{AgentID: id, Record: r})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}
