package world

import (
	"fmt"
	"sort"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"gridtraffic.ai/internal/protocol"
)

const maxAgentNameLen = 40

func normalizeAgentName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "agent"
	}
	if len(name) > maxAgentNameLen {
		name = name[:maxAgentNameLen]
	}
	return name
}

func newAgentID(idNum uint64) string {
	return fmt.Sprintf("A%d", idNum)
}

func newResumeToken() string {
	id, err := gonanoid.New()
	if err != nil {
		// crypto/rand failed; the agent just cannot be resumed.
		return ""
	}
	return "resume_" + id
}

func (w *World) buildWelcome(agentID, resumeToken string) protocol.WelcomeMsg {
	cfg := w.traffic.Config()
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		AgentID:         agentID,
		ResumeToken:     resumeToken,
		WorldParams: protocol.WorldParams{
			WorldID:    w.cfg.ID,
			TickRateHz: w.cfg.TickRateHz,
			Width:      w.grid.Width,
			Height:     w.grid.Height,
			Traffic: protocol.TrafficParams{
				StuckLimit: cfg.StuckLimit,
				SwapDelay:  cfg.SwapDelay,
			},
		},
	}
}

// findSpawn returns a free walkable cell. Map spawn cells are tried first,
// rotated by the agent number so joins spread out; then the grid is scanned
// row by row.
func (w *World) findSpawn(idNum uint64) (Vec2i, bool) {
	w.rebuildOccupancy()
	spawns := w.grid.Spawns()
	for i := range spawns {
		c := spawns[(int(idNum)+i)%len(spawns)]
		p := Vec2i{X: c.X, Y: c.Y}
		if _, taken := w.occ[p]; !taken && w.walkable(p) {
			return p, true
		}
	}
	for y := 0; y < w.grid.Height; y++ {
		for x := 0; x < w.grid.Width; x++ {
			p := Vec2i{X: x, Y: y}
			if _, taken := w.occ[p]; !taken && w.walkable(p) {
				return p, true
			}
		}
	}
	return Vec2i{}, false
}

func (w *World) joinAgent(name string, out chan []byte) JoinResponse {
	idNum := w.nextAgentNum.Load() + 1
	pos, ok := w.findSpawn(idNum)
	if !ok {
		w.log.Warn().Str("name", name).Msg("join refused: no free spawn cell")
		return JoinResponse{Err: protocol.ErrWorldBusy}
	}
	w.nextAgentNum.Store(idNum)
	agentID := newAgentID(idNum)

	a := &Agent{
		ID:          agentID,
		Name:        normalizeAgentName(name),
		Pos:         pos,
		ResumeToken: newResumeToken(),
	}
	w.agents[agentID] = a
	w.occ[pos] = agentID
	if out != nil {
		w.clients[agentID] = &clientState{Out: out}
	}
	w.log.Info().Str("agent_id", agentID).Str("name", a.Name).Int("x", pos.X).Int("y", pos.Y).Msg("agent joined")

	return JoinResponse{Welcome: w.buildWelcome(agentID, a.ResumeToken)}
}

func (w *World) handleAttach(req AttachRequest) {
	token := strings.TrimSpace(req.ResumeToken)
	if token == "" || req.Out == nil {
		if req.Resp != nil {
			req.Resp <- JoinResponse{Err: protocol.ErrBadRequest}
		}
		return
	}

	// Find agent deterministically by iterating sorted ids.
	ids := make([]string, 0, len(w.agents))
	for id := range w.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var a *Agent
	for _, id := range ids {
		if w.agents[id].ResumeToken == token {
			a = w.agents[id]
			break
		}
	}
	if a == nil {
		if req.Resp != nil {
			req.Resp <- JoinResponse{Err: protocol.ErrNotFound}
		}
		return
	}

	// Attach client (does not affect simulation determinism).
	w.clients[a.ID] = &clientState{Out: req.Out}

	// Rotate token on successful resume.
	a.ResumeToken = newResumeToken()
	w.log.Info().Str("agent_id", a.ID).Msg("agent resumed")

	if req.Resp != nil {
		req.Resp <- JoinResponse{Welcome: w.buildWelcome(a.ID, a.ResumeToken)}
	}
}

// handleLeave detaches the agent's client. The agent itself stays on the
// grid. It reports false for a leave from a session that was already replaced.
func (w *World) handleLeave(req LeaveRequest) bool {
	cl := w.clients[req.AgentID]
	if req.Out != nil && cl != nil && cl.Out != req.Out {
		return false
	}
	delete(w.clients, req.AgentID)
	return true
}

// removeAgent despawns an agent and purges all traffic state kept for it.
func (w *World) removeAgent(agentID string) bool {
	a := w.agents[agentID]
	if a == nil {
		return false
	}
	delete(w.agents, agentID)
	delete(w.clients, agentID)
	delete(w.moveIntents, agentID)
	if w.occ[a.Pos] == agentID {
		delete(w.occ, a.Pos)
	}
	w.traffic.OnAgentRemoved(agentID)
	w.log.Info().Str("agent_id", agentID).Msg("agent removed")
	return true
}
