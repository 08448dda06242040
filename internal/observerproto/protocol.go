package observerproto

// Version is the observer protocol version (separate from the agent WS protocol).
const Version = "0.2"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeTick      = "TICK"
)

// Client -> Server. First message on the observer WS connection, and can be
// re-sent to change the frame rate.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// EveryTicks sends one frame per N ticks (default 1).
	EveryTicks int `json:"every_ticks,omitempty"`
	// WithTracker includes the traffic tracker table in each frame.
	WithTracker bool `json:"with_tracker,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldID         string      `json:"world_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
	// Rows is the static map, one string per row ('#' wall, '.' floor).
	Rows []string `json:"rows"`
}

type WorldParams struct {
	TickRateHz int `json:"tick_rate_hz"`
	Width      int `json:"width"`
	Height     int `json:"height"`
}

// Server -> Client. Sent every EveryTicks ticks.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Digest          string `json:"digest"`

	Agents  []AgentState `json:"agents"`
	Joins   []string     `json:"joins,omitempty"`
	Leaves  []string     `json:"leaves,omitempty"`
	Removed []string     `json:"removed,omitempty"`
	Stalls  []string     `json:"stalls,omitempty"`
	Swaps   []SwapInfo   `json:"swaps,omitempty"`
	Tracker []TrackerRow `json:"tracker,omitempty"`
}

type AgentState struct {
	ID        string  `json:"id"`
	Pos       [2]int  `json:"pos"`
	Connected bool    `json:"connected"`
	Target    *[2]int `json:"target,omitempty"`
	Stalled   bool    `json:"stalled,omitempty"`
}

type SwapInfo struct {
	AgentID   string `json:"agent_id"`
	BlockerID string `json:"blocker_id"`
	Dir       string `json:"dir"`
	Code      string `json:"code"`
}

type TrackerRow struct {
	AgentID     string `json:"agent_id"`
	Tick        uint64 `json:"tick"`
	Pos         [2]int `json:"pos"`
	SwapPending bool   `json:"swap_pending,omitempty"`
}
