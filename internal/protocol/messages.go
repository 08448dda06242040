package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	AgentName       string            `json:"agent_name"`
	Capabilities    HelloCapabilities `json:"capabilities"`
	Auth            *HelloAuth        `json:"auth,omitempty"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id,omitempty"`
	AgentID         string      `json:"agent_id"`
	ResumeToken     string      `json:"resume_token"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	WorldID    string        `json:"world_id"`
	TickRateHz int           `json:"tick_rate_hz"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	Traffic    TrafficParams `json:"traffic"`
}

type TrafficParams struct {
	StuckLimit uint64 `json:"stuck_limit"`
	SwapDelay  uint64 `json:"swap_delay"`
}

// OBS (server -> client), one per tick.
type ObsMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Tick            uint64     `json:"tick"`
	AgentID         string     `json:"agent_id"`
	Self            SelfObs    `json:"self"`
	Task            *TaskObs   `json:"task,omitempty"`
	Agents          []AgentObs `json:"agents"`
	Events          []Event    `json:"events"`
}

type SelfObs struct {
	Pos      [2]int `json:"pos"`
	LastMove string `json:"last_move,omitempty"`
}

type TaskObs struct {
	TaskID   string `json:"task_id"`
	Kind     string `json:"kind"`
	Target   [2]int `json:"target"`
	PathLeft int    `json:"path_left"`
	Stalled  bool   `json:"stalled,omitempty"`
}

type AgentObs struct {
	ID  string `json:"id"`
	Pos [2]int `json:"pos"`
}

// Event is a loosely typed world event (TASK_DONE, TASK_FAIL, SWAPPED, ...).
type Event map[string]any

// ACT (client -> server)
type ActMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	Tick            uint64    `json:"tick"`
	AgentID         string    `json:"agent_id,omitempty"`
	Tasks           []TaskReq `json:"tasks,omitempty"`
	Cancel          []string  `json:"cancel,omitempty"`
}

type TaskReq struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Target [2]int `json:"target"`
	// ReusePath is the number of ticks a cached path is reused (0 = server default).
	ReusePath int `json:"reuse_path,omitempty"`
	// IgnoreAgents defaults to true when omitted.
	IgnoreAgents *bool `json:"ignore_agents,omitempty"`
}

// ERROR (server -> client) reports a rejected message. The session stays
// open unless the handshake failed.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}

func NewError(code, message string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: message}
}
