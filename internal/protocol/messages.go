package protocol

// HelloMsg opens a viewer session.
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name,omitempty"`
}

// RunParams describes the simulation behind the stream.
type RunParams struct {
	Population int   `json:"population"`
	Width      int   `json:"width"`
	Height     int   `json:"height"`
	Seed       int64 `json:"seed"`
	TickRateHz int   `json:"tick_rate_hz"`
}

// WelcomeMsg acknowledges a viewer and carries the run parameters.
type WelcomeMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	RunID           string    `json:"run_id"`
	Params          RunParams `json:"params"`
}

// AgentView is the per-agent rendering payload: state plus the hints a
// renderer needs (color and size keyed by wealth).
type AgentView struct {
	ID     int     `json:"id"`
	Wealth int     `json:"wealth"`
	X      int     `json:"x"`
	Y      int     `json:"y"`
	Color  string  `json:"color"`
	Size   float64 `json:"size"`
}

// FrameMsg is one step of the stream.
type FrameMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Step            uint64      `json:"step"`
	Gini            float64     `json:"gini"`
	Agents          []AgentView `json:"agents"`
}

// ErrorMsg reports a session-level failure before closing.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}
