package model

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

type WSMessage struct {
	Type string `json:"type"`
}

type WSProgressMessage struct {
	Type        string    `json:"type"`
	JobID       string    `json:"job_id"`
	Progress    int       `json:"progress"`
	Status      JobStatus `json:"status"`
	Stage       Stage     `json:"stage,omitempty"`
	CurrentStep string    `json:"current_step,omitempty"`
}

type WSCompleteMessage struct {
	Type   string          `json:"type"`
	JobID  string          `json:"job_id"`
	Result *PipelineResult `json:"result"`
}

type WSErrorMessage struct {
	Type  string  `json:"type"`
	JobID string  `json:"job_id"`
	Error WSError `json:"error"`
}

type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
