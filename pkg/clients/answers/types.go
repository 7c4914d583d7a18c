package answers

import "fmt"

// AnswerRequest asks the remote service to produce an answer for a query
// sent across an edge between two agent nodes.
type AnswerRequest struct {
	CanvasID   string `json:"canvasId"`
	FromNodeID string `json:"fromNodeId"`
	ToNodeID   string `json:"toNodeId"`
	EdgeID     string `json:"edgeId"`
	Query      string `json:"query"`
	QueryID    string `json:"queryId"`
}

type AnswerResponse struct {
	Success    bool   `json:"success"`
	QueryID    string `json:"queryId"`
	Answer     string `json:"answer,omitempty"`
	Error      string `json:"error,omitempty"`
	Timestamp  int64  `json:"timestamp"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// Error is returned for non-2xx responses from the answer service.
type Error struct {
	StatusCode int
	Message    string
	Body       string
	RequestID  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("answers API error %d: %s", e.StatusCode, e.Message)
}
