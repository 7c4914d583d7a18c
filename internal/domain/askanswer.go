package domain

import (
	"encoding/json"
	"errors"
	"time"
)

type QueryStatus string

const (
	QueryStatusSending    QueryStatus = "sending"
	QueryStatusProcessing QueryStatus = "processing"
	QueryStatusAnswered   QueryStatus = "answered"
	QueryStatusError      QueryStatus = "error"
)

const (
	// MaxQueryLength bounds the size of a single ask query.
	MaxQueryLength = 2000

	// QueryHistoryCap bounds stored history per edge, oldest evicted first.
	QueryHistoryCap = 50

	// QueryStaleAfter is how long a query may sit in sending/processing
	// before the view layer treats it as failed.
	QueryStaleAfter = 2 * time.Minute
)

var (
	ErrEmptyQuery        = errors.New("query is empty")
	ErrQueryTooLong      = errors.New("query exceeds maximum length")
	ErrQueryUnsafe       = errors.New("query contains disallowed markup")
	ErrNotAgentPair      = errors.New("both nodes must be agents")
	ErrAskAnswerDisabled = errors.New("ask/answer is not enabled on this edge")
	ErrEdgeMismatch      = errors.New("edge does not connect these nodes")
)

type LastQuery struct {
	ID        string      `json:"id"`
	Query     string      `json:"query"`
	Answer    string      `json:"answer,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Status    QueryStatus `json:"status"`
	Error     string      `json:"error,omitempty"`
}

// IsStale reports whether an in-flight query has outlived the staleness
// window without reaching a terminal status.
func (q LastQuery) IsStale(now time.Time) bool {
	if q.Status != QueryStatusSending && q.Status != QueryStatusProcessing {
		return false
	}

	return now.Sub(q.Timestamp) > QueryStaleAfter
}

type QueryRecord struct {
	ID         string    `json:"id"`
	Query      string    `json:"query"`
	Answer     string    `json:"answer"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMS int64     `json:"duration_ms"`
}

// AskAnswerMetadata is the ask/answer protocol state stored inside
// Edge.Metadata under MetadataKeyAskAnswer.
type AskAnswerMetadata struct {
	Enabled      bool          `json:"askAnswerEnabled"`
	LastQuery    *LastQuery    `json:"lastQuery,omitempty"`
	QueryHistory []QueryRecord `json:"queryHistory"`
}

const MetadataKeyAskAnswer = "askAnswer"

// AppendHistory appends a completed exchange, evicting the oldest entries
// beyond QueryHistoryCap.
func (m *AskAnswerMetadata) AppendHistory(record QueryRecord) {
	m.QueryHistory = append(m.QueryHistory, record)
	if len(m.QueryHistory) > QueryHistoryCap {
		m.QueryHistory = m.QueryHistory[len(m.QueryHistory)-QueryHistoryCap:]
	}
}

// AskAnswerFromEdge decodes the ask/answer state from an edge's metadata.
// A missing or malformed entry yields zero-value metadata (disabled).
func AskAnswerFromEdge(edge Edge) AskAnswerMetadata {
	raw, ok := edge.Metadata[MetadataKeyAskAnswer]
	if !ok {
		return AskAnswerMetadata{}
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return AskAnswerMetadata{}
	}

	var meta AskAnswerMetadata
	if err := json.Unmarshal(encoded, &meta); err != nil {
		return AskAnswerMetadata{}
	}

	return meta
}

// ToMetadataValue encodes the ask/answer state back into the generic
// map form stored on Edge.Metadata.
func (m AskAnswerMetadata) ToMetadataValue() (map[string]any, error) {
	encoded, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}

	var value map[string]any
	if err := json.Unmarshal(encoded, &value); err != nil {
		return nil, err
	}

	return value, nil
}
