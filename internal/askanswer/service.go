package askanswer

import (
	"context"
	"fmt"
	"time"

	"github.com/driftboard/driftboard/internal/domain"
	"github.com/driftboard/driftboard/pkg/clients/answers"

	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
)

// GraphEngine is the slice of the sync engine the protocol needs: local
// lookups plus the metadata update path shared with every other edge write.
type GraphEngine interface {
	GetNode(nodeID string) (domain.Node, bool)
	GetEdge(edgeID string) (domain.Edge, bool)
	UpdateEdgeMetadata(ctx context.Context, edgeID string, mutate func(metadata map[string]any) map[string]any) (domain.Edge, error)
}

// Service runs the ask/answer request/response state machine stored on edge
// metadata: sending → processing → answered | error.
type Service struct {
	canvasID string
	graph    GraphEngine
	client   answers.ClientInterface
	now      func() time.Time
}

type ServiceDependencies struct {
	CanvasID      string
	Graph         GraphEngine
	AnswersClient answers.ClientInterface
	// Now overrides the clock, for tests.
	Now func() time.Time
}

func NewService(deps ServiceDependencies) *Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		canvasID: deps.CanvasID,
		graph:    deps.Graph,
		client:   deps.AnswersClient,
		now:      now,
	}
}

// checkEligibility enforces the structural preconditions shared by enabling
// and querying: both endpoints exist and are agents, and the edge connects
// exactly those two nodes in this direction.
func (s *Service) checkEligibility(fromNodeID, toNodeID, edgeID string) (domain.Edge, error) {
	from, ok := s.graph.GetNode(fromNodeID)
	if !ok {
		return domain.Edge{}, fmt.Errorf("from node: %w", domain.ErrNodeNotFound)
	}
	to, ok := s.graph.GetNode(toNodeID)
	if !ok {
		return domain.Edge{}, fmt.Errorf("to node: %w", domain.ErrNodeNotFound)
	}

	if !from.IsAgent() || !to.IsAgent() {
		return domain.Edge{}, domain.ErrNotAgentPair
	}

	edge, ok := s.graph.GetEdge(edgeID)
	if !ok {
		return domain.Edge{}, domain.ErrEdgeNotFound
	}
	if !edge.Connects(fromNodeID, toNodeID) {
		return domain.Edge{}, domain.ErrEdgeMismatch
	}

	return edge, nil
}

// Enable turns the protocol on for an eligible edge.
func (s *Service) Enable(ctx context.Context, fromNodeID, toNodeID, edgeID string) error {
	if _, err := s.checkEligibility(fromNodeID, toNodeID, edgeID); err != nil {
		return err
	}

	return s.writeMetadata(ctx, edgeID, func(meta *domain.AskAnswerMetadata) {
		meta.Enabled = true
	})
}

// Disable turns the protocol off; state and history are preserved.
func (s *Service) Disable(ctx context.Context, fromNodeID, toNodeID, edgeID string) error {
	if _, err := s.checkEligibility(fromNodeID, toNodeID, edgeID); err != nil {
		return err
	}

	return s.writeMetadata(ctx, edgeID, func(meta *domain.AskAnswerMetadata) {
		meta.Enabled = false
	})
}

// SendQuery validates and runs one exchange. The sending state is written
// before the remote call so the UI reflects an in-flight query immediately.
// History records completed exchanges only.
func (s *Service) SendQuery(ctx context.Context, fromNodeID, toNodeID, edgeID, query string) (domain.LastQuery, error) {
	sanitized, err := ValidateQuery(query)
	if err != nil {
		return domain.LastQuery{}, err
	}

	edge, err := s.checkEligibility(fromNodeID, toNodeID, edgeID)
	if err != nil {
		return domain.LastQuery{}, err
	}

	if !domain.AskAnswerFromEdge(edge).Enabled {
		return domain.LastQuery{}, domain.ErrAskAnswerDisabled
	}

	queryID := xid.New().String()
	startedAt := s.now()

	pending := domain.LastQuery{
		ID:        queryID,
		Query:     sanitized,
		Timestamp: startedAt,
		Status:    domain.QueryStatusSending,
	}

	if err := s.writeMetadata(ctx, edgeID, func(meta *domain.AskAnswerMetadata) {
		meta.LastQuery = &pending
	}); err != nil {
		return domain.LastQuery{}, err
	}

	resp, err := s.client.ProduceAnswer(ctx, &answers.AnswerRequest{
		CanvasID:   s.canvasID,
		FromNodeID: fromNodeID,
		ToNodeID:   toNodeID,
		EdgeID:     edgeID,
		Query:      sanitized,
		QueryID:    queryID,
	})

	if err != nil || !resp.Success {
		message := "answer service failed"
		if err != nil {
			message = err.Error()
		} else if resp.Error != "" {
			message = resp.Error
		}

		log.Warn().Str("edge_id", edgeID).Str("query_id", queryID).Msg("Ask/answer query failed")

		failed := pending
		failed.Status = domain.QueryStatusError
		failed.Error = message

		if writeErr := s.writeMetadata(ctx, edgeID, func(meta *domain.AskAnswerMetadata) {
			if meta.LastQuery != nil && meta.LastQuery.ID == queryID {
				meta.LastQuery = &failed
			}
		}); writeErr != nil {
			log.Warn().Err(writeErr).Str("edge_id", edgeID).Msg("Failed to record query error state")
		}

		return failed, nil
	}

	duration := resp.DurationMS
	if duration == 0 {
		duration = s.now().Sub(startedAt).Milliseconds()
	}

	answered := pending
	answered.Status = domain.QueryStatusAnswered
	answered.Answer = resp.Answer

	record := domain.QueryRecord{
		ID:         queryID,
		Query:      sanitized,
		Answer:     resp.Answer,
		Timestamp:  startedAt,
		DurationMS: duration,
	}

	if err := s.writeMetadata(ctx, edgeID, func(meta *domain.AskAnswerMetadata) {
		if meta.LastQuery != nil && meta.LastQuery.ID == queryID {
			meta.LastQuery = &answered
		}
		meta.AppendHistory(record)
	}); err != nil {
		return domain.LastQuery{}, err
	}

	return answered, nil
}

// ClearAnswer removes the last query from the edge; history is kept because
// clearing acknowledges a review, it does not discard the exchange.
func (s *Service) ClearAnswer(ctx context.Context, edgeID string) error {
	return s.writeMetadata(ctx, edgeID, func(meta *domain.AskAnswerMetadata) {
		meta.LastQuery = nil
	})
}

// State reads the edge's protocol state. A query stuck in sending or
// processing beyond the staleness window is presented as an error even
// though no error was ever written.
func (s *Service) State(edgeID string) (domain.AskAnswerMetadata, error) {
	edge, ok := s.graph.GetEdge(edgeID)
	if !ok {
		return domain.AskAnswerMetadata{}, domain.ErrEdgeNotFound
	}

	meta := domain.AskAnswerFromEdge(edge)

	if meta.LastQuery != nil && meta.LastQuery.IsStale(s.now()) {
		stale := *meta.LastQuery
		stale.Status = domain.QueryStatusError
		stale.Error = "query timed out waiting for an answer"
		meta.LastQuery = &stale
	}

	return meta, nil
}

func (s *Service) writeMetadata(ctx context.Context, edgeID string, mutate func(meta *domain.AskAnswerMetadata)) error {
	_, err := s.graph.UpdateEdgeMetadata(ctx, edgeID, func(metadata map[string]any) map[string]any {
		meta := domain.AskAnswerFromEdge(domain.Edge{Metadata: metadata})
		mutate(&meta)

		value, err := meta.ToMetadataValue()
		if err != nil {
			log.Error().Err(err).Str("edge_id", edgeID).Msg("Failed to encode ask/answer metadata")
			return metadata
		}

		metadata[domain.MetadataKeyAskAnswer] = value
		return metadata
	})

	return err
}
