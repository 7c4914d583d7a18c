package controllers

import (
	"errors"

	"github.com/driftboard/driftboard/internal/domain"
	"github.com/driftboard/driftboard/internal/engine"
	"github.com/driftboard/driftboard/internal/managers"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
)

// CanvasController exposes the graph engine and ask/answer protocol over
// HTTP for the editor surface.
type CanvasController struct {
	canvasStore domain.CanvasStore
	sessions    *managers.CanvasSessionManager
	breakers    domain.BreakerRegistry
}

type CanvasControllerDependencies struct {
	CanvasStore    domain.CanvasStore
	SessionManager *managers.CanvasSessionManager
	Breakers       domain.BreakerRegistry
}

func NewCanvasController(deps CanvasControllerDependencies) *CanvasController {
	return &CanvasController{
		canvasStore: deps.CanvasStore,
		sessions:    deps.SessionManager,
		breakers:    deps.Breakers,
	}
}

// httpError maps domain sentinels onto specific statuses so the editor can
// show precise feedback ("already connected") instead of a generic failure.
func httpError(err error) error {
	switch {
	case domain.IsNotFound(err):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrDuplicateEdge):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrCrossCanvas),
		errors.Is(err, domain.ErrInvalidPosition),
		errors.Is(err, domain.ErrInvalidConfig),
		errors.Is(err, domain.ErrUnknownNodeType),
		errors.Is(err, domain.ErrEmptyQuery),
		errors.Is(err, domain.ErrQueryTooLong),
		errors.Is(err, domain.ErrQueryUnsafe),
		errors.Is(err, domain.ErrNotAgentPair),
		errors.Is(err, domain.ErrAskAnswerDisabled),
		errors.Is(err, domain.ErrEdgeMismatch):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, "store unavailable, retry later")
	default:
		log.Error().Err(err).Msg("Unhandled canvas engine error")
		return fiber.NewError(fiber.StatusInternalServerError, "internal error")
	}
}

type createCanvasRequest struct {
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
}

func (c *CanvasController) CreateCanvas(ctx fiber.Ctx) error {
	var req createCanvasRequest
	if err := ctx.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.OwnerID == "" || req.Name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "owner_id and name are required")
	}

	canvas, err := c.canvasStore.CreateCanvas(ctx.RequestCtx(), domain.Canvas{
		OwnerID: req.OwnerID,
		Name:    req.Name,
	})
	if err != nil {
		return httpError(err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(canvas)
}

func (c *CanvasController) ListCanvases(ctx fiber.Ctx) error {
	ownerID := ctx.Query("owner_id")
	if ownerID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "owner_id is required")
	}

	canvases, err := c.canvasStore.ListCanvases(ctx.RequestCtx(), ownerID)
	if err != nil {
		return httpError(err)
	}

	return ctx.JSON(canvases)
}

// GetGraph opens (or reuses) the canvas session and returns the current
// graph snapshot for the editor.
func (c *CanvasController) GetGraph(ctx fiber.Ctx) error {
	session, err := c.sessions.GetSession(ctx.RequestCtx(), ctx.Params("canvasID"))
	if err != nil {
		return httpError(err)
	}

	return ctx.JSON(snapshotResponse(session.Engine.Snapshot()))
}

type updateCanvasRequest struct {
	Name *string            `json:"name"`
	Mode *domain.CanvasMode `json:"mode"`
}

func (c *CanvasController) UpdateCanvas(ctx fiber.Ctx) error {
	var req updateCanvasRequest
	if err := ctx.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if err := c.canvasStore.UpdateCanvas(ctx.RequestCtx(), ctx.Params("canvasID"), req.Name, req.Mode); err != nil {
		return httpError(err)
	}

	return ctx.SendStatus(fiber.StatusNoContent)
}

// DeleteCanvas removes the canvas; nodes and edges cascade at the store.
func (c *CanvasController) DeleteCanvas(ctx fiber.Ctx) error {
	canvasID := ctx.Params("canvasID")

	if err := c.canvasStore.DeleteCanvas(ctx.RequestCtx(), canvasID); err != nil {
		return httpError(err)
	}

	c.sessions.CloseSession(canvasID)

	return ctx.SendStatus(fiber.StatusNoContent)
}

type addNodeRequest struct {
	Type     domain.NodeType `json:"type"`
	Position positionPayload `json:"position"`
	Label    string          `json:"label"`
	Config   map[string]any  `json:"config"`
}

type positionPayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (c *CanvasController) AddNode(ctx fiber.Ctx) error {
	session, err := c.sessions.GetSession(ctx.RequestCtx(), ctx.Params("canvasID"))
	if err != nil {
		return httpError(err)
	}

	var req addNodeRequest
	if err := ctx.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	node, err := session.Engine.AddNode(ctx.RequestCtx(), engine.AddNodeParams{
		Type:     req.Type,
		Position: domain.Position{X: req.Position.X, Y: req.Position.Y},
		Label:    req.Label,
		Config:   req.Config,
	})
	if err != nil {
		return httpError(err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(nodeResponse(node))
}

type nodeChangePayload struct {
	Type     domain.ChangeType `json:"type"`
	ID       string            `json:"id"`
	Position *positionPayload  `json:"position,omitempty"`
}

func (c *CanvasController) ApplyNodeChanges(ctx fiber.Ctx) error {
	session, err := c.sessions.GetSession(ctx.RequestCtx(), ctx.Params("canvasID"))
	if err != nil {
		return httpError(err)
	}

	var payload []nodeChangePayload
	if err := ctx.Bind().Body(&payload); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	changes := make([]domain.NodeChange, 0, len(payload))
	for _, p := range payload {
		change := domain.NodeChange{Type: p.Type, NodeID: p.ID}
		if p.Position != nil {
			change.Position = &domain.Position{X: p.Position.X, Y: p.Position.Y}
		}
		changes = append(changes, change)
	}

	if err := session.Engine.ApplyNodeChanges(ctx.RequestCtx(), changes); err != nil {
		return httpError(err)
	}

	return ctx.SendStatus(fiber.StatusNoContent)
}

type commitLabelRequest struct {
	Label string `json:"label"`
}

func (c *CanvasController) CommitNodeLabel(ctx fiber.Ctx) error {
	session, err := c.sessions.GetSession(ctx.RequestCtx(), ctx.Params("canvasID"))
	if err != nil {
		return httpError(err)
	}

	var req commitLabelRequest
	if err := ctx.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if err := session.Engine.CommitNodeLabel(ctx.RequestCtx(), ctx.Params("nodeID"), req.Label); err != nil {
		return httpError(err)
	}

	return ctx.SendStatus(fiber.StatusNoContent)
}

type commitConfigRequest struct {
	Config map[string]any `json:"config"`
}

func (c *CanvasController) CommitNodeConfig(ctx fiber.Ctx) error {
	session, err := c.sessions.GetSession(ctx.RequestCtx(), ctx.Params("canvasID"))
	if err != nil {
		return httpError(err)
	}

	var req commitConfigRequest
	if err := ctx.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if err := session.Engine.CommitNodeConfig(ctx.RequestCtx(), ctx.Params("nodeID"), req.Config); err != nil {
		return httpError(err)
	}

	return ctx.SendStatus(fiber.StatusNoContent)
}

func (c *CanvasController) DuplicateNode(ctx fiber.Ctx) error {
	session, err := c.sessions.GetSession(ctx.RequestCtx(), ctx.Params("canvasID"))
	if err != nil {
		return httpError(err)
	}

	node, err := session.Engine.DuplicateNode(ctx.RequestCtx(), ctx.Params("nodeID"))
	if err != nil {
		return httpError(err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(nodeResponse(node))
}

func (c *CanvasController) DeleteNode(ctx fiber.Ctx) error {
	session, err := c.sessions.GetSession(ctx.RequestCtx(), ctx.Params("canvasID"))
	if err != nil {
		return httpError(err)
	}

	if err := session.Engine.DeleteNode(ctx.RequestCtx(), ctx.Params("nodeID")); err != nil {
		return httpError(err)
	}

	return ctx.SendStatus(fiber.StatusNoContent)
}

type connectRequest struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle"`
	TargetHandle string `json:"targetHandle"`
}

func (c *CanvasController) Connect(ctx fiber.Ctx) error {
	session, err := c.sessions.GetSession(ctx.RequestCtx(), ctx.Params("canvasID"))
	if err != nil {
		return httpError(err)
	}

	var req connectRequest
	if err := ctx.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	edge, err := session.Engine.Connect(ctx.RequestCtx(), domain.Connection{
		Source:       req.Source,
		Target:       req.Target,
		SourceHandle: req.SourceHandle,
		TargetHandle: req.TargetHandle,
	})
	if err != nil {
		return httpError(err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(edgeResponse(edge))
}

type edgeChangePayload struct {
	Type domain.ChangeType `json:"type"`
	ID   string            `json:"id"`
}

func (c *CanvasController) ApplyEdgeChanges(ctx fiber.Ctx) error {
	session, err := c.sessions.GetSession(ctx.RequestCtx(), ctx.Params("canvasID"))
	if err != nil {
		return httpError(err)
	}

	var payload []edgeChangePayload
	if err := ctx.Bind().Body(&payload); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	changes := make([]domain.EdgeChange, 0, len(payload))
	for _, p := range payload {
		changes = append(changes, domain.EdgeChange{Type: p.Type, EdgeID: p.ID})
	}

	if err := session.Engine.ApplyEdgeChanges(ctx.RequestCtx(), changes); err != nil {
		return httpError(err)
	}

	return ctx.SendStatus(fiber.StatusNoContent)
}

func (c *CanvasController) DeleteEdge(ctx fiber.Ctx) error {
	session, err := c.sessions.GetSession(ctx.RequestCtx(), ctx.Params("canvasID"))
	if err != nil {
		return httpError(err)
	}

	if err := session.Engine.DeleteEdge(ctx.RequestCtx(), ctx.Params("edgeID")); err != nil {
		return httpError(err)
	}

	return ctx.SendStatus(fiber.StatusNoContent)
}

type askAnswerPairRequest struct {
	FromNodeID string `json:"fromNodeId"`
	ToNodeID   string `json:"toNodeId"`
}

func (c *CanvasController) EnableAskAnswer(ctx fiber.Ctx) error {
	session, err := c.sessions.GetSession(ctx.RequestCtx(), ctx.Params("canvasID"))
	if err != nil {
		return httpError(err)
	}

	var req askAnswerPairRequest
	if err := ctx.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if err := session.AskAnswer.Enable(ctx.RequestCtx(), req.FromNodeID, req.ToNodeID, ctx.Params("edgeID")); err != nil {
		return httpError(err)
	}

	return ctx.SendStatus(fiber.StatusNoContent)
}

func (c *CanvasController) DisableAskAnswer(ctx fiber.Ctx) error {
	session, err := c.sessions.GetSession(ctx.RequestCtx(), ctx.Params("canvasID"))
	if err != nil {
		return httpError(err)
	}

	var req askAnswerPairRequest
	if err := ctx.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if err := session.AskAnswer.Disable(ctx.RequestCtx(), req.FromNodeID, req.ToNodeID, ctx.Params("edgeID")); err != nil {
		return httpError(err)
	}

	return ctx.SendStatus(fiber.StatusNoContent)
}

type sendQueryRequest struct {
	FromNodeID string `json:"fromNodeId"`
	ToNodeID   string `json:"toNodeId"`
	Query      string `json:"query"`
}

func (c *CanvasController) SendQuery(ctx fiber.Ctx) error {
	session, err := c.sessions.GetSession(ctx.RequestCtx(), ctx.Params("canvasID"))
	if err != nil {
		return httpError(err)
	}

	var req sendQueryRequest
	if err := ctx.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	last, err := session.AskAnswer.SendQuery(ctx.RequestCtx(), req.FromNodeID, req.ToNodeID, ctx.Params("edgeID"), req.Query)
	if err != nil {
		return httpError(err)
	}

	return ctx.JSON(last)
}

func (c *CanvasController) ClearAnswer(ctx fiber.Ctx) error {
	session, err := c.sessions.GetSession(ctx.RequestCtx(), ctx.Params("canvasID"))
	if err != nil {
		return httpError(err)
	}

	if err := session.AskAnswer.ClearAnswer(ctx.RequestCtx(), ctx.Params("edgeID")); err != nil {
		return httpError(err)
	}

	return ctx.SendStatus(fiber.StatusNoContent)
}

func (c *CanvasController) AskAnswerState(ctx fiber.Ctx) error {
	session, err := c.sessions.GetSession(ctx.RequestCtx(), ctx.Params("canvasID"))
	if err != nil {
		return httpError(err)
	}

	state, err := session.AskAnswer.State(ctx.Params("edgeID"))
	if err != nil {
		return httpError(err)
	}

	return ctx.JSON(state)
}

// Breakers returns current circuit breaker states for the banner UI.
func (c *CanvasController) Breakers(ctx fiber.Ctx) error {
	return ctx.JSON(fiber.Map{
		domain.BreakerKeyCanvasNodes: c.breakers.Get(domain.BreakerKeyCanvasNodes).State(),
		domain.BreakerKeyCanvasEdges: c.breakers.Get(domain.BreakerKeyCanvasEdges).State(),
	})
}

// ResetBreakers is the manual recovery action after a breaker opened.
func (c *CanvasController) ResetBreakers(ctx fiber.Ctx) error {
	c.breakers.ResetAll()
	return ctx.SendStatus(fiber.StatusNoContent)
}
