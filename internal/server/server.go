package server

import (
	"time"

	"github.com/driftboard/driftboard/internal/controllers"
	"github.com/driftboard/driftboard/internal/version"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type HTTPServerDependencies struct {
	CanvasController *controllers.CanvasController
}

func NewHTTPServer(deps HTTPServerDependencies) *fiber.App {
	router := fiber.New(fiber.Config{
		AppName: "driftboard",
	})

	router.Use(cors.New())
	router.Use(logger.New())

	router.Get("/health", func(c fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":    "healthy",
			"service":   "driftboard",
			"version":   version.GetVersion(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	canvases := router.Group("/canvases")
	canvases.Post("/", deps.CanvasController.CreateCanvas)
	canvases.Get("/", deps.CanvasController.ListCanvases)

	canvas := router.Group("/canvases/:canvasID")
	canvas.Get("/", deps.CanvasController.GetGraph)
	canvas.Patch("/", deps.CanvasController.UpdateCanvas)
	canvas.Delete("/", deps.CanvasController.DeleteCanvas)

	canvas.Post("/nodes", deps.CanvasController.AddNode)
	canvas.Post("/nodes/changes", deps.CanvasController.ApplyNodeChanges)
	canvas.Patch("/nodes/:nodeID/label", deps.CanvasController.CommitNodeLabel)
	canvas.Patch("/nodes/:nodeID/config", deps.CanvasController.CommitNodeConfig)
	canvas.Post("/nodes/:nodeID/duplicate", deps.CanvasController.DuplicateNode)
	canvas.Delete("/nodes/:nodeID", deps.CanvasController.DeleteNode)

	canvas.Post("/edges/connect", deps.CanvasController.Connect)
	canvas.Post("/edges/changes", deps.CanvasController.ApplyEdgeChanges)
	canvas.Delete("/edges/:edgeID", deps.CanvasController.DeleteEdge)

	askAnswer := canvas.Group("/edges/:edgeID/ask-answer")
	askAnswer.Post("/enable", deps.CanvasController.EnableAskAnswer)
	askAnswer.Post("/disable", deps.CanvasController.DisableAskAnswer)
	askAnswer.Post("/query", deps.CanvasController.SendQuery)
	askAnswer.Post("/clear", deps.CanvasController.ClearAnswer)
	askAnswer.Get("/state", deps.CanvasController.AskAnswerState)

	router.Get("/breakers", deps.CanvasController.Breakers)
	router.Post("/breakers/reset", deps.CanvasController.ResetBreakers)

	return router
}
