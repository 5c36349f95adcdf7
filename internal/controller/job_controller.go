package controller

import (
	"context"

	"study-pipeline-be/internal/pkg/logger"
	"study-pipeline-be/internal/pkg/serverutils"
	"study-pipeline-be/internal/service"
	internalWS "study-pipeline-be/internal/websocket"
	"study-pipeline-be/pkg/store"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type IJobController interface {
	RegisterRoutes(r fiber.Router)
	Show(ctx *fiber.Ctx) error
	Cancel(ctx *fiber.Ctx) error
	Watch(ctx *fiber.Ctx) error
}

type jobController struct {
	service service.IJobService
	hub     *internalWS.Hub
	logger  logger.ILogger
}

func NewJobController(service service.IJobService, hub *internalWS.Hub, logger logger.ILogger) IJobController {
	return &jobController{service: service, hub: hub, logger: logger}
}

func (c *jobController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/jobs/v1")
	h.Get(":id", c.Show)
	h.Post(":id/cancel", c.Cancel)
	h.Get(":id/ws", c.Watch)
}

func (c *jobController) Show(ctx *fiber.Ctx) error {
	res, err := c.service.GetJobStatus(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get job status", res))
}

func (c *jobController) Cancel(ctx *fiber.Ctx) error {
	res, err := c.service.CancelJob(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success cancel job", res))
}

// Watch pushes job snapshots over a websocket until the job finishes.
func (c *jobController) Watch(ctx *fiber.Ctx) error {
	jobId := ctx.Params("id")
	// Unknown jobs get a regular 404 before the upgrade
	if _, err := c.service.GetJobStatus(ctx.UserContext(), jobId); err != nil {
		return err
	}
	if !websocket.IsWebSocketUpgrade(ctx) {
		return fiber.ErrUpgradeRequired
	}

	return websocket.New(func(conn *websocket.Conn) {
		c.logger.Info("JobController", "Job watcher connected", map[string]interface{}{"job_id": jobId})
		// The hub reloads the job while subscribing, so changes made during
		// the handshake are not missed
		err := internalWS.ServeWs(c.hub, conn, jobId, func(id string) (*store.GenerationJob, error) {
			return c.service.GetJobStatus(context.Background(), id)
		})
		if err != nil {
			c.logger.Warn("JobController", "Job watcher failed", map[string]interface{}{
				"job_id": jobId,
				"error":  err.Error(),
			})
		}
	})(ctx)
}
