package controller

import (
	"study-pipeline-be/internal/dto"
	"study-pipeline-be/internal/pkg/logger"
	"study-pipeline-be/internal/pkg/serverutils"
	"study-pipeline-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IDebugController interface {
	RegisterRoutes(r fiber.Router)
	ListSessions(ctx *fiber.Ctx) error
	Logs(ctx *fiber.Ctx) error
}

type debugController struct {
	service service.IPipelineService
	logger  logger.ILogger
}

func NewDebugController(service service.IPipelineService, logger logger.ILogger) IDebugController {
	return &debugController{service: service, logger: logger}
}

func (c *debugController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/debug/v1")
	h.Get("sessions", c.ListSessions)
	h.Get("logs", c.Logs)
}

func (c *debugController) ListSessions(ctx *fiber.Ctx) error {
	res, err := c.service.ListSessions(ctx.UserContext())
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success list sessions", res))
}

// Logs reads entries back from the rotated log file, newest first.
func (c *debugController) Logs(ctx *fiber.Ctx) error {
	var query dto.LogsQuery
	if err := ctx.QueryParser(&query); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(query); err != nil {
		return err
	}

	if query.Limit == 0 {
		query.Limit = 100
	}

	res, err := c.logger.GetLogs(logger.LogFilter{
		Level:  query.Level,
		Module: query.Module,
		Limit:  query.Limit,
		Offset: query.Offset,
	})
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get logs", res))
}
