package serverutils

import (
	"errors"

	"study-pipeline-be/internal/pkg/logger"
	"study-pipeline-be/pkg/apperror"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware turns errors returned by handlers into the JSON
// envelope. apperror categories decide the status; fiber errors keep theirs.
func ErrorHandlerMiddleware(log logger.ILogger) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}
		return WriteError(ctx, log, err)
	}
}

// WriteError writes err as an error envelope.
func WriteError(ctx *fiber.Ctx, log logger.ILogger, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		errorType := string(apperror.CodeInternal)
		if fiberErr.Code < 500 {
			errorType = string(apperror.CodeValidation)
		}
		if fiberErr.Code == fiber.StatusNotFound {
			errorType = string(apperror.CodeNotFound)
		}
		return ctx.Status(fiberErr.Code).JSON(TypedErrorResponse(fiberErr.Code, errorType, fiberErr.Message))
	}

	code := apperror.CodeOf(err)
	status := apperror.HTTPStatus(code)
	message := apperror.MessageOf(err)

	if status >= 500 {
		log.Error("HTTP", "Request failed", map[string]interface{}{
			"method": ctx.Method(),
			"path":   ctx.Path(),
			"code":   string(code),
			"error":  err.Error(),
		})
		if code == apperror.CodeInternal {
			message = "internal server error"
		}
	}

	return ctx.Status(status).JSON(TypedErrorResponse(status, string(code), message))
}
