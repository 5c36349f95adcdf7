package controller

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"study-pipeline-be/internal/dto"
	"study-pipeline-be/internal/pkg/logger"
	"study-pipeline-be/internal/pkg/serverutils"
	"study-pipeline-be/internal/service"
	"study-pipeline-be/pkg/apperror"
	"study-pipeline-be/pkg/extraction"
	"study-pipeline-be/pkg/relay"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/valyala/fasthttp"
)

const sessionModule = "SessionController"

type ISessionController interface {
	RegisterRoutes(r fiber.Router)
	Create(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	AddSources(ctx *fiber.Ctx) error
	OptimizeSource(ctx *fiber.Ctx) error
	Generate(ctx *fiber.Ctx) error
	GradeAnswers(ctx *fiber.Ctx) error
	StartNoteJob(ctx *fiber.Ctx) error
	ChatStream(ctx *fiber.Ctx) error
	ChatSocket(ctx *fiber.Ctx) error
}

type sessionController struct {
	service    service.IPipelineService
	jobService service.IJobService
	logger     logger.ILogger
}

func NewSessionController(service service.IPipelineService, jobService service.IJobService, logger logger.ILogger) ISessionController {
	return &sessionController{service: service, jobService: jobService, logger: logger}
}

func (c *sessionController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/sessions/v1")
	h.Post("", c.Create)
	h.Get(":id", c.Show)
	h.Post(":id/sources", c.AddSources)
	h.Post(":id/sources/:sourceId/optimize", c.OptimizeSource)
	h.Post(":id/generate", c.Generate)
	h.Post(":id/grade", c.GradeAnswers)
	h.Post(":id/jobs/notes", c.StartNoteJob)
	h.Post(":id/chat/stream", c.ChatStream)
	h.Get(":id/chat/ws", c.ChatSocket)
}

func (c *sessionController) Create(ctx *fiber.Ctx) error {
	res, err := c.service.CreateSession(ctx.UserContext())
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success create session", res))
}

func (c *sessionController) Show(ctx *fiber.Ctx) error {
	res, err := c.service.GetSession(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success show session", res))
}

// AddSources accepts multipart uploads ("files" parts plus optional "links"
// values) or a JSON body of documents and links.
func (c *sessionController) AddSources(ctx *fiber.Ctx) error {
	var (
		files []extraction.File
		links []extraction.Link
		err   error
	)
	if strings.HasPrefix(string(ctx.Request().Header.ContentType()), fiber.MIMEMultipartForm) {
		files, links, err = readMultipart(ctx)
	} else {
		files, links, err = readDocuments(ctx)
	}
	if err != nil {
		return err
	}

	res, err := c.service.AddSources(ctx.UserContext(), ctx.Params("id"), files, links)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success add sources", res))
}

func readMultipart(ctx *fiber.Ctx) ([]extraction.File, []extraction.Link, error) {
	form, err := ctx.MultipartForm()
	if err != nil {
		return nil, nil, apperror.Validation("invalid multipart form: %v", err)
	}

	files := make([]extraction.File, 0, len(form.File["files"]))
	for _, fh := range form.File["files"] {
		f, err := fh.Open()
		if err != nil {
			return nil, nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("read upload %s: %w", fh.Filename, err)
		}
		files = append(files, extraction.File{
			Name:     fh.Filename,
			MimeType: fh.Header.Get(fiber.HeaderContentType),
			Size:     fh.Size,
			Data:     data,
		})
	}

	var links []extraction.Link
	for _, u := range form.Value["links"] {
		if u = strings.TrimSpace(u); u != "" {
			links = append(links, extraction.Link{URL: u})
		}
	}
	return files, links, nil
}

func readDocuments(ctx *fiber.Ctx) ([]extraction.File, []extraction.Link, error) {
	var req dto.AddSourcesRequest
	if err := ctx.BodyParser(&req); err != nil {
		return nil, nil, err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return nil, nil, err
	}

	files := make([]extraction.File, 0, len(req.Documents))
	for _, d := range req.Documents {
		files = append(files, extraction.File{
			Name:          d.Name,
			MimeType:      d.MimeType,
			Size:          d.Size,
			ExtractedText: d.Text,
		})
	}
	links := make([]extraction.Link, 0, len(req.Links))
	for _, l := range req.Links {
		links = append(links, extraction.Link{URL: l.Url, Title: l.Title})
	}
	return files, links, nil
}

func (c *sessionController) OptimizeSource(ctx *fiber.Ctx) error {
	var req dto.OptimizeSourceRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return err
		}
	}

	res, err := c.service.OptimizeSource(ctx.UserContext(), ctx.Params("id"), ctx.Params("sourceId"), req.ForceReoptimize)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success optimize source", res))
}

func (c *sessionController) Generate(ctx *fiber.Ctx) error {
	var req dto.GenerateRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Generate(ctx.UserContext(), ctx.Params("id"), &req)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success generate output", res))
}

func (c *sessionController) GradeAnswers(ctx *fiber.Ctx) error {
	var req dto.GradeAnswersRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.GradeAnswers(ctx.UserContext(), ctx.Params("id"), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success grade answers", res))
}

func (c *sessionController) StartNoteJob(ctx *fiber.Ctx) error {
	var req dto.StartNoteJobRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.jobService.StartNoteJob(ctx.UserContext(), ctx.Params("id"), &req)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Success queue note job", res))
}

// ChatStream relays the answer as server-sent events. A failed flush means the
// client left, which cancels the provider stream.
func (c *sessionController) ChatStream(ctx *fiber.Ctx) error {
	var req dto.ChatStreamRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	sessionId := ctx.Params("id")
	parent := context.WithoutCancel(ctx.UserContext())

	ctx.Set(fiber.HeaderContentType, "text/event-stream")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set(fiber.HeaderConnection, "keep-alive")
	ctx.Set("X-Accel-Buffering", "no")

	ctx.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		streamCtx, cancel := context.WithCancel(parent)
		defer cancel()

		for e := range c.service.ChatStream(streamCtx, sessionId, &req) {
			if err := writeEvent(w, e); err != nil {
				c.logger.Info(sessionModule, "Chat stream client disconnected", map[string]interface{}{
					"session_id": sessionId,
					"error":      err.Error(),
				})
				return
			}
		}
	}))
	return nil
}

func writeEvent(w *bufio.Writer, e relay.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data); err != nil {
		return err
	}
	return w.Flush()
}

// ChatSocket is the websocket variant of ChatStream. Each text frame is a chat
// request; its events are written back as JSON frames. Closing the socket
// cancels the answer in flight.
func (c *sessionController) ChatSocket(ctx *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(ctx) {
		return fiber.ErrUpgradeRequired
	}
	sessionId := ctx.Params("id")
	parent := context.WithoutCancel(ctx.UserContext())

	return websocket.New(func(conn *websocket.Conn) {
		c.logger.Info(sessionModule, "Chat socket opened", map[string]interface{}{"session_id": sessionId})
		defer c.logger.Info(sessionModule, "Chat socket closed", map[string]interface{}{"session_id": sessionId})

		for {
			var req dto.ChatStreamRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if err := serverutils.ValidateRequest(req); err != nil {
				if conn.WriteJSON(relay.ErrorEvent(err)) != nil {
					return
				}
				continue
			}
			if !c.relaySocket(parent, conn, sessionId, &req) {
				return
			}
		}
	})(ctx)
}

// relaySocket streams one answer and reports whether the socket is still usable.
func (c *sessionController) relaySocket(parent context.Context, conn *websocket.Conn, sessionId string, req *dto.ChatStreamRequest) bool {
	streamCtx, cancel := context.WithCancel(parent)
	defer cancel()

	for e := range c.service.ChatStream(streamCtx, sessionId, req) {
		if err := conn.WriteJSON(e); err != nil {
			return false
		}
	}
	return true
}
