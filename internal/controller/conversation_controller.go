package controller

import (
	"bufio"
	"context"
	"encoding/json"
	"strconv"

	"ai-chat-be/internal/constant"
	"ai-chat-be/internal/dto"
	"ai-chat-be/internal/pkg/logger"
	"ai-chat-be/internal/pkg/serverutils"
	"ai-chat-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

type IConversationController interface {
	RegisterRoutes(r fiber.Router)
	List(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	SendMessage(ctx *fiber.Ctx) error
	EditMessage(ctx *fiber.Ctx) error
	Rename(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
}

type conversationController struct {
	chatService service.IChatService
	logger      logger.ILogger
}

func NewConversationController(chatService service.IChatService, log logger.ILogger) IConversationController {
	return &conversationController{
		chatService: chatService,
		logger:      log,
	}
}

func (c *conversationController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/conversations")
	h.Use(serverutils.JwtMiddleware)
	h.Get("", c.List)
	h.Get(":id", c.Show)
	h.Post(":id/messages", c.SendMessage)
	h.Put(":id/messages/:index", c.EditMessage)
	h.Put(":id", c.Rename)
	h.Delete(":id", c.Delete)
}

func currentUserId(ctx *fiber.Ctx) uuid.UUID {
	userIdStr := ctx.Locals("user_id").(string)
	userId, _ := uuid.Parse(userIdStr)
	return userId
}

// conversationIdParam parses the :id path segment. An unparseable id is
// treated the same as a missing conversation.
func conversationIdParam(ctx *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return uuid.Nil, service.ErrConversationNotFound
	}
	return id, nil
}

func (c *conversationController) List(ctx *fiber.Ctx) error {
	userId := currentUserId(ctx)

	res, err := c.chatService.List(ctx.Context(), userId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success list conversations", res))
}

func (c *conversationController) Show(ctx *fiber.Ctx) error {
	userId := currentUserId(ctx)
	id, err := conversationIdParam(ctx)
	if err != nil {
		return err
	}

	res, err := c.chatService.Show(ctx.Context(), userId, id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success show conversation", res))
}

func (c *conversationController) SendMessage(ctx *fiber.Ctx) error {
	userId := currentUserId(ctx)

	// "new" starts a conversation; the assigned id comes back in the
	// response header before the first token.
	var conversationId uuid.UUID
	if idParam := ctx.Params("id"); idParam != "new" {
		var err error
		conversationId, err = conversationIdParam(ctx)
		if err != nil {
			return err
		}
	}

	var req dto.SendMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	handle, err := c.chatService.SendMessage(ctx.Context(), userId, conversationId, &req)
	if err != nil {
		return err
	}

	return c.streamResponse(ctx, handle)
}

func (c *conversationController) EditMessage(ctx *fiber.Ctx) error {
	userId := currentUserId(ctx)
	conversationId, err := conversationIdParam(ctx)
	if err != nil {
		return err
	}

	index, err := strconv.Atoi(ctx.Params("index"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid message index")
	}

	var req dto.EditMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	handle, err := c.chatService.EditMessage(ctx.Context(), userId, conversationId, index, &req)
	if err != nil {
		return err
	}

	return c.streamResponse(ctx, handle)
}

// streamResponse writes the completion as SSE frames. The conversation id
// header is set before the body starts so a brand-new view can adopt it
// immediately. The request context dies with this handler, so the stream
// runs on a background context bounded by the service's stream timeout.
func (c *conversationController) streamResponse(ctx *fiber.Ctx, handle *service.StreamHandle) error {
	ctx.Set(fiber.HeaderContentType, "text/event-stream")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set(fiber.HeaderConnection, "keep-alive")
	ctx.Set(constant.ConversationIdHeader, handle.ConversationId.String())

	ctx.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		writeFrame := func(chunk dto.StreamChunk) {
			payload, err := json.Marshal(chunk)
			if err != nil {
				return
			}
			w.WriteString("data: ")
			w.Write(payload)
			w.WriteString("\n\n")
			w.Flush()
		}

		err := handle.Run(context.Background(), func(delta string) {
			writeFrame(dto.StreamChunk{Delta: delta})
		})
		if err != nil {
			c.logger.Error("ConversationController", "Stream run failed", map[string]interface{}{
				"conversation_id": handle.ConversationId,
				"error":           err.Error(),
			})
			writeFrame(dto.StreamChunk{Error: "The response could not be completed."})
		}

		w.WriteString("data: [DONE]\n\n")
		w.Flush()
	}))

	return nil
}

func (c *conversationController) Rename(ctx *fiber.Ctx) error {
	userId := currentUserId(ctx)
	id, err := conversationIdParam(ctx)
	if err != nil {
		return err
	}

	var req dto.RenameConversationRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.chatService.Rename(ctx.Context(), userId, id, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success rename conversation", res))
}

func (c *conversationController) Delete(ctx *fiber.Ctx) error {
	userId := currentUserId(ctx)
	id, err := conversationIdParam(ctx)
	if err != nil {
		return err
	}

	if err := c.chatService.Delete(ctx.Context(), userId, id); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete conversation", nil))
}
