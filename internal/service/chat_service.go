package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ai-chat-be/internal/config"
	"ai-chat-be/internal/constant"
	"ai-chat-be/internal/dto"
	"ai-chat-be/internal/entity"
	hubevents "ai-chat-be/internal/events"
	"ai-chat-be/internal/pkg/logger"
	memstore "ai-chat-be/internal/repository/memory"
	"ai-chat-be/internal/repository/specification"
	"ai-chat-be/internal/repository/unitofwork"
	"ai-chat-be/pkg/events"
	"ai-chat-be/pkg/listcache"
	"ai-chat-be/pkg/llm"
	"ai-chat-be/pkg/memory"
	pkgNats "ai-chat-be/pkg/nats"
	"ai-chat-be/pkg/reconcile"
	"ai-chat-be/pkg/store"

	"github.com/google/uuid"
)

type IChatService interface {
	List(ctx context.Context, userId uuid.UUID) ([]*dto.ConversationSummaryResponse, error)
	Show(ctx context.Context, userId uuid.UUID, id uuid.UUID) (*dto.ShowConversationResponse, error)
	// SendMessage appends a user turn and opens a completion stream. A Nil
	// conversationId starts a brand-new conversation; the assigned id is on
	// the returned handle before any token has streamed.
	SendMessage(ctx context.Context, userId uuid.UUID, conversationId uuid.UUID, req *dto.SendMessageRequest) (*StreamHandle, error)
	// EditMessage replaces the user turn at index, discards every later
	// turn, and regenerates from the truncated history.
	EditMessage(ctx context.Context, userId uuid.UUID, conversationId uuid.UUID, index int, req *dto.EditMessageRequest) (*StreamHandle, error)
	Rename(ctx context.Context, userId uuid.UUID, id uuid.UUID, req *dto.RenameConversationRequest) (*dto.RenameConversationResponse, error)
	Delete(ctx context.Context, userId uuid.UUID, id uuid.UUID) error
}

// StreamHandle is an accepted send/edit whose completion has not run yet.
// The controller calls Run from inside the response stream writer.
type StreamHandle struct {
	ConversationId uuid.UUID
	// Run drives the completion: deltas go to onDelta as they arrive and
	// the final sequence is committed and persisted before Run returns.
	Run func(ctx context.Context, onDelta func(string)) error
}

type chatService struct {
	uowFactory     unitofwork.RepositoryFactory
	provider       llm.LLMProvider
	memoryClient   *memory.Client
	views          *memstore.ViewStore
	listCache      *listcache.Cache
	hub            *hubevents.Hub
	eventPublisher *pkgNats.Publisher
	logger         logger.ILogger
	cfg            *config.Config
}

func NewChatService(
	uowFactory unitofwork.RepositoryFactory,
	provider llm.LLMProvider,
	memoryClient *memory.Client,
	views *memstore.ViewStore,
	listCache *listcache.Cache,
	hub *hubevents.Hub,
	eventPublisher *pkgNats.Publisher,
	log logger.ILogger,
	cfg *config.Config,
) IChatService {
	return &chatService{
		uowFactory:     uowFactory,
		provider:       provider,
		memoryClient:   memoryClient,
		views:          views,
		listCache:      listCache,
		hub:            hub,
		eventPublisher: eventPublisher,
		logger:         log,
		cfg:            cfg,
	}
}

func (c *chatService) List(ctx context.Context, userId uuid.UUID) ([]*dto.ConversationSummaryResponse, error) {
	summaries, err := c.listCache.Get(ctx, userId)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.ConversationSummaryResponse, len(summaries))
	for i, s := range summaries {
		res[i] = &dto.ConversationSummaryResponse{Id: s.Id, Title: s.Title}
	}
	return res, nil
}

func (c *chatService) Show(ctx context.Context, userId uuid.UUID, id uuid.UUID) (*dto.ShowConversationResponse, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)

	conversation, err := uow.ConversationRepository().FindOne(ctx,
		specification.ByID{ID: id},
		specification.OwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}

	remote, err := c.loadTurns(ctx, uow, id)
	if err != nil {
		return nil, err
	}

	turns := remote
	if view, found := c.views.Get(userId, id); found {
		// A live view may hold optimistic state ahead of the store; the
		// reconciler's locality rule decides which sequence wins.
		view.Reconciler.ReconcileWithRemote(remote)
		turns = view.Reconciler.Snapshot()
	}

	return &dto.ShowConversationResponse{
		Id:        conversation.Id,
		Title:     conversation.Title,
		Turns:     turnsToResponses(turns),
		CreatedAt: conversation.CreatedAt,
		UpdatedAt: conversation.UpdatedAt,
	}, nil
}

func (c *chatService) SendMessage(ctx context.Context, userId uuid.UUID, conversationId uuid.UUID, req *dto.SendMessageRequest) (*StreamHandle, error) {
	content := entity.PlainText(req.Content)
	attachments := attachmentsFromPayload(req.Attachments)

	var view *store.ActiveView
	isNew := conversationId == uuid.Nil

	if isNew {
		// The reconciler assigns the id inside AppendUserTurn, before the
		// conversation row exists anywhere else.
		transition := reconcile.NewTransitionController(c.views.SettleDelay())
		transition.Navigate(uuid.Nil)
		view = &store.ActiveView{
			Reconciler: reconcile.NewReconciler(userId, uuid.Nil),
			Transition: transition,
		}
	} else {
		var err error
		view, err = c.resolveView(ctx, userId, conversationId)
		if err != nil {
			return nil, err
		}
	}

	ticket, err := view.Reconciler.AppendUserTurn(content, attachments)
	if err != nil {
		return nil, err
	}

	if isNew {
		conversationId = ticket.ConversationId
		view.Transition.BeginTransition(conversationId)
		c.views.Put(userId, conversationId, view)
	}

	// Persist the conversation (if new) and the user turn before streaming;
	// a failed completion must not lose the user's words.
	snapshot := view.Reconciler.Snapshot()
	userTurn := snapshot[len(snapshot)-2]
	if err := c.persistUserTurn(ctx, userId, conversationId, isNew, &userTurn, noTruncate); err != nil {
		view.Reconciler.FailStream(ticket.RequestId)
		return nil, err
	}

	if isNew {
		c.listCache.Invalidate(userId)
		c.publishStructural(hubevents.ConversationCreated, userId, conversationId, constant.DefaultConversationTitle)
	}

	return c.newStreamHandle(view, ticket, userId, conversationId, isNew, req.Content), nil
}

func (c *chatService) EditMessage(ctx context.Context, userId uuid.UUID, conversationId uuid.UUID, index int, req *dto.EditMessageRequest) (*StreamHandle, error) {
	view, err := c.resolveView(ctx, userId, conversationId)
	if err != nil {
		return nil, err
	}

	ticket, err := view.Reconciler.EditUserTurn(index, entity.PlainText(req.Content))
	if err != nil {
		return nil, err
	}

	// Truncation is driven by the stored position of the edited turn, which
	// can sit past its slice index when earlier persistence left a gap.
	snapshot := view.Reconciler.Snapshot()
	edited := snapshot[index]
	if err := c.persistUserTurn(ctx, userId, conversationId, false, &edited, edited.Position); err != nil {
		view.Reconciler.FailStream(ticket.RequestId)
		return nil, err
	}

	return c.newStreamHandle(view, ticket, userId, conversationId, false, req.Content), nil
}

func (c *chatService) Rename(ctx context.Context, userId uuid.UUID, id uuid.UUID, req *dto.RenameConversationRequest) (*dto.RenameConversationResponse, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)

	conversation, err := uow.ConversationRepository().FindOne(ctx,
		specification.ByID{ID: id},
		specification.OwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}

	err = c.listCache.Optimistic(ctx, userId, listcache.Rename(id, req.Title), func(ctx context.Context) error {
		now := time.Now()
		conversation.Title = req.Title
		conversation.UpdatedAt = &now
		return uow.ConversationRepository().Update(ctx, conversation)
	})
	if err != nil {
		return nil, err
	}

	c.publishStructural(hubevents.ConversationRenamed, userId, id, req.Title)

	return &dto.RenameConversationResponse{Id: id, Title: req.Title}, nil
}

func (c *chatService) Delete(ctx context.Context, userId uuid.UUID, id uuid.UUID) error {
	uow := c.uowFactory.NewUnitOfWork(ctx)

	conversation, err := uow.ConversationRepository().FindOne(ctx,
		specification.ByID{ID: id},
		specification.OwnedBy{UserID: userId},
	)
	if err != nil {
		return err
	}
	if conversation == nil {
		return ErrConversationNotFound
	}

	err = c.listCache.Optimistic(ctx, userId, listcache.Remove(id), func(ctx context.Context) error {
		if err := uow.Begin(ctx); err != nil {
			return err
		}
		if err := uow.TurnRepository().DeleteByConversationId(ctx, id); err != nil {
			uow.Rollback()
			return err
		}
		if err := uow.ConversationRepository().Delete(ctx, id); err != nil {
			uow.Rollback()
			return err
		}
		return uow.Commit()
	})
	if err != nil {
		return err
	}

	c.views.Drop(userId, id)
	c.publishStructural(hubevents.ConversationDeleted, userId, id, "")
	return nil
}

// --- internals ---

// resolveView returns the live view for an existing conversation, seeding
// a fresh one from the persisted turns. Missing or foreign conversations
// surface as not-found.
func (c *chatService) resolveView(ctx context.Context, userId, conversationId uuid.UUID) (*store.ActiveView, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)

	conversation, err := uow.ConversationRepository().FindOne(ctx,
		specification.ByID{ID: conversationId},
		specification.OwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}

	view, created := c.views.GetOrCreate(userId, conversationId)
	if created {
		remote, err := c.loadTurns(ctx, uow, conversationId)
		if err != nil {
			return nil, err
		}
		view.Reconciler.ReconcileWithRemote(remote)
	}
	return view, nil
}

func (c *chatService) loadTurns(ctx context.Context, uow unitofwork.UnitOfWork, conversationId uuid.UUID) ([]entity.Turn, error) {
	rows, err := uow.TurnRepository().FindAll(ctx,
		specification.ByConversationID{ConversationID: conversationId},
		specification.OrderBy{Field: "position"},
	)
	if err != nil {
		return nil, err
	}
	turns := make([]entity.Turn, len(rows))
	for i, row := range rows {
		turns[i] = *row
	}
	return turns, nil
}

// noTruncate marks a plain append; any value >= 0 is the stored position
// of an edited turn whose persisted tail must go.
const noTruncate = -1

// persistUserTurn writes the accepted user turn. For an edit the stored
// tail past the edited turn's position is dropped in the same transaction,
// so a crash can never leave the store with turns the view no longer has.
// The conversation's updated_at rides along so the sidebar orders by
// message activity, not only renames.
func (c *chatService) persistUserTurn(ctx context.Context, userId, conversationId uuid.UUID, isNew bool, turn *entity.Turn, editPosition int) error {
	uow := c.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return err
	}

	if isNew {
		now := time.Now()
		err := uow.ConversationRepository().Create(ctx, &entity.Conversation{
			Id:        conversationId,
			UserId:    userId,
			Title:     constant.DefaultConversationTitle,
			CreatedAt: now,
		})
		if err != nil {
			uow.Rollback()
			return err
		}
	}

	if editPosition >= 0 {
		if err := uow.TurnRepository().DeleteAfterPosition(ctx, conversationId, editPosition); err != nil {
			uow.Rollback()
			return err
		}
		if err := uow.TurnRepository().Update(ctx, turn); err != nil {
			uow.Rollback()
			return err
		}
	} else {
		if err := uow.TurnRepository().Create(ctx, turn); err != nil {
			uow.Rollback()
			return err
		}
	}

	if !isNew {
		if err := uow.ConversationRepository().Touch(ctx, conversationId, time.Now()); err != nil {
			uow.Rollback()
			return err
		}
	}

	return uow.Commit()
}

// newStreamHandle wires the completion run for an accepted ticket.
func (c *chatService) newStreamHandle(view *store.ActiveView, ticket *reconcile.Ticket, userId, conversationId uuid.UUID, isNew bool, userText string) *StreamHandle {
	return &StreamHandle{
		ConversationId: conversationId,
		Run: func(ctx context.Context, onDelta func(string)) error {
			if c.cfg.Ai.StreamTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, c.cfg.Ai.StreamTimeout)
				defer cancel()
			}

			systemPrompt := c.retrieveSystemPrompt(ctx, userId, userText)
			history := BuildModelHistory(systemPrompt, ticket.History, c.cfg.Ai.HistoryBudget)

			finalText, err := c.provider.ChatStream(ctx, history, func(delta string) {
				if foldErr := view.Reconciler.FoldStreamChunk(ticket.RequestId, delta); foldErr != nil {
					return
				}
				onDelta(delta)
			})
			if err != nil {
				view.Reconciler.FailStream(ticket.RequestId)
				c.logger.Error("ChatService", "Completion stream failed", map[string]interface{}{
					"conversation_id": conversationId,
					"request_id":      ticket.RequestId,
					"error":           err.Error(),
				})
				return fmt.Errorf("%w: %v", ErrStreamUnavailable, err)
			}

			turns, err := view.Reconciler.CommitAssistantTurn(ticket.RequestId, finalText)
			if err != nil {
				return err
			}

			// The reply already streamed to the client; persistence trouble
			// is logged, never surfaced as a failed request.
			assistant := turns[len(turns)-1]
			if err := c.persistAssistantTurn(ctx, &assistant); err != nil {
				c.logger.Error("ChatService", "Failed to persist assistant turn", map[string]interface{}{
					"conversation_id": conversationId,
					"turn_id":         assistant.Id,
					"error":           err.Error(),
				})
			}

			c.rememberExchange(userId, userText, finalText)

			if isNew {
				go c.generateTitle(userId, conversationId, userText)
			}
			return nil
		},
	}
}

func (c *chatService) persistAssistantTurn(ctx context.Context, turn *entity.Turn) error {
	uow := c.uowFactory.NewUnitOfWork(ctx)
	return uow.TurnRepository().Create(ctx, turn)
}

// retrieveSystemPrompt asks the memory service for user context. Failures
// and the no-key case degrade to the plain default prompt.
func (c *chatService) retrieveSystemPrompt(ctx context.Context, userId uuid.UUID, query string) string {
	if c.memoryClient == nil || !c.memoryClient.Enabled() {
		return constant.DefaultSystemPrompt
	}

	memories, err := c.memoryClient.Search(ctx, userId.String(), query, 10)
	if err != nil {
		c.logger.Warn("ChatService", "Memory retrieval failed, using default prompt", map[string]interface{}{
			"user_id": userId,
			"error":   err.Error(),
		})
		return constant.DefaultSystemPrompt
	}

	texts := make([]string, 0, len(memories))
	for _, m := range memories {
		texts = append(texts, m.Text)
	}
	return ComposeSystemPrompt(texts)
}

// rememberExchange hands the finished exchange to the memory service for
// fact extraction. Fire and forget.
func (c *chatService) rememberExchange(userId uuid.UUID, userText, assistantText string) {
	if c.memoryClient == nil || !c.memoryClient.Enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := c.memoryClient.Add(ctx, userId.String(), userText, assistantText); err != nil {
			c.logger.Warn("ChatService", "Memory store failed", map[string]interface{}{
				"user_id": userId,
				"error":   err.Error(),
			})
		}
	}()
}

// generateTitle names a brand-new conversation from its first user message
// using the cheap title model. Runs in the background after the first
// response; failures keep the default title.
func (c *chatService) generateTitle(userId, conversationId uuid.UUID, userText string) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	prompt := fmt.Sprintf(constant.TitlePromptTemplate, userText)
	title, err := c.provider.Generate(ctx, prompt, llm.WithModel(c.cfg.Ai.TitleModel), llm.WithTemperature(0.5))
	if err != nil {
		c.logger.Warn("ChatService", "Title generation failed", map[string]interface{}{
			"conversation_id": conversationId,
			"error":           err.Error(),
		})
		return
	}

	title = sanitizeTitle(title, c.cfg.Chat.MaxTitleLength)
	if title == "" {
		return
	}

	uow := c.uowFactory.NewUnitOfWork(ctx)
	conversation, err := uow.ConversationRepository().FindOne(ctx, specification.ByID{ID: conversationId})
	if err != nil || conversation == nil {
		return
	}
	now := time.Now()
	conversation.Title = title
	conversation.UpdatedAt = &now
	if err := uow.ConversationRepository().Update(ctx, conversation); err != nil {
		c.logger.Warn("ChatService", "Failed to store generated title", map[string]interface{}{
			"conversation_id": conversationId,
			"error":           err.Error(),
		})
		return
	}

	c.listCache.MutateLocal(userId, listcache.Rename(conversationId, title))
	c.publishStructural(hubevents.FirstResponseDone, userId, conversationId, title)
}

// publishStructural emits the event on the in-process hub and mirrors it
// to NATS when a publisher is wired. Both paths are advisory.
func (c *chatService) publishStructural(eventType hubevents.EventType, userId, conversationId uuid.UUID, title string) {
	c.hub.Publish(hubevents.StructuralEvent{
		Type:           eventType,
		UserId:         userId,
		ConversationId: conversationId,
		Title:          title,
		OccurredAt:     time.Now(),
	})

	if c.eventPublisher != nil {
		evt := events.BaseEvent{
			Type: string(eventType),
			Data: map[string]interface{}{
				"user_id":         userId,
				"conversation_id": conversationId,
				"title":           title,
			},
			OccurredAt: time.Now(),
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.eventPublisher.Publish(ctx, evt); err != nil {
			c.logger.Warn("ChatService", "Failed to mirror event to NATS", map[string]interface{}{
				"type":  string(eventType),
				"error": err.Error(),
			})
		}
	}
}

func attachmentsFromPayload(payloads []dto.AttachmentPayload) []entity.Attachment {
	if len(payloads) == 0 {
		return nil
	}
	out := make([]entity.Attachment, len(payloads))
	for i, p := range payloads {
		out[i] = entity.Attachment{
			Url:         p.Url,
			Name:        p.Name,
			Kind:        p.Kind,
			TextContent: p.TextContent,
		}
	}
	return out
}

func turnsToResponses(turns []entity.Turn) []dto.TurnResponse {
	out := make([]dto.TurnResponse, len(turns))
	for i, t := range turns {
		out[i] = dto.TurnResponse{
			Id:        t.Id,
			Role:      t.Role,
			Content:   contentToResponse(t.Content),
			CreatedAt: t.CreatedAt,
		}
		for _, a := range t.Attachments {
			out[i].Attachments = append(out[i].Attachments, dto.AttachmentResponse{
				Url:  a.Url,
				Name: a.Name,
				Kind: a.Kind,
			})
		}
	}
	return out
}

func contentToResponse(content entity.Content) dto.ContentResponse {
	res := dto.ContentResponse{Kind: string(content.Kind)}
	if content.Kind == entity.ContentKindParts {
		for _, p := range content.Parts {
			res.Parts = append(res.Parts, dto.ContentPartResponse{
				Type:  string(p.Type),
				Text:  p.Text,
				Image: p.Image,
			})
		}
		return res
	}
	res.Text = content.Text
	return res
}

// sanitizeTitle strips the quotes models like to wrap titles in and clamps
// the length at a rune boundary.
func sanitizeTitle(title string, maxLen int) string {
	title = strings.Trim(strings.TrimSpace(title), `"'`)
	if maxLen > 0 {
		runes := []rune(title)
		if len(runes) > maxLen {
			title = string(runes[:maxLen])
		}
	}
	return strings.TrimSpace(title)
}
