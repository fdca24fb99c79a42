package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"ai-chat-be/internal/config"
	"ai-chat-be/internal/constant"
	"ai-chat-be/internal/dto"
	"ai-chat-be/internal/entity"
	hubevents "ai-chat-be/internal/events"
	memstore "ai-chat-be/internal/repository/memory"
	"ai-chat-be/internal/repository/contract"
	"ai-chat-be/internal/repository/specification"
	"ai-chat-be/internal/repository/unitofwork"
	"ai-chat-be/pkg/listcache"
	"ai-chat-be/pkg/memory"
	"ai-chat-be/pkg/reconcile"
	llmmock "ai-chat-be/pkg/llm/mock"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(string, string, map[string]interface{}) {}
func (nopLogger) Info(string, string, map[string]interface{})  {}
func (nopLogger) Warn(string, string, map[string]interface{})  {}
func (nopLogger) Error(string, string, map[string]interface{}) {}
func (nopLogger) Sync() error                                  { return nil }

// fakeState is the shared backing store for the in-memory repositories.
type fakeState struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]*entity.Conversation
	turns         map[uuid.UUID][]*entity.Turn
}

func newFakeState() *fakeState {
	return &fakeState{
		conversations: make(map[uuid.UUID]*entity.Conversation),
		turns:         make(map[uuid.UUID][]*entity.Turn),
	}
}

type fakeFactory struct{ state *fakeState }

func (f *fakeFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &fakeUow{state: f.state}
}

type fakeUow struct{ state *fakeState }

func (u *fakeUow) Begin(ctx context.Context) error { return nil }
func (u *fakeUow) Commit() error                   { return nil }
func (u *fakeUow) Rollback() error                 { return nil }

func (u *fakeUow) ConversationRepository() contract.ConversationRepository {
	return &fakeConvRepo{state: u.state}
}

func (u *fakeUow) TurnRepository() contract.TurnRepository {
	return &fakeTurnRepo{state: u.state}
}

type fakeConvRepo struct{ state *fakeState }

func matchConversation(c *entity.Conversation, specs []specification.Specification) bool {
	for _, s := range specs {
		switch sp := s.(type) {
		case specification.ByID:
			if c.Id != sp.ID {
				return false
			}
		case specification.OwnedBy:
			if c.UserId != sp.UserID {
				return false
			}
		}
	}
	return true
}

func (r *fakeConvRepo) Create(_ context.Context, conversation *entity.Conversation) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	dup := *conversation
	r.state.conversations[conversation.Id] = &dup
	return nil
}

func (r *fakeConvRepo) Update(_ context.Context, conversation *entity.Conversation) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	dup := *conversation
	r.state.conversations[conversation.Id] = &dup
	return nil
}

func (r *fakeConvRepo) Touch(_ context.Context, id uuid.UUID, at time.Time) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	if c, ok := r.state.conversations[id]; ok {
		t := at
		c.UpdatedAt = &t
	}
	return nil
}

func (r *fakeConvRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	delete(r.state.conversations, id)
	return nil
}

func (r *fakeConvRepo) FindOne(_ context.Context, specs ...specification.Specification) (*entity.Conversation, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	for _, c := range r.state.conversations {
		if matchConversation(c, specs) {
			dup := *c
			return &dup, nil
		}
	}
	return nil, nil
}

func (r *fakeConvRepo) FindAll(_ context.Context, specs ...specification.Specification) ([]*entity.Conversation, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	var out []*entity.Conversation
	for _, c := range r.state.conversations {
		if matchConversation(c, specs) {
			dup := *c
			out = append(out, &dup)
		}
	}
	return out, nil
}

func (r *fakeConvRepo) ListSummaries(_ context.Context, userId uuid.UUID) ([]*entity.ConversationSummary, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	recency := func(c *entity.Conversation) time.Time {
		if c.UpdatedAt != nil {
			return *c.UpdatedAt
		}
		return c.CreatedAt
	}

	var owned []*entity.Conversation
	for _, c := range r.state.conversations {
		if c.UserId == userId {
			owned = append(owned, c)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		return recency(owned[i]).After(recency(owned[j]))
	})

	out := make([]*entity.ConversationSummary, len(owned))
	for i, c := range owned {
		out[i] = &entity.ConversationSummary{Id: c.Id, Title: c.Title}
	}
	return out, nil
}

func (r *fakeConvRepo) Count(_ context.Context, specs ...specification.Specification) (int64, error) {
	all, _ := r.FindAll(context.Background(), specs...)
	return int64(len(all)), nil
}

type fakeTurnRepo struct{ state *fakeState }

func (r *fakeTurnRepo) Create(_ context.Context, turn *entity.Turn) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	dup := *turn
	r.state.turns[turn.ConversationId] = append(r.state.turns[turn.ConversationId], &dup)
	return nil
}

func (r *fakeTurnRepo) CreateBatch(ctx context.Context, turns []*entity.Turn) error {
	for _, t := range turns {
		if err := r.Create(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeTurnRepo) Update(_ context.Context, turn *entity.Turn) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	for i, t := range r.state.turns[turn.ConversationId] {
		if t.Id == turn.Id {
			dup := *turn
			r.state.turns[turn.ConversationId][i] = &dup
			return nil
		}
	}
	return nil
}

func (r *fakeTurnRepo) DeleteAfterPosition(_ context.Context, conversationId uuid.UUID, position int) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	kept := r.state.turns[conversationId][:0]
	for _, t := range r.state.turns[conversationId] {
		if t.Position <= position {
			kept = append(kept, t)
		}
	}
	r.state.turns[conversationId] = kept
	return nil
}

func (r *fakeTurnRepo) DeleteByConversationId(_ context.Context, conversationId uuid.UUID) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	delete(r.state.turns, conversationId)
	return nil
}

func (r *fakeTurnRepo) FindOne(_ context.Context, specs ...specification.Specification) (*entity.Turn, error) {
	return nil, nil
}

func (r *fakeTurnRepo) FindAll(_ context.Context, specs ...specification.Specification) ([]*entity.Turn, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	var conversationId uuid.UUID
	for _, s := range specs {
		if sp, ok := s.(specification.ByConversationID); ok {
			conversationId = sp.ConversationID
		}
	}
	rows := r.state.turns[conversationId]
	out := make([]*entity.Turn, len(rows))
	for i, t := range rows {
		dup := *t
		out[i] = &dup
	}
	// Stored in append order which matches position order.
	return out, nil
}

func (r *fakeTurnRepo) Count(_ context.Context, specs ...specification.Specification) (int64, error) {
	all, _ := r.FindAll(context.Background(), specs...)
	return int64(len(all)), nil
}

func newTestService(t *testing.T, state *fakeState, provider *llmmock.MockProvider) IChatService {
	t.Helper()

	factory := &fakeFactory{state: state}
	views := memstore.NewViewStore(time.Hour, time.Second)
	fetch := func(ctx context.Context, ownerId uuid.UUID) ([]*entity.ConversationSummary, error) {
		return (&fakeConvRepo{state: state}).ListSummaries(ctx, ownerId)
	}
	cache := listcache.NewCache(fetch, time.Minute, nopLogger{})
	hub := hubevents.NewHub(nopLogger{})
	t.Cleanup(func() { hub.Close() })

	cfg := &config.Config{}
	cfg.Ai.HistoryBudget = 4000
	cfg.Ai.TitleModel = "test-title-model"
	cfg.Chat.MaxTitleLength = 200

	return NewChatService(factory, provider, memory.NewClient("", "", "", ""), views, cache, hub, nil, nopLogger{}, cfg)
}

func seedConversation(state *fakeState, userId uuid.UUID, texts ...string) uuid.UUID {
	conversationId := uuid.New()
	state.conversations[conversationId] = &entity.Conversation{
		Id:        conversationId,
		UserId:    userId,
		Title:     "Seeded",
		CreatedAt: time.Now(),
	}
	for i, text := range texts {
		role := constant.TurnRoleUser
		if i%2 == 1 {
			role = constant.TurnRoleAssistant
		}
		state.turns[conversationId] = append(state.turns[conversationId], &entity.Turn{
			Id:             uuid.New(),
			ConversationId: conversationId,
			Position:       i,
			Role:           role,
			Content:        entity.PlainText(text),
			CreatedAt:      time.Now(),
		})
	}
	return conversationId
}

func TestSendMessageCreatesConversationAndStreams(t *testing.T) {
	state := newFakeState()
	provider := llmmock.NewMockProvider("Hello there!", "Trip to Oslo")
	svc := newTestService(t, state, provider)
	userId := uuid.New()

	handle, err := svc.SendMessage(context.Background(), userId, uuid.Nil, &dto.SendMessageRequest{
		Content: "Plan a trip to Oslo",
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, handle.ConversationId, "id assigned before streaming")

	// The conversation and the user turn are persisted before any token.
	require.Contains(t, state.conversations, handle.ConversationId)
	assert.Equal(t, constant.DefaultConversationTitle, state.conversations[handle.ConversationId].Title)
	require.Len(t, state.turns[handle.ConversationId], 1)

	var deltas []string
	require.NoError(t, handle.Run(context.Background(), func(d string) {
		deltas = append(deltas, d)
	}))
	assert.Equal(t, "Hello there!", strings.Join(deltas, ""))

	// Assistant turn persisted after the commit.
	turns := state.turns[handle.ConversationId]
	require.Len(t, turns, 2)
	assert.Equal(t, constant.TurnRoleAssistant, turns[1].Role)
	assert.Equal(t, "Hello there!", turns[1].Content.Text)

	// Title generation runs in the background off the first user message.
	assert.Eventually(t, func() bool {
		state.mu.Lock()
		defer state.mu.Unlock()
		return state.conversations[handle.ConversationId].Title == "Trip to Oslo"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSendMessageWithAttachmentOnly(t *testing.T) {
	state := newFakeState()
	provider := llmmock.NewMockProvider("Nice photo!")
	svc := newTestService(t, state, provider)
	userId := uuid.New()

	handle, err := svc.SendMessage(context.Background(), userId, uuid.Nil, &dto.SendMessageRequest{
		Content: "",
		Attachments: []dto.AttachmentPayload{
			{Url: "https://cdn.example/abc/photo.png", Name: "photo.png", Kind: "image"},
		},
	})
	require.NoError(t, err, "an attachment-only message is a valid append")

	turns := state.turns[handle.ConversationId]
	require.Len(t, turns, 1)
	assert.True(t, turns[0].Content.IsEmpty())
	require.Len(t, turns[0].Attachments, 1)
	assert.Equal(t, "photo.png", turns[0].Attachments[0].Name)

	require.NoError(t, handle.Run(context.Background(), func(string) {}))
	require.Len(t, state.turns[handle.ConversationId], 2)
}

func TestSendMessageBumpsListOrdering(t *testing.T) {
	state := newFakeState()
	svc := newTestService(t, state, llmmock.NewMockProvider("reply"))
	userId := uuid.New()

	older := seedConversation(state, userId, "old talk", "old reply")
	newer := seedConversation(state, userId, "new talk", "new reply")
	staleAt := time.Now().Add(-2 * time.Hour)
	recentAt := time.Now().Add(-time.Hour)
	state.conversations[older].UpdatedAt = &staleAt
	state.conversations[newer].UpdatedAt = &recentAt

	handle, err := svc.SendMessage(context.Background(), userId, older, &dto.SendMessageRequest{Content: "ping"})
	require.NoError(t, err)
	require.NoError(t, handle.Run(context.Background(), func(string) {}))

	// Message activity moved the conversation to the top of the sidebar.
	require.True(t, state.conversations[older].UpdatedAt.After(recentAt))
	summaries, err := svc.List(context.Background(), userId)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, older, summaries[0].Id)
	assert.Equal(t, newer, summaries[1].Id)
}

func TestSendMessageToForeignConversationIsNotFound(t *testing.T) {
	state := newFakeState()
	owner := uuid.New()
	conversationId := seedConversation(state, owner, "hi", "hello")
	svc := newTestService(t, state, llmmock.NewMockProvider())

	_, err := svc.SendMessage(context.Background(), uuid.New(), conversationId, &dto.SendMessageRequest{Content: "mine now"})
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestSendMessageRejectsOverlappingStream(t *testing.T) {
	state := newFakeState()
	svc := newTestService(t, state, llmmock.NewMockProvider())
	userId := uuid.New()

	handle, err := svc.SendMessage(context.Background(), userId, uuid.Nil, &dto.SendMessageRequest{Content: "first"})
	require.NoError(t, err)

	// The first stream has not run yet; a second send must be rejected.
	_, err = svc.SendMessage(context.Background(), userId, handle.ConversationId, &dto.SendMessageRequest{Content: "second"})
	assert.ErrorIs(t, err, reconcile.ErrStreamInFlight)
}

func TestEditMessageTruncatesAndRegenerates(t *testing.T) {
	state := newFakeState()
	provider := llmmock.NewMockProvider("Corrected answer")
	svc := newTestService(t, state, provider)
	userId := uuid.New()
	conversationId := seedConversation(state, userId, "A", "B", "C", "D")

	handle, err := svc.EditMessage(context.Background(), userId, conversationId, 2, &dto.EditMessageRequest{Content: "C2"})
	require.NoError(t, err)

	require.NoError(t, handle.Run(context.Background(), func(string) {}))

	turns := state.turns[conversationId]
	require.Len(t, turns, 4)
	assert.Equal(t, "C2", turns[2].Content.Text)
	assert.NotNil(t, turns[2].UpdatedAt)
	assert.Equal(t, constant.TurnRoleAssistant, turns[3].Role)
	assert.Equal(t, "Corrected answer", turns[3].Content.Text)

	// The regeneration prompt saw the truncated history ending at the edit.
	require.NotEmpty(t, provider.Calls)
	history := provider.Calls[0]
	assert.Equal(t, "C2", history[len(history)-1].Content)
}

func TestEditMessageSurvivesPositionGap(t *testing.T) {
	// A logged-and-skipped assistant write leaves a hole in the stored
	// positions; the truncation must follow stored positions, not slice
	// indices, or it eats the edited turn itself.
	state := newFakeState()
	provider := llmmock.NewMockProvider("Regenerated")
	svc := newTestService(t, state, provider)
	userId := uuid.New()

	conversationId := uuid.New()
	state.conversations[conversationId] = &entity.Conversation{
		Id:        conversationId,
		UserId:    userId,
		Title:     "Gapped",
		CreatedAt: time.Now(),
	}
	for _, seed := range []struct {
		position int
		role     string
		text     string
	}{
		{0, constant.TurnRoleUser, "A"},
		{1, constant.TurnRoleAssistant, "B"},
		{3, constant.TurnRoleUser, "C"}, // position 2 was never persisted
		{4, constant.TurnRoleAssistant, "D"},
	} {
		state.turns[conversationId] = append(state.turns[conversationId], &entity.Turn{
			Id:             uuid.New(),
			ConversationId: conversationId,
			Position:       seed.position,
			Role:           seed.role,
			Content:        entity.PlainText(seed.text),
			CreatedAt:      time.Now(),
		})
	}

	// "C" sits at slice index 2 but stored position 3.
	handle, err := svc.EditMessage(context.Background(), userId, conversationId, 2, &dto.EditMessageRequest{Content: "C2"})
	require.NoError(t, err)
	require.NoError(t, handle.Run(context.Background(), func(string) {}))

	turns := state.turns[conversationId]
	require.Len(t, turns, 4)
	assert.Equal(t, "C2", turns[2].Content.Text, "edited turn survives truncation")
	assert.Equal(t, 3, turns[2].Position)
	assert.Equal(t, constant.TurnRoleAssistant, turns[3].Role)
	assert.Equal(t, "Regenerated", turns[3].Content.Text)
	assert.Equal(t, 4, turns[3].Position, "regenerated turn continues past the edited position")
}

func TestEditMessageRejectsAssistantTarget(t *testing.T) {
	state := newFakeState()
	svc := newTestService(t, state, llmmock.NewMockProvider())
	userId := uuid.New()
	conversationId := seedConversation(state, userId, "A", "B")

	_, err := svc.EditMessage(context.Background(), userId, conversationId, 1, &dto.EditMessageRequest{Content: "nope"})
	assert.ErrorIs(t, err, reconcile.ErrInvalidEditTarget)
}

func TestDeleteRemovesConversationAndTurns(t *testing.T) {
	state := newFakeState()
	svc := newTestService(t, state, llmmock.NewMockProvider())
	userId := uuid.New()
	conversationId := seedConversation(state, userId, "A", "B")

	require.NoError(t, svc.Delete(context.Background(), userId, conversationId))

	assert.NotContains(t, state.conversations, conversationId)
	assert.Empty(t, state.turns[conversationId])

	_, err := svc.Show(context.Background(), userId, conversationId)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestRename(t *testing.T) {
	state := newFakeState()
	svc := newTestService(t, state, llmmock.NewMockProvider())
	userId := uuid.New()
	conversationId := seedConversation(state, userId, "A", "B")

	res, err := svc.Rename(context.Background(), userId, conversationId, &dto.RenameConversationRequest{Title: "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", res.Title)
	assert.Equal(t, "Renamed", state.conversations[conversationId].Title)

	_, err = svc.Rename(context.Background(), userId, uuid.New(), &dto.RenameConversationRequest{Title: "X"})
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestShowMergesLiveViewOverRemote(t *testing.T) {
	state := newFakeState()
	provider := llmmock.NewMockProvider("Streaming reply")
	svc := newTestService(t, state, provider)
	userId := uuid.New()

	handle, err := svc.SendMessage(context.Background(), userId, uuid.Nil, &dto.SendMessageRequest{Content: "hello"})
	require.NoError(t, err)
	require.NoError(t, handle.Run(context.Background(), func(string) {}))

	res, err := svc.Show(context.Background(), userId, handle.ConversationId)
	require.NoError(t, err)
	require.Len(t, res.Turns, 2)
	assert.Equal(t, "Streaming reply", res.Turns[1].Content.Text)
}
