package controller

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ai-chat-be/internal/constant"
	"ai-chat-be/internal/dto"
	"ai-chat-be/internal/pkg/serverutils"
	"ai-chat-be/internal/service"
	"ai-chat-be/pkg/reconcile"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
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

// chatServiceStub lets each test script the service behavior.
type chatServiceStub struct {
	listFn func(ctx context.Context, userId uuid.UUID) ([]*dto.ConversationSummaryResponse, error)
	showFn func(ctx context.Context, userId, id uuid.UUID) (*dto.ShowConversationResponse, error)
	sendFn func(ctx context.Context, userId, conversationId uuid.UUID, req *dto.SendMessageRequest) (*service.StreamHandle, error)
	editFn func(ctx context.Context, userId, conversationId uuid.UUID, index int, req *dto.EditMessageRequest) (*service.StreamHandle, error)
	renFn  func(ctx context.Context, userId, id uuid.UUID, req *dto.RenameConversationRequest) (*dto.RenameConversationResponse, error)
	delFn  func(ctx context.Context, userId, id uuid.UUID) error
}

func (s *chatServiceStub) List(ctx context.Context, userId uuid.UUID) ([]*dto.ConversationSummaryResponse, error) {
	return s.listFn(ctx, userId)
}

func (s *chatServiceStub) Show(ctx context.Context, userId, id uuid.UUID) (*dto.ShowConversationResponse, error) {
	return s.showFn(ctx, userId, id)
}

func (s *chatServiceStub) SendMessage(ctx context.Context, userId, conversationId uuid.UUID, req *dto.SendMessageRequest) (*service.StreamHandle, error) {
	return s.sendFn(ctx, userId, conversationId, req)
}

func (s *chatServiceStub) EditMessage(ctx context.Context, userId, conversationId uuid.UUID, index int, req *dto.EditMessageRequest) (*service.StreamHandle, error) {
	return s.editFn(ctx, userId, conversationId, index, req)
}

func (s *chatServiceStub) Rename(ctx context.Context, userId, id uuid.UUID, req *dto.RenameConversationRequest) (*dto.RenameConversationResponse, error) {
	return s.renFn(ctx, userId, id, req)
}

func (s *chatServiceStub) Delete(ctx context.Context, userId, id uuid.UUID) error {
	return s.delFn(ctx, userId, id)
}

func newTestApp(t *testing.T, stub *chatServiceStub) *fiber.App {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")

	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware())

	api := app.Group("/api")
	NewConversationController(stub, nopLogger{}).RegisterRoutes(api)
	return app
}

func bearerToken(t *testing.T, userId uuid.UUID) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userId.String(),
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return "Bearer " + signed
}

func TestListRequiresAuth(t *testing.T) {
	app := newTestApp(t, &chatServiceStub{})

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestListReturnsSummaries(t *testing.T) {
	userId := uuid.New()
	stub := &chatServiceStub{
		listFn: func(_ context.Context, gotUser uuid.UUID) ([]*dto.ConversationSummaryResponse, error) {
			assert.Equal(t, userId, gotUser)
			return []*dto.ConversationSummaryResponse{{Id: uuid.New(), Title: "alpha"}}, nil
		},
	}
	app := newTestApp(t, stub)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.Header.Set("Authorization", bearerToken(t, userId))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "alpha")
}

func TestShowMissingConversationIs404(t *testing.T) {
	stub := &chatServiceStub{
		showFn: func(context.Context, uuid.UUID, uuid.UUID) (*dto.ShowConversationResponse, error) {
			return nil, service.ErrConversationNotFound
		},
	}
	app := newTestApp(t, stub)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/"+uuid.NewString(), nil)
	req.Header.Set("Authorization", bearerToken(t, uuid.New()))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestShowMalformedIdIs404(t *testing.T) {
	app := newTestApp(t, &chatServiceStub{})

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/not-a-uuid", nil)
	req.Header.Set("Authorization", bearerToken(t, uuid.New()))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSendMessageStreamsWithConversationHeader(t *testing.T) {
	conversationId := uuid.New()
	stub := &chatServiceStub{
		sendFn: func(_ context.Context, _ uuid.UUID, gotId uuid.UUID, req *dto.SendMessageRequest) (*service.StreamHandle, error) {
			assert.Equal(t, uuid.Nil, gotId, `"new" maps to the nil id`)
			assert.Equal(t, "Hello", req.Content)
			return &service.StreamHandle{
				ConversationId: conversationId,
				Run: func(_ context.Context, onDelta func(string)) error {
					onDelta("Hi ")
					onDelta("there!")
					return nil
				},
			}, nil
		},
	}
	app := newTestApp(t, stub)

	req := httptest.NewRequest(http.MethodPost, "/api/conversations/new/messages",
		strings.NewReader(`{"content":"Hello"}`))
	req.Header.Set("Authorization", bearerToken(t, uuid.New()))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, conversationId.String(), resp.Header.Get(constant.ConversationIdHeader))
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentType), "text/event-stream")

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `data: {"delta":"Hi "}`)
	assert.Contains(t, string(body), `data: {"delta":"there!"}`)
	assert.Contains(t, string(body), "data: [DONE]")
}

func TestSendMessageEmptyBodyIs400(t *testing.T) {
	// No content and no attachments fails the append rule, not validation.
	stub := &chatServiceStub{
		sendFn: func(_ context.Context, _ uuid.UUID, _ uuid.UUID, req *dto.SendMessageRequest) (*service.StreamHandle, error) {
			assert.Empty(t, req.Content)
			return nil, reconcile.ErrEmptyAppend
		},
	}
	app := newTestApp(t, stub)

	req := httptest.NewRequest(http.MethodPost, "/api/conversations/new/messages",
		strings.NewReader(`{"content":""}`))
	req.Header.Set("Authorization", bearerToken(t, uuid.New()))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSendMessageAttachmentOnlyIsAccepted(t *testing.T) {
	conversationId := uuid.New()
	stub := &chatServiceStub{
		sendFn: func(_ context.Context, _ uuid.UUID, _ uuid.UUID, req *dto.SendMessageRequest) (*service.StreamHandle, error) {
			assert.Empty(t, req.Content)
			require.Len(t, req.Attachments, 1)
			assert.Equal(t, "image", req.Attachments[0].Kind)
			return &service.StreamHandle{
				ConversationId: conversationId,
				Run: func(_ context.Context, onDelta func(string)) error {
					onDelta("Nice photo!")
					return nil
				},
			}, nil
		},
	}
	app := newTestApp(t, stub)

	body := `{"content":"","attachments":[{"url":"https://cdn.example/abc/photo.png","name":"photo.png","kind":"image"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/conversations/new/messages", strings.NewReader(body))
	req.Header.Set("Authorization", bearerToken(t, uuid.New()))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	respBody, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(respBody), `data: {"delta":"Nice photo!"}`)
}

func TestEditMessageBadIndexIs400(t *testing.T) {
	app := newTestApp(t, &chatServiceStub{})

	req := httptest.NewRequest(http.MethodPut, "/api/conversations/"+uuid.NewString()+"/messages/abc",
		strings.NewReader(`{"content":"x"}`))
	req.Header.Set("Authorization", bearerToken(t, uuid.New()))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRenameValidation(t *testing.T) {
	app := newTestApp(t, &chatServiceStub{})

	req := httptest.NewRequest(http.MethodPut, "/api/conversations/"+uuid.NewString(),
		strings.NewReader(`{"title":""}`))
	req.Header.Set("Authorization", bearerToken(t, uuid.New()))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDelete(t *testing.T) {
	called := false
	stub := &chatServiceStub{
		delFn: func(_ context.Context, _ uuid.UUID, id uuid.UUID) error {
			called = true
			return nil
		},
	}
	app := newTestApp(t, stub)

	req := httptest.NewRequest(http.MethodDelete, "/api/conversations/"+uuid.NewString(), nil)
	req.Header.Set("Authorization", bearerToken(t, uuid.New()))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, called)
}
