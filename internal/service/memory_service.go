package service

import (
	"context"

	"ai-chat-be/internal/dto"
	"ai-chat-be/internal/pkg/logger"
	"ai-chat-be/pkg/memory"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IMemoryService interface {
	List(ctx context.Context, userId uuid.UUID) ([]*dto.MemoryResponse, error)
	Add(ctx context.Context, userId uuid.UUID, req *dto.AddMemoryRequest) error
	Delete(ctx context.Context, userId uuid.UUID, memoryId string) error
}

type memoryService struct {
	client *memory.Client
	logger logger.ILogger
}

func NewMemoryService(client *memory.Client, log logger.ILogger) IMemoryService {
	return &memoryService{
		client: client,
		logger: log,
	}
}

func (s *memoryService) List(ctx context.Context, userId uuid.UUID) ([]*dto.MemoryResponse, error) {
	if !s.client.Enabled() {
		// No memory backend configured; an empty list, not an error.
		return []*dto.MemoryResponse{}, nil
	}

	memories, err := s.client.List(ctx, userId.String())
	if err != nil {
		return nil, err
	}

	res := make([]*dto.MemoryResponse, len(memories))
	for i, m := range memories {
		res[i] = &dto.MemoryResponse{
			Id:        m.Id,
			Text:      m.Text,
			CreatedAt: m.CreatedAt,
		}
	}
	return res, nil
}

func (s *memoryService) Add(ctx context.Context, userId uuid.UUID, req *dto.AddMemoryRequest) error {
	if !s.client.Enabled() {
		return fiber.NewError(fiber.StatusServiceUnavailable, "Memory service not configured")
	}
	return s.client.Add(ctx, userId.String(), req.Text, "")
}

func (s *memoryService) Delete(ctx context.Context, userId uuid.UUID, memoryId string) error {
	if !s.client.Enabled() {
		return fiber.NewError(fiber.StatusServiceUnavailable, "Memory service not configured")
	}
	return s.client.Delete(ctx, memoryId)
}
