package service

import (
	"context"

	"ai-chat-be/internal/dto"
	"ai-chat-be/internal/pkg/logger"
	"ai-chat-be/pkg/upload"

	"github.com/google/uuid"
)

type IUploadService interface {
	Upload(ctx context.Context, userId uuid.UUID, filename string, data []byte) (*dto.UploadResponse, error)
}

type uploadService struct {
	client *upload.Client
	logger logger.ILogger
}

func NewUploadService(client *upload.Client, log logger.ILogger) IUploadService {
	return &uploadService{
		client: client,
		logger: log,
	}
}

func (s *uploadService) Upload(ctx context.Context, userId uuid.UUID, filename string, data []byte) (*dto.UploadResponse, error) {
	uploaded, err := s.client.Upload(ctx, filename, data)
	if err != nil {
		return nil, err
	}

	s.logger.Info("UploadService", "File uploaded", map[string]interface{}{
		"user_id": userId,
		"name":    uploaded.Name,
		"kind":    uploaded.Kind,
	})

	return &dto.UploadResponse{
		Url:         uploaded.Url,
		Name:        uploaded.Name,
		Kind:        uploaded.Kind,
		TextContent: uploaded.TextContent,
	}, nil
}
