package contract

import (
	"context"

	"ai-chat-be/internal/entity"
	"ai-chat-be/internal/repository/specification"

	"github.com/google/uuid"
)

type TurnRepository interface {
	Create(ctx context.Context, turn *entity.Turn) error
	CreateBatch(ctx context.Context, turns []*entity.Turn) error
	Update(ctx context.Context, turn *entity.Turn) error
	// DeleteAfterPosition hard-deletes every turn of a conversation with
	// position > position. Edits truncate; the tail must not resurface.
	DeleteAfterPosition(ctx context.Context, conversationId uuid.UUID, position int) error
	DeleteByConversationId(ctx context.Context, conversationId uuid.UUID) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Turn, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Turn, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
