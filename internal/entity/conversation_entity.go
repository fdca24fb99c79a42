package entity

import (
	"time"

	"github.com/google/uuid"
)

type Conversation struct {
	Id        uuid.UUID
	UserId    uuid.UUID
	Title     string
	CreatedAt time.Time
	UpdatedAt *time.Time
	DeletedAt *time.Time
	IsDeleted bool
}

// ConversationSummary is the sidebar projection of a conversation.
type ConversationSummary struct {
	Id    uuid.UUID
	Title string
}
