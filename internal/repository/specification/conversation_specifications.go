package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ByConversationID struct {
	ConversationID uuid.UUID
}

func (s ByConversationID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("conversation_id = ?", s.ConversationID)
}

// PositionAfter selects turns strictly past a stored position. The edit
// flow uses it to discard the tail of a truncated conversation.
type PositionAfter struct {
	Position int
}

func (s PositionAfter) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("position > ?", s.Position)
}
