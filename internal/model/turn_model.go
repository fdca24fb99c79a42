package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Turn struct {
	Id             uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ConversationId uuid.UUID      `gorm:"type:uuid;not null;index:idx_turns_conversation_position,priority:1"`
	Position       int            `gorm:"not null;index:idx_turns_conversation_position,priority:2"`
	Role           string         `gorm:"type:text;not null"`
	Content        datatypes.JSON `gorm:"type:jsonb;not null"`
	Attachments    datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time      `gorm:"autoCreateTime"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime"`
}

func (Turn) TableName() string {
	return "turns"
}
