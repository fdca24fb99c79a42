package mapper

import (
	"encoding/json"
	"time"

	"ai-chat-be/internal/entity"
	"ai-chat-be/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ConversationMapper struct{}

func NewConversationMapper() *ConversationMapper {
	return &ConversationMapper{}
}

// Conversation Mappers

func (m *ConversationMapper) ConversationToEntity(c *model.Conversation) *entity.Conversation {
	if c == nil {
		return nil
	}

	var deletedAt *time.Time
	if c.DeletedAt.Valid {
		t := c.DeletedAt.Time
		deletedAt = &t
	}

	var updatedAt *time.Time
	if !c.UpdatedAt.IsZero() {
		t := c.UpdatedAt
		updatedAt = &t
	}

	return &entity.Conversation{
		Id:        c.Id,
		UserId:    c.UserId,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: updatedAt,
		DeletedAt: deletedAt,
		IsDeleted: c.DeletedAt.Valid,
	}
}

func (m *ConversationMapper) ConversationToModel(c *entity.Conversation) *model.Conversation {
	if c == nil {
		return nil
	}

	var deletedAt gorm.DeletedAt
	if c.DeletedAt != nil {
		deletedAt = gorm.DeletedAt{Time: *c.DeletedAt, Valid: true}
	} else if c.IsDeleted {
		deletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	}

	var updatedAt time.Time
	if c.UpdatedAt != nil {
		updatedAt = *c.UpdatedAt
	}

	return &model.Conversation{
		Id:        c.Id,
		UserId:    c.UserId,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: updatedAt,
		DeletedAt: deletedAt,
	}
}

// Turn Mappers
//
// Content is a tagged union in the entity layer and a jsonb column in the
// model layer. The JSON shape is {"kind":"plain","text":...} or
// {"kind":"parts","parts":[{"type":"text","text":...},{"type":"image","image":...}]}.

type contentJSON struct {
	Kind  entity.ContentKind `json:"kind"`
	Text  string             `json:"text,omitempty"`
	Parts []contentPartJSON  `json:"parts,omitempty"`
}

type contentPartJSON struct {
	Type  entity.ContentPartType `json:"type"`
	Text  string                 `json:"text,omitempty"`
	Image string                 `json:"image,omitempty"`
}

type attachmentJSON struct {
	Url         string `json:"url"`
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	TextContent string `json:"text_content,omitempty"`
}

func (m *ConversationMapper) TurnToEntity(t *model.Turn) (*entity.Turn, error) {
	if t == nil {
		return nil, nil
	}

	var cj contentJSON
	if err := json.Unmarshal(t.Content, &cj); err != nil {
		return nil, err
	}

	content := entity.Content{Kind: cj.Kind, Text: cj.Text}
	if cj.Kind == "" {
		content.Kind = entity.ContentKindPlain
	}
	for _, p := range cj.Parts {
		content.Parts = append(content.Parts, entity.ContentPart{
			Type:  p.Type,
			Text:  p.Text,
			Image: p.Image,
		})
	}

	var attachments []entity.Attachment
	if len(t.Attachments) > 0 {
		var ajs []attachmentJSON
		if err := json.Unmarshal(t.Attachments, &ajs); err != nil {
			return nil, err
		}
		for _, a := range ajs {
			attachments = append(attachments, entity.Attachment{
				Url:         a.Url,
				Name:        a.Name,
				Kind:        a.Kind,
				TextContent: a.TextContent,
			})
		}
	}

	var updatedAt *time.Time
	if !t.UpdatedAt.IsZero() {
		u := t.UpdatedAt
		updatedAt = &u
	}

	return &entity.Turn{
		Id:             t.Id,
		ConversationId: t.ConversationId,
		Position:       t.Position,
		Role:           t.Role,
		Content:        content,
		Attachments:    attachments,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      updatedAt,
	}, nil
}

func (m *ConversationMapper) TurnToModel(t *entity.Turn) (*model.Turn, error) {
	if t == nil {
		return nil, nil
	}

	cj := contentJSON{Kind: t.Content.Kind, Text: t.Content.Text}
	if cj.Kind == "" {
		cj.Kind = entity.ContentKindPlain
	}
	for _, p := range t.Content.Parts {
		cj.Parts = append(cj.Parts, contentPartJSON{
			Type:  p.Type,
			Text:  p.Text,
			Image: p.Image,
		})
	}
	contentRaw, err := json.Marshal(cj)
	if err != nil {
		return nil, err
	}

	var attachmentsRaw datatypes.JSON
	if len(t.Attachments) > 0 {
		ajs := make([]attachmentJSON, 0, len(t.Attachments))
		for _, a := range t.Attachments {
			ajs = append(ajs, attachmentJSON{
				Url:         a.Url,
				Name:        a.Name,
				Kind:        a.Kind,
				TextContent: a.TextContent,
			})
		}
		attachmentsRaw, err = json.Marshal(ajs)
		if err != nil {
			return nil, err
		}
	}

	var updatedAt time.Time
	if t.UpdatedAt != nil {
		updatedAt = *t.UpdatedAt
	}

	return &model.Turn{
		Id:             t.Id,
		ConversationId: t.ConversationId,
		Position:       t.Position,
		Role:           t.Role,
		Content:        datatypes.JSON(contentRaw),
		Attachments:    attachmentsRaw,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      updatedAt,
	}, nil
}

func (m *ConversationMapper) TurnsToEntities(models []*model.Turn) ([]*entity.Turn, error) {
	entities := make([]*entity.Turn, 0, len(models))
	for _, mt := range models {
		e, err := m.TurnToEntity(mt)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}
