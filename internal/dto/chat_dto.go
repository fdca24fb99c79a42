package dto

import (
	"time"

	"github.com/google/uuid"
)

// AttachmentPayload references a file already stored on the CDN.
type AttachmentPayload struct {
	Url         string `json:"url" validate:"required,url"`
	Name        string `json:"name" validate:"required"`
	Kind        string `json:"kind" validate:"required,oneof=image pdf doc txt csv"`
	TextContent string `json:"text_content"`
}

// SendMessageRequest carries the user's turn. Content may be empty when at
// least one attachment is present; the append rule rejects a turn that has
// neither.
type SendMessageRequest struct {
	Content     string              `json:"content"`
	Attachments []AttachmentPayload `json:"attachments" validate:"dive"`
}

type EditMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

type RenameConversationRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

type ConversationSummaryResponse struct {
	Id    uuid.UUID `json:"id"`
	Title string    `json:"title"`
}

type TurnResponse struct {
	Id          uuid.UUID            `json:"id"`
	Role        string               `json:"role"`
	Content     ContentResponse      `json:"content"`
	Attachments []AttachmentResponse `json:"attachments,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
}

type ContentResponse struct {
	Kind  string                `json:"kind"`
	Text  string                `json:"text,omitempty"`
	Parts []ContentPartResponse `json:"parts,omitempty"`
}

type ContentPartResponse struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

type AttachmentResponse struct {
	Url  string `json:"url"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type ShowConversationResponse struct {
	Id        uuid.UUID      `json:"id"`
	Title     string         `json:"title"`
	Turns     []TurnResponse `json:"turns"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt *time.Time     `json:"updated_at"`
}

type RenameConversationResponse struct {
	Id    uuid.UUID `json:"id"`
	Title string    `json:"title"`
}

// StreamChunk is one SSE frame of an in-flight assistant response.
type StreamChunk struct {
	Delta string `json:"delta,omitempty"`
	Error string `json:"error,omitempty"`
}

type UploadResponse struct {
	Url         string `json:"url"`
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	TextContent string `json:"text_content,omitempty"`
}

type MemoryResponse struct {
	Id        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type AddMemoryRequest struct {
	Text string `json:"text" validate:"required"`
}
