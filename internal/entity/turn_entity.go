package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type ContentKind string

const (
	ContentKindPlain ContentKind = "plain"
	ContentKindParts ContentKind = "parts"
)

type ContentPartType string

const (
	ContentPartText     ContentPartType = "text"
	ContentPartImageRef ContentPartType = "image"
)

// ContentPart is one element of a multi-modal message body.
type ContentPart struct {
	Type  ContentPartType
	Text  string // set when Type == text
	Image string // image URL, set when Type == image
}

// Content is a tagged union: either a plain string or an ordered list of
// typed parts. Exactly one representation is active, selected by Kind.
type Content struct {
	Kind  ContentKind
	Text  string
	Parts []ContentPart
}

func PlainText(text string) Content {
	return Content{Kind: ContentKindPlain, Text: text}
}

func PartsContent(parts []ContentPart) Content {
	return Content{Kind: ContentKindParts, Parts: parts}
}

func (c Content) IsEmpty() bool {
	if c.Kind == ContentKindParts {
		return len(c.Parts) == 0
	}
	return strings.TrimSpace(c.Text) == ""
}

// Flatten renders the content as one string, joining text parts and
// substituting image references by their URL. Used for title generation
// and token estimation.
func (c Content) Flatten() string {
	if c.Kind != ContentKindParts {
		return c.Text
	}
	var b strings.Builder
	for i, p := range c.Parts {
		if i > 0 {
			b.WriteString("\n")
		}
		switch p.Type {
		case ContentPartText:
			b.WriteString(p.Text)
		case ContentPartImageRef:
			b.WriteString(p.Image)
		}
	}
	return b.String()
}

type Attachment struct {
	Url         string
	Name        string
	Kind        string // image | pdf | doc | txt | csv
	TextContent string // extracted at upload time, empty for images
}

type Turn struct {
	Id             uuid.UUID
	ConversationId uuid.UUID
	Position       int
	Role           string // user | assistant
	Content        Content
	Attachments    []Attachment
	CreatedAt      time.Time
	UpdatedAt      *time.Time
}
