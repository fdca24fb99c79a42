package service

import (
	"fmt"
	"strings"

	"ai-chat-be/internal/constant"
	"ai-chat-be/internal/entity"
	"ai-chat-be/pkg/llm"
)

// BuildModelHistory converts a turn sequence into provider messages. Image
// attachments ride along as image URLs for multimodal models; document
// attachments are inlined as extracted text blocks after the user's own
// words. The result is trimmed to the token budget, oldest turns first.
func BuildModelHistory(systemPrompt string, turns []entity.Turn, budget int) []llm.Message {
	messages := make([]llm.Message, 0, len(turns)+1)
	messages = append(messages, llm.Message{Role: "system", Content: systemPrompt})

	for _, turn := range turns {
		msg := llm.Message{
			Role:    turn.Role,
			Content: turn.Content.Flatten(),
		}

		for _, att := range turn.Attachments {
			if att.Kind == constant.AttachmentKindImage {
				msg.Images = append(msg.Images, att.Url)
				continue
			}
			if att.TextContent == "" {
				continue
			}
			msg.Content = strings.TrimSpace(fmt.Sprintf(
				"%s\n\n[Attached file: %s]\n%s", msg.Content, att.Name, att.TextContent,
			))
		}

		// Parts-form content may carry inline image references too.
		if turn.Content.Kind == entity.ContentKindParts {
			for _, part := range turn.Content.Parts {
				if part.Type == entity.ContentPartImageRef && part.Image != "" {
					msg.Images = append(msg.Images, part.Image)
				}
			}
		}

		messages = append(messages, msg)
	}

	return llm.TrimToBudget(messages, budget)
}

// ComposeSystemPrompt folds retrieved user memories into the base system
// prompt. With no memories it returns the base prompt unchanged.
func ComposeSystemPrompt(memories []string) string {
	if len(memories) == 0 {
		return constant.DefaultSystemPrompt
	}

	var sb strings.Builder
	sb.WriteString(constant.DefaultSystemPrompt)
	sb.WriteString("\n\nWhat you remember about the user:\n")
	for _, m := range memories {
		sb.WriteString("- ")
		sb.WriteString(m)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
