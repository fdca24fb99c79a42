package constant

const (
	TurnRoleUser      = "user"
	TurnRoleAssistant = "assistant"
)

const (
	AttachmentKindImage = "image"
	AttachmentKindPDF   = "pdf"
	AttachmentKindDoc   = "doc"
	AttachmentKindTxt   = "txt"
	AttachmentKindCSV   = "csv"
)

// DefaultSystemPrompt is used whenever the memory service returns nothing
// or fails. Memory failures degrade here, never to an error response.
const DefaultSystemPrompt = "You are a helpful assistant."

// TitlePromptTemplate drives the fire-and-forget title generation issued
// after the first user message of a brand-new conversation.
const TitlePromptTemplate = `Create a short, descriptive title (max 20 characters) for this conversation based on the user's message: %q`

const DefaultConversationTitle = "New Chat"

// ConversationIdHeader carries the assigned conversation id back to the
// client on streamed replies, so a brand-new view can adopt it before the
// stream finishes.
const ConversationIdHeader = "X-Conversation-Id"
