package unifiedllm

import (
	"strings"
)

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentKind is the discriminator tag for ContentPart.
type ContentKind string

const (
	ContentText ContentKind = "text"
)

// ContentPart is one part of a message.
type ContentPart struct {
	Kind ContentKind `json:"kind"`
	Text string      `json:"text,omitempty"`
}

// TextPart creates a text ContentPart.
func TextPart(text string) ContentPart {
	return ContentPart{Kind: ContentText, Text: text}
}

// Message is the fundamental unit of conversation.
type Message struct {
	Role    Role          `json:"role"`
	Content []ContentPart `json:"content"`
}

// TextContent returns the concatenation of all text content parts.
func (m Message) TextContent() string {
	var sb strings.Builder
	for _, part := range m.Content {
		if part.Kind == ContentText {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// UserMessage creates a user Message with text content.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []ContentPart{TextPart(text)}}
}

// AssistantMessage creates an assistant Message with text content.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: []ContentPart{TextPart(text)}}
}

// FinishReason describes why generation stopped.
type FinishReason struct {
	Reason string `json:"reason"` // "stop", "length", "content_filter", "error", "other"
	Raw    string `json:"raw,omitempty"`
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Request is the input to Complete.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Provider    string    `json:"provider,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

// Response is the output of Complete.
type Response struct {
	ID           string       `json:"id"`
	Model        string       `json:"model"`
	Provider     string       `json:"provider"`
	Message      Message      `json:"message"`
	FinishReason FinishReason `json:"finish_reason"`
	Usage        Usage        `json:"usage"`
}

// Text returns the concatenated text from all text parts in the response message.
func (r Response) Text() string {
	return r.Message.TextContent()
}
