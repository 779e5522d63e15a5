package models

import "strings"

// Role defines who authored a chat message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Attachment is a file held in memory during a live chat session
type Attachment struct {
	Name string
	Type string
	Data []byte
}

// FileData is the persisted form of an attachment.
// Data holds a base64 data URL ("data:<type>;base64,<payload>").
type FileData struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Data string `json:"data"`
}

// ChatMessage represents a single entry in the chat transcript
type ChatMessage struct {
	ID        string      `json:"id"`
	Role      Role        `json:"role"`
	Content   string      `json:"content"`
	Timestamp int64       `json:"timestamp"`
	File      *Attachment `json:"-"`
}

// HasFile reports whether the message carries an attachment
func (m ChatMessage) HasFile() bool {
	return m.File != nil
}

// ChatRequest is the JSON body of POST /ai/chat
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the body returned by POST /ai/chat
type ChatResponse struct {
	Data struct {
		Response string `json:"response"`
	} `json:"data"`
	ConversationID string `json:"conversationId,omitempty"`
}

// AttachmentKind selects how an attachment is presented
type AttachmentKind string

const (
	AttachmentAudio    AttachmentKind = "audio"
	AttachmentImage    AttachmentKind = "image"
	AttachmentPDF      AttachmentKind = "pdf"
	AttachmentDownload AttachmentKind = "download"
)

// ClassifyAttachment maps a declared MIME type to exactly one attachment kind
func ClassifyAttachment(mimeType string) AttachmentKind {
	t := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(t, "audio/"):
		return AttachmentAudio
	case strings.HasPrefix(t, "image/"):
		return AttachmentImage
	case t == "application/pdf":
		return AttachmentPDF
	default:
		return AttachmentDownload
	}
}
