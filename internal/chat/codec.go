package chat

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"taxpadi-client/internal/models"
)

const defaultMIMEType = "application/octet-stream"

// ErrInvalidDataURL is returned when persisted attachment data cannot be decoded
var ErrInvalidDataURL = errors.New("invalid data URL")

// EncodeAttachment converts an in-memory attachment to its persisted form
func EncodeAttachment(a models.Attachment) models.FileData {
	mimeType := a.Type
	if mimeType == "" {
		mimeType = defaultMIMEType
	}
	return models.FileData{
		Name: a.Name,
		Type: a.Type,
		Data: "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(a.Data),
	}
}

// DecodeAttachment converts a persisted attachment back to bytes.
// DecodeAttachment(EncodeAttachment(a)) equals a.
func DecodeAttachment(fd models.FileData) (models.Attachment, error) {
	payload := fd.Data
	if payload == "data:" {
		// an empty file read as a data URL
		return models.Attachment{Name: fd.Name, Type: fd.Type, Data: []byte{}}, nil
	}
	if strings.HasPrefix(payload, "data:") {
		header, body, ok := strings.Cut(payload[len("data:"):], ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return models.Attachment{}, fmt.Errorf("%w: %s", ErrInvalidDataURL, fd.Name)
		}
		payload = body
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("%w: %s: %v", ErrInvalidDataURL, fd.Name, err)
	}
	return models.Attachment{Name: fd.Name, Type: fd.Type, Data: data}, nil
}

// persistedMessage is the stored shape of a transcript entry
type persistedMessage struct {
	ID        string           `json:"id,omitempty"`
	Role      models.Role      `json:"role"`
	Content   string           `json:"content"`
	Timestamp int64            `json:"timestamp"`
	File      *models.FileData `json:"file,omitempty"`
}

// EncodeTranscript serializes messages, inlining every attachment as base64
func EncodeTranscript(messages []models.ChatMessage) (string, error) {
	out := make([]persistedMessage, len(messages))
	for i, m := range messages {
		out[i] = persistedMessage{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.Timestamp,
		}
		if m.File != nil {
			fd := EncodeAttachment(*m.File)
			out[i].File = &fd
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to encode transcript: %w", err)
	}
	return string(data), nil
}

// DecodeTranscript restores messages written by EncodeTranscript.
// Entries without an id are assigned one. An attachment that cannot be
// decoded is dropped; its message is kept.
func DecodeTranscript(s string) ([]models.ChatMessage, error) {
	var in []persistedMessage
	if err := json.Unmarshal([]byte(s), &in); err != nil {
		return nil, fmt.Errorf("failed to decode transcript: %w", err)
	}

	out := make([]models.ChatMessage, 0, len(in))
	for _, p := range in {
		m := models.ChatMessage{
			ID:        p.ID,
			Role:      p.Role,
			Content:   p.Content,
			Timestamp: p.Timestamp,
		}
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if p.File != nil {
			a, err := DecodeAttachment(*p.File)
			if err != nil {
				log.Printf("[Chat] Dropping unreadable attachment message_id=%s err=%v", m.ID, err)
			} else {
				m.File = &a
			}
		}
		out = append(out, m)
	}
	return out, nil
}
