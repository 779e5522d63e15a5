package client

import (
	"context"
	"log"

	"taxpadi-client/internal/models"
)

const pathChat = "/ai/chat"

// Chat sends a message to the AI assistant. With attachments the request is
// multipart (a "message" field plus one "files" part per attachment),
// otherwise it is JSON.
func (c *Client) Chat(ctx context.Context, message string, files []models.Attachment) (*models.ChatResponse, error) {
	var resp models.ChatResponse

	if len(files) > 0 {
		fields := map[string]string{"message": message}
		if err := c.Upload(ctx, pathChat, fields, files, &resp); err != nil {
			return nil, err
		}
	} else {
		if err := c.Post(ctx, pathChat, models.ChatRequest{Message: message}, &resp); err != nil {
			return nil, err
		}
	}

	log.Printf("[API] Chat completed files=%d response_len=%d", len(files), len(resp.Data.Response))
	return &resp, nil
}
