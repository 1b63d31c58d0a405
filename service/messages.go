package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"notebase.evalgo.org/models"
)

// MessageInput is the client-facing shape for appending to the message log.
type MessageInput struct {
	Role        string   `json:"role"`
	Content     string   `json:"content"`
	UsedSources []string `json:"used_sources,omitempty"`
}

// CreateMessage appends one conversational turn to a notebook.
func (r *Resources) CreateMessage(ctx context.Context, ownerID, notebookID uuid.UUID, in MessageInput) (*models.NotebookMessage, error) {
	if in.Role != models.RoleUser && in.Role != models.RoleAssistant {
		return nil, Wrap(ErrValidation, "role must be %q or %q", models.RoleUser, models.RoleAssistant)
	}
	if in.Content == "" {
		return nil, Wrap(ErrValidation, "content is required")
	}
	if _, err := r.GetNotebook(ctx, ownerID, notebookID); err != nil {
		return nil, err
	}

	msg := models.NotebookMessage{
		NotebookID:  notebookID,
		Role:        in.Role,
		Content:     in.Content,
		UsedSources: models.StringList(in.UsedSources),
	}
	if err := r.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return &msg, nil
}

// ListMessages returns the notebook's message log in chronological order.
func (r *Resources) ListMessages(ctx context.Context, ownerID, notebookID uuid.UUID, limit int) ([]models.NotebookMessage, error) {
	if _, err := r.GetNotebook(ctx, ownerID, notebookID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 500
	}

	var msgs []models.NotebookMessage
	err := r.db.WithContext(ctx).
		Where("notebook_id = ?", notebookID).
		Order("created_at ASC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, nil
}
