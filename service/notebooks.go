package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"notebase.evalgo.org/models"
)

// NotebookInput is the client-facing shape for notebook writes.
type NotebookInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// CleanupSummary reports the orphan cascade of a notebook delete.
type CleanupSummary struct {
	TotalOrphaned       int      `json:"total_orphaned"`
	SuccessfullyDeleted int      `json:"successfully_deleted"`
	FailedDeletions     []string `json:"failed_deletions,omitempty"`
	DeletedSourceIDs    []string `json:"deleted_source_ids,omitempty"`
}

// CreateNotebook stores a notebook for the owner.
func (r *Resources) CreateNotebook(ctx context.Context, ownerID uuid.UUID, in NotebookInput) (*models.Notebook, error) {
	if in.Title == "" {
		return nil, Wrap(ErrValidation, "title is required")
	}

	nb := models.Notebook{
		OwnerID:     ownerID,
		Title:       in.Title,
		Description: in.Description,
	}
	if err := r.db.WithContext(ctx).Create(&nb).Error; err != nil {
		return nil, fmt.Errorf("failed to create notebook: %w", err)
	}
	return &nb, nil
}

// GetNotebook loads one owned notebook.
func (r *Resources) GetNotebook(ctx context.Context, ownerID, notebookID uuid.UUID) (*models.Notebook, error) {
	var nb models.Notebook
	err := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", notebookID, ownerID).
		First(&nb).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, Wrap(ErrNotFound, "notebook %s", notebookID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load notebook: %w", err)
	}
	return &nb, nil
}

// ListNotebooks returns the owner's notebooks, newest first.
func (r *Resources) ListNotebooks(ctx context.Context, ownerID uuid.UUID) ([]models.Notebook, error) {
	var nbs []models.Notebook
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&nbs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list notebooks: %w", err)
	}
	return nbs, nil
}

// UpdateNotebook changes title and description.
func (r *Resources) UpdateNotebook(ctx context.Context, ownerID, notebookID uuid.UUID, in NotebookInput) (*models.Notebook, error) {
	nb, err := r.GetNotebook(ctx, ownerID, notebookID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{"description": in.Description}
	if in.Title != "" {
		updates["title"] = in.Title
	}
	if err := r.db.WithContext(ctx).Model(nb).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update notebook: %w", err)
	}
	return nb, nil
}

// DeleteNotebook removes a notebook and cascades to its orphaned sources.
// A source is an orphan when the notebook being deleted is its only parent
// among the owner's notebooks. Orphans are fully removed across stores via
// the source cascade; shared sources survive untouched.
func (r *Resources) DeleteNotebook(ctx context.Context, ownerID, notebookID uuid.UUID) (*CleanupSummary, error) {
	nb, err := r.GetNotebook(ctx, ownerID, notebookID)
	if err != nil {
		return nil, err
	}

	orphans, err := r.findOrphanedSources(ctx, ownerID, nb.ID)
	if err != nil {
		return nil, err
	}

	summary := &CleanupSummary{TotalOrphaned: len(orphans)}
	for _, sourceID := range orphans {
		if err := r.DeleteSource(ctx, ownerID, sourceID); err != nil {
			summary.FailedDeletions = append(summary.FailedDeletions,
				fmt.Sprintf("%s: %s", sourceID, failureText(err)))
			continue
		}
		summary.SuccessfullyDeleted++
		summary.DeletedSourceIDs = append(summary.DeletedSourceIDs, sourceID.String())
	}

	// Membership and message rows fall with the notebook via FK cascade.
	if err := r.db.WithContext(ctx).Delete(&models.Notebook{}, "id = ?", nb.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to delete notebook row: %w", err)
	}

	r.logger.WithFields(map[string]interface{}{
		"notebook_id":      nb.ID,
		"orphaned_sources": summary.TotalOrphaned,
		"deleted_sources":  summary.SuccessfullyDeleted,
	}).Info("notebook deleted")
	return summary, nil
}

// findOrphanedSources returns the source ids attached to this notebook that
// appear in no other notebook of the same owner.
func (r *Resources) findOrphanedSources(ctx context.Context, ownerID, notebookID uuid.UUID) ([]uuid.UUID, error) {
	var orphans []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.NotebookSource{}).
		Select("notebook_sources.source_id").
		Where("notebook_sources.notebook_id = ?", notebookID).
		Where(`NOT EXISTS (
			SELECT 1 FROM notebook_sources other
			JOIN notebooks n ON n.id = other.notebook_id
			WHERE other.source_id = notebook_sources.source_id
			  AND other.notebook_id <> ?
			  AND n.owner_id = ?
		)`, notebookID, ownerID).
		Pluck("notebook_sources.source_id", &orphans).Error
	if err != nil {
		return nil, fmt.Errorf("failed to identify orphaned sources: %w", err)
	}
	return orphans, nil
}
