package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"notebase.evalgo.org/models"
)

// AddSourceToNotebook attaches a source to a notebook. Idempotent: an
// existing pair returns the existing row unchanged. Without an explicit
// position the row lands at max(position)+1.
func (r *Resources) AddSourceToNotebook(ctx context.Context, ownerID, notebookID, sourceID uuid.UUID, position *int) (*models.NotebookSource, error) {
	if _, err := r.GetNotebook(ctx, ownerID, notebookID); err != nil {
		return nil, err
	}
	if _, err := r.GetSource(ctx, ownerID, sourceID); err != nil {
		return nil, err
	}

	var row models.NotebookSource
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("notebook_id = ? AND source_id = ?", notebookID, sourceID).
			First(&row).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		pos := 0
		if position != nil {
			if *position < 0 {
				return Wrap(ErrValidation, "position must not be negative")
			}
			pos = *position
		} else {
			var max *int
			if err := tx.Model(&models.NotebookSource{}).
				Where("notebook_id = ?", notebookID).
				Select("MAX(position)").Scan(&max).Error; err != nil {
				return err
			}
			if max != nil {
				pos = *max + 1
			}
		}

		row = models.NotebookSource{
			NotebookID: notebookID,
			SourceID:   sourceID,
			Position:   pos,
		}
		if err := tx.Create(&row).Error; err != nil {
			// Lost the race against a concurrent attach; return the winner.
			if isUniqueViolation(err) {
				return tx.Where("notebook_id = ? AND source_id = ?", notebookID, sourceID).
					First(&row).Error
			}
			return err
		}
		return nil
	})
	if err != nil {
		if IsValidation(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to attach source to notebook: %w", err)
	}
	return &row, nil
}

// ListNotebookSources returns the notebook's sources in position order.
func (r *Resources) ListNotebookSources(ctx context.Context, ownerID, notebookID uuid.UUID) ([]models.NotebookSource, error) {
	if _, err := r.GetNotebook(ctx, ownerID, notebookID); err != nil {
		return nil, err
	}

	var rows []models.NotebookSource
	err := r.db.WithContext(ctx).
		Preload("Source").
		Where("notebook_id = ?", notebookID).
		Order("position ASC, added_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list notebook sources: %w", err)
	}
	return rows, nil
}

// UpdateSourcePosition reorders one membership row.
func (r *Resources) UpdateSourcePosition(ctx context.Context, ownerID, notebookID, sourceID uuid.UUID, position int) (*models.NotebookSource, error) {
	if position < 0 {
		return nil, Wrap(ErrValidation, "position must not be negative")
	}
	if _, err := r.GetNotebook(ctx, ownerID, notebookID); err != nil {
		return nil, err
	}

	var row models.NotebookSource
	err := r.db.WithContext(ctx).
		Where("notebook_id = ? AND source_id = ?", notebookID, sourceID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, Wrap(ErrNotFound, "source %s is not in notebook %s", sourceID, notebookID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}

	if err := r.db.WithContext(ctx).Model(&row).Update("position", position).Error; err != nil {
		return nil, fmt.Errorf("failed to update position: %w", err)
	}
	return &row, nil
}

// RemoveSourceFromNotebook deletes the junction row only; the source itself
// is never removed here.
func (r *Resources) RemoveSourceFromNotebook(ctx context.Context, ownerID, notebookID, sourceID uuid.UUID) error {
	if _, err := r.GetNotebook(ctx, ownerID, notebookID); err != nil {
		return err
	}

	result := r.db.WithContext(ctx).
		Where("notebook_id = ? AND source_id = ?", notebookID, sourceID).
		Delete(&models.NotebookSource{})
	if result.Error != nil {
		return fmt.Errorf("failed to detach source: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return Wrap(ErrNotFound, "source %s is not in notebook %s", sourceID, notebookID)
	}
	return nil
}
