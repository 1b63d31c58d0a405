package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"notebase.evalgo.org/bus"
	"notebase.evalgo.org/models"
)

// SourceInput is the client-facing shape for creating or updating a source.
type SourceInput struct {
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	SourceType     string         `json:"source_type"`
	SourceMetadata models.JSONMap `json:"source_metadata"`
}

// ValidateSourceMetadata checks that the metadata shape matches the source
// type: document needs document_id, url needs url, text needs content.
func ValidateSourceMetadata(sourceType string, metadata models.JSONMap) error {
	requireString := func(key string) error {
		v, ok := metadata[key].(string)
		if !ok || v == "" {
			return Wrap(ErrValidation, "%s sources require %q in source_metadata", sourceType, key)
		}
		return nil
	}

	switch sourceType {
	case models.SourceTypeDocument:
		if err := requireString("document_id"); err != nil {
			return err
		}
		if _, err := uuid.Parse(metadata["document_id"].(string)); err != nil {
			return Wrap(ErrValidation, "document_id is not a valid id")
		}
		return nil
	case models.SourceTypeURL:
		return requireString("url")
	case models.SourceTypeText:
		return requireString("content")
	case models.SourceTypeVideo, models.SourceTypeImage:
		return requireString("url")
	default:
		return Wrap(ErrValidation, "unknown source type %q", sourceType)
	}
}

// CreateSource validates and stores a source, then announces it so the
// worker can index URL and text kinds. Document sources link an already
// uploaded document, which was announced by the upload path.
func (r *Resources) CreateSource(ctx context.Context, ownerID uuid.UUID, in SourceInput) (*models.Source, error) {
	if in.Title == "" {
		return nil, Wrap(ErrValidation, "title is required")
	}
	if err := ValidateSourceMetadata(in.SourceType, in.SourceMetadata); err != nil {
		return nil, err
	}

	src := models.Source{
		OwnerID:        ownerID,
		Title:          in.Title,
		Description:    in.Description,
		SourceType:     in.SourceType,
		SourceMetadata: in.SourceMetadata,
		Status:         models.StatusPending,
	}

	if in.SourceType == models.SourceTypeDocument {
		docID, _ := src.DocumentID()
		doc, err := r.GetDocument(ctx, ownerID, docID)
		if err != nil {
			return nil, err
		}

		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&src).Error; err != nil {
				return err
			}
			return tx.Model(&models.Document{}).
				Where("id = ?", doc.ID).
				Update("source_id", src.ID).Error
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create document source: %w", err)
		}
		return &src, nil
	}

	if err := r.db.WithContext(ctx).Create(&src).Error; err != nil {
		return nil, fmt.Errorf("failed to create source: %w", err)
	}

	// URL and text sources are indexed from the event alone; the worker
	// reads the url or inline content out of the event metadata.
	if in.SourceType == models.SourceTypeURL || in.SourceType == models.SourceTypeText {
		r.events.PublishURLSourceEvent(ctx, bus.NewURLSourceEvent(
			bus.OpCreate, src.ID.String(), ownerID.String(), 1, src.SourceMetadata))
	}

	r.logger.WithFields(map[string]interface{}{
		"source_id":   src.ID,
		"source_type": src.SourceType,
	}).Info("source created")
	return &src, nil
}

// GetSource loads one owned source.
func (r *Resources) GetSource(ctx context.Context, ownerID, sourceID uuid.UUID) (*models.Source, error) {
	var src models.Source
	err := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", sourceID, ownerID).
		First(&src).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, Wrap(ErrNotFound, "source %s", sourceID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load source: %w", err)
	}
	return &src, nil
}

// ListSources returns the owner's sources, newest first.
func (r *Resources) ListSources(ctx context.Context, ownerID uuid.UUID, skip, limit int) ([]models.Source, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	var sources []models.Source
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").Offset(skip).Limit(limit).
		Find(&sources).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	return sources, nil
}

// UpdateSource changes title and description. Type and metadata are fixed
// after creation; re-pointing a source would orphan its vector points.
func (r *Resources) UpdateSource(ctx context.Context, ownerID, sourceID uuid.UUID, title, description string) (*models.Source, error) {
	src, err := r.GetSource(ctx, ownerID, sourceID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if title != "" {
		updates["title"] = title
	}
	updates["description"] = description

	if err := r.db.WithContext(ctx).Model(src).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update source: %w", err)
	}
	return src, nil
}

// DeleteSource cascades per kind. Document sources also remove the blob and
// the Document row; every kind announces a delete event so the worker clears
// the vector points. Vector and blob failures never block the row delete.
func (r *Resources) DeleteSource(ctx context.Context, ownerID, sourceID uuid.UUID) error {
	src, err := r.GetSource(ctx, ownerID, sourceID)
	if err != nil {
		return err
	}

	switch src.SourceType {
	case models.SourceTypeDocument:
		docID, ok := src.DocumentID()
		if !ok {
			r.logger.WithField("source_id", src.ID).Warn("document source without document_id metadata")
			break
		}
		if err := r.DeleteDocument(ctx, ownerID, docID); err != nil && !IsNotFound(err) {
			// Blob problems are repaired by the reconciler; keep going.
			r.logger.WithError(err).WithFields(map[string]interface{}{
				"source_id":   src.ID,
				"document_id": docID,
			}).Error("document cleanup failed during source delete")
		}
	default:
		r.events.PublishURLSourceEvent(ctx, bus.NewURLSourceEvent(
			bus.OpDelete, src.ID.String(), ownerID.String(), 1, nil))
	}

	if err := r.db.WithContext(ctx).Delete(&models.Source{}, "id = ?", src.ID).Error; err != nil {
		return fmt.Errorf("failed to delete source row: %w", err)
	}

	r.logger.WithField("source_id", src.ID).Info("source deleted")
	return nil
}
