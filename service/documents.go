package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"notebase.evalgo.org/bus"
	"notebase.evalgo.org/models"
)

// DocumentList is a page of documents with the total row count.
type DocumentList struct {
	Documents []models.Document `json:"documents"`
	Count     int64             `json:"count"`
}

// BatchDeleteOutcome reports a batch delete with per-item failures.
type BatchDeleteOutcome struct {
	DeletedCount    int      `json:"deleted_count"`
	FailedDeletions []string `json:"failed_deletions,omitempty"`
}

// ListDocuments returns the owner's documents, newest first.
func (r *Resources) ListDocuments(ctx context.Context, ownerID uuid.UUID, skip, limit int) (*DocumentList, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if skip < 0 {
		skip = 0
	}

	// Count and page each get a fresh chain; gorm chains are not reuse-safe
	// across finishers.
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Document{}).
		Where("owner_id = ?", ownerID).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	var docs []models.Document
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").Offset(skip).Limit(limit).
		Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	return &DocumentList{Documents: docs, Count: count}, nil
}

// GetDocument loads one owned document.
func (r *Resources) GetDocument(ctx context.Context, ownerID, documentID uuid.UUID) (*models.Document, error) {
	var doc models.Document
	err := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", documentID, ownerID).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, Wrap(ErrNotFound, "document %s", documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return &doc, nil
}

// DeleteDocument removes a document blob-first. A blob failure after retries
// aborts with the row intact; a row failure after the blob is gone is logged
// as an inconsistency for the reconciler.
func (r *Resources) DeleteDocument(ctx context.Context, ownerID, documentID uuid.UUID) error {
	doc, err := r.GetDocument(ctx, ownerID, documentID)
	if err != nil {
		return err
	}

	delErr := withRetry(ctx, r.retry.Blob, func() error {
		return r.blobs.Delete(ctx, doc.ObjectKey)
	})
	if delErr != nil {
		return Wrap(ErrExternalUnavailable, "blob delete failed: %v", delErr)
	}

	r.events.PublishDocumentEvent(ctx, bus.NewDocumentEvent(
		bus.OpDelete, doc.ID.String(), ownerID.String(), doc.Version, doc.DocMetadata))

	if err := r.db.WithContext(ctx).Delete(&models.Document{}, "id = ?", doc.ID).Error; err != nil {
		r.logger.WithFields(map[string]interface{}{
			"inconsistency": "blob_deleted_but_row_remains",
			"document_id":   doc.ID,
			"object_key":    doc.ObjectKey,
		}).Error("document row delete failed after blob removal")
		return fmt.Errorf("failed to delete document row: %w", err)
	}

	r.logger.WithField("document_id", doc.ID).Info("document deleted")
	return nil
}

// DeleteDocuments removes a set of documents, collecting per-item failures.
func (r *Resources) DeleteDocuments(ctx context.Context, ownerID uuid.UUID, documentIDs []uuid.UUID) *BatchDeleteOutcome {
	out := &BatchDeleteOutcome{}
	for _, id := range documentIDs {
		if err := r.DeleteDocument(ctx, ownerID, id); err != nil {
			out.FailedDeletions = append(out.FailedDeletions, fmt.Sprintf("%s: %s", id, failureText(err)))
			continue
		}
		out.DeletedCount++
	}
	return out
}

// PresignDownload returns a time-limited URL for a document the owner may
// fetch directly from the object store. Expiry is clamped to [1m, 24h].
func (r *Resources) PresignDownload(ctx context.Context, ownerID uuid.UUID, key string, expires time.Duration) (string, error) {
	if expires < time.Minute {
		expires = time.Minute
	}
	if expires > 24*time.Hour {
		expires = 24 * time.Hour
	}

	prefix := ownerID.String() + "/"
	if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
		return "", Wrap(ErrNotFound, "object %s", key)
	}

	var count int64
	err := r.db.WithContext(ctx).Model(&models.Document{}).
		Where("owner_id = ? AND object_key = ?", ownerID, key).
		Count(&count).Error
	if err != nil {
		return "", fmt.Errorf("failed to verify object ownership: %w", err)
	}
	if count == 0 {
		return "", Wrap(ErrNotFound, "object %s", key)
	}

	url, err := r.blobs.PresignGet(ctx, key, expires)
	if err != nil {
		return "", Wrap(ErrExternalUnavailable, "presign failed: %v", err)
	}
	return url, nil
}
