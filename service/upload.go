package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"notebase.evalgo.org/bus"
	"notebase.evalgo.org/models"
)

// UploadFile is one file from a multipart request, fully read into memory.
type UploadFile struct {
	Filename string
	MimeType string
	Data     []byte
}

// UploadOutcome is the partial-success result of a batch upload.
type UploadOutcome struct {
	Documents []models.Document `json:"documents"`
	Failed    []string          `json:"failed_uploads,omitempty"`
}

// DuplicateUploadMessage is the per-file failure text for idempotency hits.
const DuplicateUploadMessage = "File already exists"

// UploadFiles runs the upload pipeline for each file in its own transaction.
// Per-file failures are collected; one bad file never sinks the batch.
func (r *Resources) UploadFiles(ctx context.Context, ownerID uuid.UUID, files []UploadFile) (*UploadOutcome, error) {
	if len(files) == 0 {
		return nil, Wrap(ErrValidation, "no files provided")
	}

	var total int64
	for _, f := range files {
		total += int64(len(f.Data))
	}
	if r.limits.MaxTotalUploadSizeBytes > 0 && total > r.limits.MaxTotalUploadSizeBytes {
		return nil, Wrap(ErrValidation, "batch size %s exceeds the %s limit",
			humanize.Bytes(uint64(total)), humanize.Bytes(uint64(r.limits.MaxTotalUploadSizeBytes)))
	}

	outcome := &UploadOutcome{}
	for _, f := range files {
		doc, err := r.uploadOne(ctx, ownerID, f)
		if err != nil {
			outcome.Failed = append(outcome.Failed, fmt.Sprintf("%s: %s", f.Filename, failureText(err)))
			continue
		}
		outcome.Documents = append(outcome.Documents, *doc)
	}
	return outcome, nil
}

// uploadOne is the single-file contract: validate, gate, reserve the row,
// write the blob, commit, then announce. The row insert and commit bracket
// the blob write so a failed PUT rolls back cleanly and a failed commit
// removes the stray blob.
func (r *Resources) uploadOne(ctx context.Context, ownerID uuid.UUID, f UploadFile) (*models.Document, error) {
	if err := r.validateFile(f); err != nil {
		return nil, err
	}

	if err := r.gate.CheckProcessingLimit(ctx, ownerID.String()); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(f.Data)
	objectKey := fmt.Sprintf("%s/%s", ownerID, f.Filename)

	doc := models.Document{
		OwnerID:   ownerID,
		Filename:  f.Filename,
		MimeType:  f.MimeType,
		Size:      int64(len(f.Data)),
		Bucket:    r.blobs.Bucket(),
		ObjectKey: objectKey,
		Status:    models.StatusPending,
		Version:   1,
		DocMetadata: models.JSONMap{
			"file_hash": hex.EncodeToString(sum[:]),
		},
	}

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to open transaction: %w", tx.Error)
	}

	var existing models.Document
	err := tx.Where("owner_id = ? AND object_key = ?", ownerID, objectKey).First(&existing).Error
	if err == nil {
		tx.Rollback()
		return nil, Wrap(ErrConflict, DuplicateUploadMessage)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		tx.Rollback()
		return nil, fmt.Errorf("failed to check for duplicate upload: %w", err)
	}

	if err := tx.Create(&doc).Error; err != nil {
		tx.Rollback()
		if isUniqueViolation(err) {
			return nil, Wrap(ErrConflict, DuplicateUploadMessage)
		}
		return nil, fmt.Errorf("failed to create document row: %w", err)
	}

	putErr := withRetry(ctx, r.retry.Blob, func() error {
		return r.blobs.Put(ctx, objectKey, f.Data, f.MimeType)
	})
	if putErr != nil {
		tx.Rollback()
		return nil, Wrap(ErrExternalUnavailable, "blob upload failed: %v", putErr)
	}

	if err := tx.Commit().Error; err != nil {
		// The blob landed but the row did not; remove it again.
		if delErr := r.blobs.Delete(ctx, objectKey); delErr != nil {
			r.logger.WithError(delErr).WithField("object_key", objectKey).
				Error("failed to remove blob after commit failure")
		}
		if isUniqueViolation(err) {
			return nil, Wrap(ErrConflict, DuplicateUploadMessage)
		}
		return nil, fmt.Errorf("failed to commit document row: %w", err)
	}

	r.events.PublishDocumentEvent(ctx, bus.NewDocumentEvent(
		bus.OpCreate, doc.ID.String(), ownerID.String(), doc.Version, doc.DocMetadata))

	r.logger.WithFields(map[string]interface{}{
		"document_id": doc.ID,
		"filename":    doc.Filename,
		"size":        humanize.Bytes(uint64(doc.Size)),
	}).Info("document uploaded")

	return &doc, nil
}

func (r *Resources) validateFile(f UploadFile) error {
	if strings.TrimSpace(f.Filename) == "" {
		return Wrap(ErrValidation, "filename is required")
	}
	if strings.Contains(f.Filename, "/") || strings.Contains(f.Filename, "..") {
		return Wrap(ErrValidation, "invalid filename")
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(f.Filename)), ".")
	allowed := false
	for _, t := range r.limits.AllowedTypes() {
		if ext == t {
			allowed = true
			break
		}
	}
	if !allowed {
		return Wrap(ErrValidation, "file type %q is not allowed", ext)
	}

	size := int64(len(f.Data))
	if size < r.limits.MinFileSizeBytes {
		return Wrap(ErrValidation, "file is smaller than the %d byte minimum", r.limits.MinFileSizeBytes)
	}
	if max := r.limits.MaxSizeFor(ext); max > 0 && size > max {
		return Wrap(ErrValidation, "file exceeds the %s limit for %s files", humanize.Bytes(uint64(max)), ext)
	}
	return nil
}

// failureText strips the sentinel prefix so batch failure lists read as
// plain reasons.
func failureText(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{ErrValidation, ErrConflict, ErrRateLimited, ErrExternalUnavailable, ErrNotFound} {
		prefix := sentinel.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "23505")
}
