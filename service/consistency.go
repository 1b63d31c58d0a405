package service

import (
	"context"
	"fmt"
	"strings"

	"notebase.evalgo.org/models"
)

// Cleanup modes accepted by RunCleanup.
const (
	CleanupOrphanedFiles   = "orphaned-files"
	CleanupOrphanedRecords = "orphaned-records"
	CleanupFull            = "full"
)

// ConsistencyReport describes cross-store drift between the document table
// and the blob store.
type ConsistencyReport struct {
	DocumentCount   int      `json:"document_count"`
	ObjectCount     int      `json:"object_count"`
	OrphanedFiles   []string `json:"orphaned_files,omitempty"`
	OrphanedRecords []string `json:"orphaned_records,omitempty"`
	Consistent      bool     `json:"consistent"`
}

// CleanupReport describes what a cleanup pass removed or would remove.
type CleanupReport struct {
	Mode           string   `json:"mode"`
	DryRun         bool     `json:"dry_run"`
	FilesRemoved   []string `json:"files_removed,omitempty"`
	RecordsRemoved []string `json:"records_removed,omitempty"`
	FailedRemovals []string `json:"failed_removals,omitempty"`
}

// CheckConsistency sweeps both directions of invariant X1: every document
// row has a blob, and every blob under a known prefix has a row. Runs over
// the whole bucket; superuser only.
func (r *Resources) CheckConsistency(ctx context.Context) (*ConsistencyReport, error) {
	var docs []models.Document
	if err := r.db.WithContext(ctx).Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	objects, err := r.blobs.List(ctx, "")
	if err != nil {
		return nil, Wrap(ErrExternalUnavailable, "blob listing failed: %v", err)
	}

	rowKeys := make(map[string]bool, len(docs))
	for _, d := range docs {
		rowKeys[d.ObjectKey] = true
	}
	blobKeys := make(map[string]bool, len(objects))
	for _, o := range objects {
		blobKeys[o.Key] = true
	}

	report := &ConsistencyReport{
		DocumentCount: len(docs),
		ObjectCount:   len(objects),
	}
	for _, d := range docs {
		if !blobKeys[d.ObjectKey] {
			report.OrphanedRecords = append(report.OrphanedRecords, d.ID.String())
		}
	}
	for _, o := range objects {
		if !rowKeys[o.Key] {
			report.OrphanedFiles = append(report.OrphanedFiles, o.Key)
		}
	}
	report.Consistent = len(report.OrphanedFiles) == 0 && len(report.OrphanedRecords) == 0

	if !report.Consistent {
		r.logger.WithFields(map[string]interface{}{
			"orphaned_files":   len(report.OrphanedFiles),
			"orphaned_records": len(report.OrphanedRecords),
		}).Warn("cross-store drift detected")
	}
	return report, nil
}

// RunCleanup repairs the drift found by CheckConsistency. Orphaned files are
// blobs without rows; orphaned records are rows without blobs. With dryRun
// set the report lists the targets without touching anything.
func (r *Resources) RunCleanup(ctx context.Context, mode string, dryRun bool) (*CleanupReport, error) {
	switch mode {
	case CleanupOrphanedFiles, CleanupOrphanedRecords, CleanupFull:
	default:
		return nil, Wrap(ErrValidation, "unknown cleanup mode %q", mode)
	}

	check, err := r.CheckConsistency(ctx)
	if err != nil {
		return nil, err
	}

	report := &CleanupReport{Mode: mode, DryRun: dryRun}

	if mode == CleanupOrphanedFiles || mode == CleanupFull {
		for _, key := range check.OrphanedFiles {
			if dryRun {
				report.FilesRemoved = append(report.FilesRemoved, key)
				continue
			}
			if err := r.blobs.Delete(ctx, key); err != nil {
				report.FailedRemovals = append(report.FailedRemovals, fmt.Sprintf("blob %s: %v", key, err))
				continue
			}
			report.FilesRemoved = append(report.FilesRemoved, key)
		}
	}

	if mode == CleanupOrphanedRecords || mode == CleanupFull {
		for _, id := range check.OrphanedRecords {
			if dryRun {
				report.RecordsRemoved = append(report.RecordsRemoved, id)
				continue
			}
			if err := r.db.WithContext(ctx).Delete(&models.Document{}, "id = ?", id).Error; err != nil {
				report.FailedRemovals = append(report.FailedRemovals, fmt.Sprintf("record %s: %v", id, err))
				continue
			}
			report.RecordsRemoved = append(report.RecordsRemoved, id)
		}
	}

	r.logger.WithFields(map[string]interface{}{
		"mode":    mode,
		"dry_run": dryRun,
		"files":   len(report.FilesRemoved),
		"records": len(report.RecordsRemoved),
		"failed":  len(report.FailedRemovals),
	}).Info("cleanup pass finished")
	return report, nil
}

// ValidCleanupModes lists the accepted cleanup path segments.
func ValidCleanupModes() string {
	return strings.Join([]string{CleanupOrphanedFiles, CleanupOrphanedRecords, CleanupFull}, ", ")
}
