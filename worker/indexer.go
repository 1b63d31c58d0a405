// Package worker runs the indexing side of the pipeline: it consumes change
// events, extracts text, chunks, embeds, and maintains the vector index and
// the entity status columns.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"notebase.evalgo.org/bus"
	"notebase.evalgo.org/common"
	"notebase.evalgo.org/config"
	"notebase.evalgo.org/embed"
	"notebase.evalgo.org/models"
	"notebase.evalgo.org/processor"
	"notebase.evalgo.org/vector"
)

// BlobFetcher is the object store surface the indexer needs.
type BlobFetcher interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// VectorWriter is the vector index surface the indexer needs.
type VectorWriter interface {
	Upsert(ctx context.Context, idField, logicalID, ownerID string, chunks []vector.Chunk, embeddings [][]float32) error
	DeleteByLogicalID(ctx context.Context, logicalID string) error
}

// URLFetcher is the remote content surface the indexer needs.
type URLFetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// Indexer applies one change event at a time. All effects are idempotent:
// point ids are deterministic and status writes are single-row updates, so
// replays under at-least-once delivery converge.
type Indexer struct {
	db          *gorm.DB
	blobs       BlobFetcher
	index       VectorWriter
	embedder    embed.Embedder
	chunker     *embed.Chunker
	urls        URLFetcher
	dedupe      *Dedupe
	nullRatio   float64
	taskTimeout time.Duration
	logger      *common.ContextLogger
}

// NewIndexer wires the indexing pipeline. A nil dedupe disables replay
// skipping; a zero taskTimeout defaults to 300s; zero-value limits keep the
// processors' defaults.
func NewIndexer(db *gorm.DB, blobs BlobFetcher, index VectorWriter, embedder embed.Embedder, chunker *embed.Chunker, urls URLFetcher, dedupe *Dedupe, limits config.LimitsConfig, taskTimeout time.Duration) *Indexer {
	if taskTimeout <= 0 {
		taskTimeout = 300 * time.Second
	}
	if dedupe == nil {
		dedupe = &Dedupe{}
	}
	if urls == nil {
		urls = processor.NewURLProcessor(limits.URLProcessingTimeout)
	}
	return &Indexer{
		db:          db,
		blobs:       blobs,
		index:       index,
		embedder:    embedder,
		chunker:     chunker,
		urls:        urls,
		dedupe:      dedupe,
		nullRatio:   limits.MaxBinaryNullRatio,
		taskTimeout: taskTimeout,
		logger:      common.NewContextLogger(nil, map[string]interface{}{"component": "indexer"}),
	}
}

// Handle dispatches one envelope under the task timeout. A nil return
// commits the offset; an error leaves it for redelivery. Fatal conditions
// (missing rows, unextractable content) mark the entity failed and return
// nil so the partition is not blocked.
func (ix *Indexer) Handle(ctx context.Context, env bus.Envelope) error {
	if ix.dedupe.Seen(ctx, env.EntityID(), env.Version, env.Op) {
		ix.logger.WithFields(map[string]interface{}{
			"entity_id": env.EntityID(),
			"version":   env.Version,
			"op":        env.Op,
		}).Debug("skipping already applied event")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, ix.taskTimeout)
	defer cancel()

	log := ix.logger.WithFields(map[string]interface{}{
		"entity_id": env.EntityID(),
		"op":        env.Op,
	})

	var err error
	switch {
	case env.Op == bus.OpDelete:
		err = ix.index.DeleteByLogicalID(ctx, env.EntityID())
	case env.IsDocument():
		err = ix.indexDocument(ctx, env)
	default:
		err = ix.indexSource(ctx, env)
	}
	if err != nil {
		log.WithError(err).Error("event handling failed")
		return err
	}

	ix.dedupe.Mark(ctx, env.EntityID(), env.Version, env.Op)
	log.Info("event applied")
	return nil
}

// indexDocument runs the file pipeline: fetch blob, extract, chunk, embed,
// upsert under the document id.
func (ix *Indexer) indexDocument(ctx context.Context, env bus.Envelope) error {
	docID, err := uuid.Parse(env.DocumentID)
	if err != nil {
		ix.logger.WithField("document_id", env.DocumentID).Error("event carries a malformed document id")
		return nil
	}

	var doc models.Document
	err = ix.db.WithContext(ctx).Where("id = ?", docID).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Deleted between publish and consume; nothing to do.
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load document: %w", err)
	}

	ix.setDocumentStatus(ctx, doc.ID, models.StatusProcessing)

	data, err := ix.blobs.Get(ctx, doc.ObjectKey)
	if err != nil {
		return fmt.Errorf("failed to fetch blob %s: %w", doc.ObjectKey, err)
	}

	proc, err := processor.ForFilename(doc.Filename, ix.nullRatio)
	if err != nil {
		ix.failDocument(ctx, doc.ID, err)
		return nil
	}

	text, err := proc.Extract(ctx, data)
	if err != nil {
		var extraction *processor.ExtractionError
		if errors.As(err, &extraction) {
			ix.failDocument(ctx, doc.ID, err)
			return nil
		}
		return fmt.Errorf("extraction failed for %s: %w", doc.Filename, err)
	}

	chunks := ix.chunker.Split(text)
	if err := ix.upsertChunks(ctx, "document_id", doc.ID.String(), doc.OwnerID.String(), chunks, vector.Chunk{
		Filename:   doc.Filename,
		SourceType: models.SourceTypeDocument,
		Metadata:   doc.DocMetadata,
	}); err != nil {
		return err
	}

	ix.setDocumentStatus(ctx, doc.ID, models.StatusIndexed)
	if doc.SourceID != nil {
		ix.setSourceStatus(ctx, *doc.SourceID, models.StatusIndexed)
	}
	return nil
}

// indexSource runs the URL/text pipeline keyed by the source id. The row is
// re-read rather than trusting the event metadata snapshot, so the worker
// always indexes the current content.
func (ix *Indexer) indexSource(ctx context.Context, env bus.Envelope) error {
	sourceID, err := uuid.Parse(env.SourceID)
	if err != nil {
		ix.logger.WithField("source_id", env.SourceID).Error("event carries a malformed source id")
		return nil
	}

	var src models.Source
	err = ix.db.WithContext(ctx).Where("id = ?", sourceID).First(&src).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load source: %w", err)
	}

	ix.setSourceStatus(ctx, src.ID, models.StatusProcessing)

	var text, url string
	switch {
	case src.SourceType == models.SourceTypeText:
		content, ok := src.Content()
		if !ok {
			ix.failSource(ctx, src.ID, errors.New("text source without content"))
			return nil
		}
		text = content
	default:
		u, ok := src.URL()
		if !ok {
			ix.failSource(ctx, src.ID, errors.New("url source without url"))
			return nil
		}
		url = processor.NormalizeURL(u)
		text, err = ix.urls.Fetch(ctx, u)
		if err != nil {
			var extraction *processor.ExtractionError
			if errors.As(err, &extraction) {
				ix.failSource(ctx, src.ID, err)
				return nil
			}
			return fmt.Errorf("failed to fetch url for source %s: %w", src.ID, err)
		}
	}

	chunks := ix.chunker.Split(text)
	if err := ix.upsertChunks(ctx, "source_id", src.ID.String(), src.OwnerID.String(), chunks, vector.Chunk{
		URL:        url,
		SourceType: src.SourceType,
		Metadata:   src.SourceMetadata,
	}); err != nil {
		return err
	}

	ix.setSourceStatus(ctx, src.ID, models.StatusIndexed)
	return nil
}

// upsertChunks embeds and writes the chunk set. Zero chunks is not an
// error; the entity simply indexes empty and retrieval finds nothing.
func (ix *Indexer) upsertChunks(ctx context.Context, idField, logicalID, ownerID string, chunks []embed.TextChunk, template vector.Chunk) error {
	if len(chunks) == 0 {
		ix.logger.WithField(idField, logicalID).Warn("no extractable text, indexing empty")
		return nil
	}

	texts := make([]string, len(chunks))
	points := make([]vector.Chunk, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
		point := template
		point.Text = c.Text
		point.Index = c.Index
		points[i] = point
	}

	embeddings, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding failed for %s: %w", logicalID, err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count mismatch for %s: %d != %d", logicalID, len(embeddings), len(chunks))
	}

	if err := ix.index.Upsert(ctx, idField, logicalID, ownerID, points, embeddings); err != nil {
		return fmt.Errorf("vector upsert failed for %s: %w", logicalID, err)
	}
	return nil
}

func (ix *Indexer) failDocument(ctx context.Context, id uuid.UUID, reason error) {
	ix.logger.WithError(reason).WithField("document_id", id).Error("document processing failed permanently")
	ix.setDocumentStatus(ctx, id, models.StatusFailed)
}

func (ix *Indexer) failSource(ctx context.Context, id uuid.UUID, reason error) {
	ix.logger.WithError(reason).WithField("source_id", id).Error("source processing failed permanently")
	ix.setSourceStatus(ctx, id, models.StatusFailed)
}

func (ix *Indexer) setDocumentStatus(ctx context.Context, id uuid.UUID, status string) {
	err := ix.db.WithContext(ctx).Model(&models.Document{}).
		Where("id = ?", id).Update("status", status).Error
	if err != nil {
		ix.logger.WithError(err).WithField("document_id", id).Error("status update failed")
	}
}

func (ix *Indexer) setSourceStatus(ctx context.Context, id uuid.UUID, status string) {
	err := ix.db.WithContext(ctx).Model(&models.Source{}).
		Where("id = ?", id).Update("status", status).Error
	if err != nil {
		ix.logger.WithError(err).WithField("source_id", id).Error("status update failed")
	}
}
