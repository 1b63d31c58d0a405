package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"notebase.evalgo.org/bus"
	"notebase.evalgo.org/common"
	"notebase.evalgo.org/db"
	"notebase.evalgo.org/embed"
	"notebase.evalgo.org/service"
	"notebase.evalgo.org/storage"
	"notebase.evalgo.org/vector"
	"notebase.evalgo.org/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "run the indexing worker",
	Long: `Consumes change events from the bus, extracts and chunks content,
embeds the chunks, and maintains the vector index. Also sweeps the
document table against the blob store on the reconcile interval.`,
	RunE: runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	configureLogging(cfg.Logging)
	log := common.ServiceLogger(cfg.Service.Name+"-worker", cfg.Service.Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gdb, err := db.OpenAndMigrate(cfg.Database)
	if err != nil {
		return fmt.Errorf("database setup failed: %w", err)
	}
	defer func() { _ = db.Close(gdb) }()

	blobs, err := storage.NewBlobStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("blob store setup failed: %w", err)
	}

	index, err := vector.NewIndex(cfg.Vector)
	if err != nil {
		return fmt.Errorf("vector index setup failed: %w", err)
	}
	defer func() { _ = index.Close() }()
	if err := index.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("vector collection setup failed: %w", err)
	}

	embedder := embed.NewOpenAIEmbedder(cfg.Embedding)
	chunker := embed.NewChunker(cfg.Worker.ChunkSize, cfg.Worker.ChunkOverlap)

	dedupe := worker.NewDedupe(cfg.Worker.RedisAddr, cfg.Worker.DedupeTTL)
	defer func() { _ = dedupe.Close() }()

	indexer := worker.NewIndexer(gdb, blobs, index, embedder, chunker, nil, dedupe, cfg.Limits, cfg.Worker.TaskTimeout)

	consumer, err := bus.NewConsumer(cfg.Bus, cfg.Worker.PollInterval, cfg.Worker.BatchSize, indexer.Handle)
	if err != nil {
		return fmt.Errorf("consumer setup failed: %w", err)
	}

	// The reconciler only reads rows, blob listings and point counts, so it
	// runs without an event publisher.
	resources := service.NewResources(gdb, blobs, (*bus.Publisher)(nil), nil, cfg.Limits, cfg.Retry)
	go reconcileLoop(ctx, resources, index, cfg.Worker.ReconcileInterval, log)

	go func() {
		if err := consumer.Run(ctx); err != nil && err != context.Canceled {
			log.WithError(err).Error("consumer stopped with error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker")
	cancel()
	consumer.Stop()
	return nil
}

// reconcileLoop periodically checks cross-store consistency and reports
// drift. Repairs stay manual through the admin cleanup endpoint.
func reconcileLoop(ctx context.Context, resources *service.Resources, index *vector.Index, interval time.Duration, log *common.ContextLogger) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := resources.CheckConsistency(ctx)
			if err != nil {
				log.WithError(err).Error("consistency sweep failed")
				continue
			}
			log.WithFields(map[string]interface{}{
				"documents":        report.DocumentCount,
				"objects":          report.ObjectCount,
				"orphaned_files":   len(report.OrphanedFiles),
				"orphaned_records": len(report.OrphanedRecords),
				"consistent":       report.Consistent,
			}).Info("consistency sweep finished")

			// Rows without blobs may still hold points in the index;
			// surface those so a cleanup pass knows what it will strand.
			for _, id := range report.OrphanedRecords {
				points, err := index.CountByLogicalID(ctx, id)
				if err != nil {
					log.WithError(err).WithField("document_id", id).Warn("point count failed")
					continue
				}
				if points > 0 {
					log.WithFields(map[string]interface{}{
						"document_id": id,
						"points":      points,
					}).Warn("orphaned record still has index points")
				}
			}
		}
	}
}
