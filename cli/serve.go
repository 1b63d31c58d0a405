package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"notebase.evalgo.org/bus"
	"notebase.evalgo.org/common"
	"notebase.evalgo.org/db"
	"notebase.evalgo.org/embed"
	nbhttp "notebase.evalgo.org/http"
	"notebase.evalgo.org/service"
	"notebase.evalgo.org/storage"
	"notebase.evalgo.org/vector"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the HTTP API server",
	Long: `Starts the REST API: uploads, documents, sources, notebooks,
messages, and semantic search. Writes publish change events so the
indexing worker keeps the vector store in sync.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	configureLogging(cfg.Logging)
	log := common.ServiceLogger(cfg.Service.Name, cfg.Service.Version)

	ctx := context.Background()

	gdb, err := db.OpenAndMigrate(cfg.Database)
	if err != nil {
		return fmt.Errorf("database setup failed: %w", err)
	}
	defer func() { _ = db.Close(gdb) }()

	blobs, err := storage.NewBlobStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("blob store setup failed: %w", err)
	}
	if err := blobs.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("bucket setup failed: %w", err)
	}

	publisher, err := bus.NewPublisher(cfg.Bus, cfg.Retry.Bus)
	if err != nil {
		return fmt.Errorf("event publisher setup failed: %w", err)
	}
	defer publisher.Close()

	index, err := vector.NewIndex(cfg.Vector)
	if err != nil {
		return fmt.Errorf("vector index setup failed: %w", err)
	}
	defer func() { _ = index.Close() }()
	if err := index.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("vector collection setup failed: %w", err)
	}

	embedder := embed.NewOpenAIEmbedder(cfg.Embedding)

	resources := service.NewResources(gdb, blobs, publisher, nil, cfg.Limits, cfg.Retry)
	search := service.NewSearch(embedder, index)

	e := nbhttp.NewEchoServer(cfg.Server, cfg.Security)
	nbhttp.NewAPI(resources, search).RegisterRoutes(e, cfg.Server.Prefix,
		cfg.Security.JWTSecret, cfg.Service.Name, cfg.Service.Version)

	go func() {
		log.WithFields(map[string]interface{}{
			"host": cfg.Server.Host,
			"port": cfg.Server.Port,
		}).Info("api server starting")
		if err := nbhttp.StartServer(e, cfg.Server); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("api server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down api server")
	return nbhttp.GracefulShutdown(e, cfg.Server.ShutdownTimeout)
}
