package service

import (
	"context"
	"time"

	"gorm.io/gorm"

	"notebase.evalgo.org/bus"
	"notebase.evalgo.org/common"
	"notebase.evalgo.org/config"
	"notebase.evalgo.org/storage"
)

// BlobGateway is the object store surface the service depends on.
type BlobGateway interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Bucket() string
}

// EventPublisher is the bus surface the service depends on. Both methods
// report success as a bool; a failed publish never fails the write path.
type EventPublisher interface {
	PublishDocumentEvent(ctx context.Context, event bus.DocumentEvent) bool
	PublishURLSourceEvent(ctx context.Context, event bus.URLSourceEvent) bool
}

// Resources bundles the dependencies shared by the resource operations.
type Resources struct {
	db     *gorm.DB
	blobs  BlobGateway
	events EventPublisher
	gate   RateLimiter
	limits config.LimitsConfig
	retry  config.RetryConfig
	logger *common.ContextLogger
}

// NewResources wires the resource service. A nil gate defaults to the
// DB-backed processing counter.
func NewResources(db *gorm.DB, blobs BlobGateway, events EventPublisher, gate RateLimiter, limits config.LimitsConfig, retry config.RetryConfig) *Resources {
	if gate == nil {
		gate = NewDBRateLimiter(db, limits.MaxConcurrentProcessingPerUser)
	}
	return &Resources{
		db:     db,
		blobs:  blobs,
		events: events,
		gate:   gate,
		limits: limits,
		retry:  retry,
		logger: common.NewContextLogger(nil, map[string]interface{}{"component": "resource-service"}),
	}
}

// BucketName exposes the content bucket for response payloads.
func (r *Resources) BucketName() string {
	return r.blobs.Bucket()
}

// withRetry runs fn with exponential backoff per the given class. The last
// error is returned after the attempt budget is spent.
func withRetry(ctx context.Context, class config.RetryClassConfig, fn func() error) error {
	attempts := class.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := class.BaseDelay
	if delay <= 0 {
		delay = time.Second
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if class.MaxDelay > 0 && delay > class.MaxDelay {
			delay = class.MaxDelay
		}
	}
	return err
}
