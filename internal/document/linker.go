// Package document resolves the most recent document metadata for a user.
package document

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"kycore/internal/document/models"
	"kycore/internal/document/store"
	"kycore/internal/platform/metrics"
	"kycore/internal/platform/redis"
	"kycore/pkg/platform/sentinel"
)

const cacheKeyPrefix = "kycore:doc:latest:"

// Linker is a best-effort, read-only lookup of a user's latest document.
// Lookups never fail the caller's critical path; a missing document is
// (nil, nil) and infrastructure failures surface as errors the caller is
// expected to downgrade.
type Linker struct {
	store    store.Store
	cache    *redis.Client
	cacheTTL time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Option configures the Linker.
type Option func(*Linker)

// WithCache enables a read-through Redis cache with the given TTL.
func WithCache(client *redis.Client, ttl time.Duration) Option {
	return func(l *Linker) {
		if client != nil && ttl > 0 {
			l.cache = client
			l.cacheTTL = ttl
		}
	}
}

// WithMetrics sets the metrics instance for cache observability.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Linker) {
		l.metrics = m
	}
}

func NewLinker(st store.Store, logger *slog.Logger, opts ...Option) *Linker {
	l := &Linker{store: st, logger: logger}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LatestDocumentFor returns the user's most recent document, or nil when
// the user has none.
func (l *Linker) LatestDocumentFor(ctx context.Context, email string) (*models.Summary, error) {
	if email == "" {
		return nil, nil
	}

	if doc, ok := l.cacheGet(ctx, email); ok {
		return doc, nil
	}

	doc, err := l.store.LatestByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	l.cacheSet(ctx, email, doc)
	return doc, nil
}

// cacheGet reads the cached summary. Cache failures are logged and treated
// as misses.
func (l *Linker) cacheGet(ctx context.Context, email string) (*models.Summary, bool) {
	if l.cache == nil {
		return nil, false
	}

	payload, err := l.cache.Get(ctx, cacheKeyPrefix+email).Bytes()
	if err != nil {
		if !isCacheMiss(err) && l.logger != nil {
			l.logger.Warn("document cache read failed", "error", err)
		}
		l.incrementCacheMisses()
		return nil, false
	}

	var doc models.Summary
	if err := json.Unmarshal(payload, &doc); err != nil {
		if l.logger != nil {
			l.logger.Warn("document cache entry corrupt, ignoring", "error", err)
		}
		l.incrementCacheMisses()
		return nil, false
	}

	l.incrementCacheHits()
	return &doc, true
}

func (l *Linker) cacheSet(ctx context.Context, email string, doc *models.Summary) {
	if l.cache == nil || doc == nil {
		return
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return
	}
	if err := l.cache.Set(ctx, cacheKeyPrefix+email, payload, l.cacheTTL).Err(); err != nil {
		if l.logger != nil {
			l.logger.Warn("document cache write failed", "error", err)
		}
	}
}

func isCacheMiss(err error) bool {
	return errors.Is(err, goredis.Nil)
}

func (l *Linker) incrementCacheHits() {
	if l.metrics != nil {
		l.metrics.IncrementDocumentCacheHits()
	}
}

func (l *Linker) incrementCacheMisses() {
	if l.metrics != nil {
		l.metrics.IncrementDocumentCacheMisses()
	}
}
