package session

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethpandaops/partcache/pkg/bounds"
	"github.com/ethpandaops/partcache/pkg/catalog"
	"github.com/ethpandaops/partcache/pkg/invalidation"
	"github.com/ethpandaops/partcache/pkg/observability"
	"github.com/ethpandaops/partcache/pkg/parents"
	"github.com/ethpandaops/partcache/pkg/redis"
	"github.com/ethpandaops/partcache/pkg/relinfo"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Session owns one set of partition caches and the coordinator that invalidates them
type Session struct {
	config  *Config
	log     logrus.FieldLogger
	backend *Backend

	boundsEnabled atomic.Bool

	parents     *parents.Cache
	bounds      *bounds.Cache
	descriptors *relinfo.Cache
	coordinator *invalidation.Coordinator

	redisClient *goredis.Client
	listener    *invalidation.RedisListener
}

// NewSession creates a session reading metadata through backend
func NewSession(log logrus.FieldLogger, cfg *Config, backend *Backend) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	s := &Session{
		config:  cfg,
		log:     log.WithField("service", "session"),
		backend: backend,
	}
	s.boundsEnabled.Store(cfg.EnableBoundsCache)

	s.parents = parents.NewCache(log, backend.Catalog)
	s.bounds = bounds.NewCache(log, s.boundsEnabled.Load)
	s.descriptors = relinfo.NewCache(log, relinfo.Dependencies{
		Catalog:  backend.Catalog,
		Resolver: backend.Resolver,
		Compiler: backend.Compiler,
		Parents:  s.parents,
		Bounds:   s.bounds,
	})
	s.coordinator = invalidation.NewCoordinator(log, backend.Catalog, invalidation.Caches{
		Descriptors: s.descriptors,
		Parents:     s.parents,
		Bounds:      s.bounds,
	})

	if cfg.Redis.Enabled() {
		client, err := redis.NewClient(&cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}

		s.redisClient = client
		s.listener = invalidation.NewRedisListener(log, client, cfg.Redis.ChannelName(), cfg.Redis.Buffer)
		s.coordinator.RegisterSource(s.listener)
	}

	return s, nil
}

// Start starts the metrics server and the notification listener
func (s *Session) Start(ctx context.Context) error {
	s.log.Info("Starting partition cache session...")

	observability.StartMetricsServer(s.config.MetricsAddr)

	if s.listener != nil {
		if err := s.listener.Start(ctx); err != nil {
			return fmt.Errorf("failed to start notification listener: %w", err)
		}
	}

	s.log.WithFields(logrus.Fields{
		"bounds_cache": s.boundsEnabled.Load(),
		"notify":       s.listener != nil,
	}).Info("Partition cache session started")

	return nil
}

// Stop releases the listener, Redis client, metrics server and backend
func (s *Session) Stop() error {
	s.log.Info("Shutting down session...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stopService := func(name string, stopFunc func() error) {
		if stopFunc == nil {
			return
		}
		if err := stopFunc(); err != nil {
			s.log.WithError(err).Errorf("Failed to stop %s", name)
		}
	}

	// 1. Stop receiving notifications
	if s.listener != nil {
		stopService("notification listener", s.listener.Stop)
	}

	// 2. Close Redis (nothing is using it anymore)
	if s.redisClient != nil {
		stopService("Redis client", s.redisClient.Close)
	}

	// 3. Drop cached metadata; pinned descriptors are freed on their last release
	s.descriptors.InvalidateAll()
	s.parents.Clear()
	s.bounds.Clear()

	stopService("metrics server", func() error { return observability.StopMetricsServer(ctx) })

	if s.backend != nil {
		s.backend.Close()
	}

	return nil
}

// Backend returns the metadata collaborators of the session
func (s *Session) Backend() *Backend {
	return s.backend
}

// Descriptors returns the partition descriptor cache
func (s *Session) Descriptors() *relinfo.Cache {
	return s.descriptors
}

// Parents returns the parent-link cache
func (s *Session) Parents() *parents.Cache {
	return s.parents
}

// Bounds returns the bounds cache
func (s *Session) Bounds() *bounds.Cache {
	return s.bounds
}

// Coordinator returns the invalidation coordinator
func (s *Session) Coordinator() *invalidation.Coordinator {
	return s.coordinator
}

// Descriptor returns the published descriptor of relid pinned, never rebuilding it
func (s *Session) Descriptor(relid catalog.RelID) (*relinfo.Descriptor, bool) {
	return s.descriptors.Get(relid)
}

// Load returns the descriptor of relid pinned, building it on a miss.
// Not partitioned relations yield (nil, nil).
func (s *Session) Load(ctx context.Context, relid catalog.RelID) (*relinfo.Descriptor, error) {
	return s.descriptors.Load(ctx, relid)
}

// Release unpins a descriptor returned by Descriptor or Load
func (s *Session) Release(d *relinfo.Descriptor) {
	if d != nil {
		s.descriptors.Release(d)
	}
}

// BoundsOf returns the bounds of a partition, resolving its parent and the parent's descriptor
func (s *Session) BoundsOf(ctx context.Context, child catalog.RelID) (bounds.Entry, error) {
	parent, result, err := s.parents.GetParentOf(ctx, child)
	if err != nil {
		return bounds.Entry{}, err
	}

	if result != parents.KnownParent {
		return bounds.Entry{}, fmt.Errorf("%w: %d (%s)", bounds.ErrNotAPartition, child, result)
	}

	d, err := s.descriptors.Load(ctx, parent)
	if err != nil {
		return bounds.Entry{}, err
	}

	if d == nil {
		return bounds.Entry{}, fmt.Errorf("%w: parent %d of %d", relinfo.ErrNotPartitioned, parent, child)
	}
	defer s.descriptors.Release(d)

	return s.bounds.GetBoundsOf(child, d)
}

// SetBoundsCacheEnabled toggles the bounds cache; disabling it drops every entry
func (s *Session) SetBoundsCacheEnabled(enabled bool) {
	if s.boundsEnabled.Swap(enabled) == enabled {
		return
	}

	if !enabled {
		s.bounds.Clear()
	}

	s.log.WithField("enabled", enabled).Info("Toggled bounds cache")
}

// BoundsCacheEnabled reports whether bounds are memoized
func (s *Session) BoundsCacheEnabled() bool {
	return s.boundsEnabled.Load()
}

// Notify delivers a catalog change notification to the coordinator
func (s *Session) Notify(n invalidation.Notification) {
	s.coordinator.Notify(n)
}

// EndStatement is the safe point: queued invalidations are applied
func (s *Session) EndStatement(ctx context.Context) {
	s.coordinator.FinishDelayedInvalidation(ctx)
}
