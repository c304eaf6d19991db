package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/custodia-labs/ephemera/internal/adapters/driven/ai"
	"github.com/custodia-labs/ephemera/internal/adapters/driven/config/file"
	"github.com/custodia-labs/ephemera/internal/adapters/driven/extraction/html"
	"github.com/custodia-labs/ephemera/internal/adapters/driven/extraction/pdf"
	"github.com/custodia-labs/ephemera/internal/adapters/driven/extraction/plaintext"
	prommetrics "github.com/custodia-labs/ephemera/internal/adapters/driven/metrics/prometheus"
	"github.com/custodia-labs/ephemera/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ephemera/internal/adapters/driven/storage/postgres"
	"github.com/custodia-labs/ephemera/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/ephemera/internal/core/domain"
	"github.com/custodia-labs/ephemera/internal/core/ports/driven"
	"github.com/custodia-labs/ephemera/internal/core/ports/driving"
	"github.com/custodia-labs/ephemera/internal/core/services"
	"github.com/custodia-labs/ephemera/internal/logger"
	"github.com/custodia-labs/ephemera/internal/segmenter"
)

// schedulerRunner runs the expiry sweep in the background or on demand.
// *services.Scheduler satisfies it.
type schedulerRunner interface {
	driving.TaskRunner
	Start(ctx context.Context) error
	Stop() error
}

// Services used by the commands. They are built lazily from configuration
// on first use; tests assign them directly.
var (
	configStore     driven.ConfigStore
	settingsService driving.SettingsService
	ingestService   driving.IngestService
	searchService   driving.SearchService
	storeService    driving.EphemeralStore
	scheduler       schedulerRunner
	metricsHandler  http.Handler

	// runtimeClosers release what ensureRuntime opened, in reverse order.
	runtimeClosers []func() error
	runtimeBuilt   bool
)

// ensureSettings opens the TOML config store.
func ensureSettings() error {
	if settingsService != nil {
		return nil
	}
	store, err := file.NewConfigStore(configDir)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	configStore = store
	settingsService = services.NewSettingsService(store)
	return nil
}

// ensureRuntime builds storage, the embedding provider and the services.
func ensureRuntime(ctx context.Context) error {
	if ingestService != nil && searchService != nil && storeService != nil && scheduler != nil {
		return nil
	}
	if err := ensureSettings(); err != nil {
		return err
	}

	settings, err := settingsService.Get()
	if settings == nil {
		return err
	}
	if err != nil {
		logger.Warn("ignoring invalid settings: %v", err)
	}
	if err := settingsService.Validate(settings); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}

	vectors, schedStore, err := openStorage(ctx, settings.Storage)
	if err != nil {
		return err
	}

	provider, err := ai.CreateEmbeddingProvider(&settings.Embedding)
	if err != nil {
		return errors.Join(err, closeRuntime())
	}
	if provider == nil {
		return errors.Join(
			fmt.Errorf("%w: embedding provider %q is not configured", domain.ErrInvalidRequest, settings.Embedding.Provider),
			closeRuntime(),
		)
	}
	runtimeClosers = append(runtimeClosers, provider.Close)

	metrics := prommetrics.New()
	embedder := services.NewEmbedder(provider,
		services.WithBatchSize(settings.Embedding.BatchSize),
		services.WithCallTimeout(settings.Embedding.Timeout),
		services.WithRateLimit(settings.Embedding.RequestsPerSecond),
		services.WithDimensionSource(vectors),
	)
	manager := services.NewStoreManager(vectors,
		services.WithTTL(settings.Retention.TTL),
		services.WithStoreMetrics(metrics),
	)
	seg := segmenter.New(
		segmenter.WithTargetTokens(settings.Segmenter.TargetTokens),
		segmenter.WithOverlapTokens(settings.Segmenter.OverlapTokens),
		segmenter.WithMinTokens(settings.Segmenter.MinTokens),
	)

	ingestService = services.NewIngestor(seg, embedder, manager,
		services.WithExtractor(pdf.New()),
		services.WithExtractor(html.New()),
		services.WithExtractor(plaintext.New()),
		services.WithIngestTimeouts(settings.Ingest.ExtractTimeout, settings.Ingest.Timeout),
		services.WithIngestMetrics(metrics),
	)
	searchService = services.NewRetrievalEngine(embedder, vectors, manager,
		services.WithSearchDefaults(settings.Search.Threshold, settings.Search.Limit),
		services.WithSearchMetrics(metrics),
	)
	storeService = manager

	schedCfg := domain.DefaultSchedulerConfig()
	schedCfg.Tasks[domain.TaskIDExpirySweep] = domain.TaskConfig{
		Enabled:  true,
		Interval: settings.Retention.SweepInterval,
	}
	scheduler = services.NewScheduler(schedCfg, schedStore, manager)
	metricsHandler = metrics.Handler()
	runtimeBuilt = true

	logger.Debug("runtime ready: storage=%s provider=%s model=%s",
		settings.Storage.Driver, settings.Embedding.Provider, provider.ModelName())
	return nil
}

// openStorage opens the configured vector store and a scheduler store.
// Postgres keeps no task history, so it pairs with the in-memory scheduler store.
func openStorage(ctx context.Context, cfg domain.StorageSettings) (driven.VectorStore, driven.SchedulerStore, error) {
	switch cfg.Driver {
	case domain.StorageSQLite, "":
		dir := cfg.Path
		if dir == "" && configDir != "" {
			dir = filepath.Join(configDir, "data")
		}
		store, err := sqlite.NewStore(dir)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: open sqlite: %w", domain.ErrStoreWriteFailed, err)
		}
		runtimeClosers = append(runtimeClosers, store.Close)
		return store.VectorStore(), store.SchedulerStore(), nil

	case domain.StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		runtimeClosers = append(runtimeClosers, store.Close)
		return store, memory.NewSchedulerStore(), nil

	case domain.StorageMemory:
		return memory.NewVectorStore(), memory.NewSchedulerStore(), nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown storage driver %q", domain.ErrInvalidRequest, cfg.Driver)
	}
}

// closeRuntime releases everything ensureRuntime opened and forgets the
// services it built. Injected services are left alone.
func closeRuntime() error {
	var errs []error
	for i := len(runtimeClosers) - 1; i >= 0; i-- {
		if err := runtimeClosers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	runtimeClosers = nil

	if runtimeBuilt {
		ingestService = nil
		searchService = nil
		storeService = nil
		scheduler = nil
		metricsHandler = nil
		runtimeBuilt = false
	}
	return errors.Join(errs...)
}
