package gazetteer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultVersion is the catalog version used when none is configured.
const DefaultVersion = "2024-01"

// DefaultMinimumRecords rejects sample payloads: Brazil has 5570
// municipalities, so anything far below that is a truncated fixture.
const DefaultMinimumRecords = 5000

// ErrCatalogNotFound is the fatal condition: no usable payload anywhere.
var ErrCatalogNotFound = eris.New("gazetteer: catalog not found")

// LoadOptions controls one catalog load.
type LoadOptions struct {
	Version            string
	PrimarySource      string
	EnsureComplete     bool
	MinimumRecordCount int
	ForceRefresh       bool
}

func (o LoadOptions) withDefaults() LoadOptions {
	if o.Version == "" {
		o.Version = DefaultVersion
	}
	if o.PrimarySource == "" {
		o.PrimarySource = KindIBGE
	}
	if o.MinimumRecordCount <= 0 {
		o.MinimumRecordCount = DefaultMinimumRecords
	}
	return o
}

// Loader resolves versioned catalog payloads through a cascade of backends:
// in-process TTL cache, injected Storage, local versioned file, remote
// refresh. A failed refresh degrades to the last good payload instead of
// failing in-flight enrichment.
type Loader struct {
	dataDir string
	fetcher *Fetcher
	storage Storage
	memory  *gocache.Cache
	group   singleflight.Group
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithStorage injects a persistent catalog backend tried before the local
// file.
func WithStorage(storage Storage) LoaderOption {
	return func(l *Loader) { l.storage = storage }
}

// WithFetcher overrides the remote fetcher used for refreshes.
func WithFetcher(fetcher *Fetcher) LoaderOption {
	return func(l *Loader) { l.fetcher = fetcher }
}

// WithMemoryTTL sets the in-process payload cache TTL.
func WithMemoryTTL(ttl time.Duration) LoaderOption {
	return func(l *Loader) { l.memory = gocache.New(ttl, 2*ttl) }
}

// NewLoader creates a Loader with its file cache rooted at dataDir.
func NewLoader(dataDir string, opts ...LoaderOption) *Loader {
	l := &Loader{
		dataDir: dataDir,
		fetcher: NewFetcher(DefaultSources()),
		memory:  gocache.New(time.Hour, 2*time.Hour),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CachePath returns the local file path holding the given catalog version.
func (l *Loader) CachePath(version string) string {
	return filepath.Join(l.dataDir, fmt.Sprintf("municipios_br_%s.json", version))
}

// Load resolves the payload for opts.Version. Returns ErrCatalogNotFound
// only when no backend holds a usable payload and refresh fails too.
func (l *Loader) Load(ctx context.Context, opts LoadOptions) (*Payload, error) {
	opts = opts.withDefaults()
	log := zap.L().With(
		zap.String("component", "gazetteer.loader"),
		zap.String("version", opts.Version),
	)

	if !opts.ForceRefresh {
		if cached, ok := l.memory.Get(opts.Version); ok {
			return cached.(*Payload), nil
		}
	}

	// A previously seen but incomplete payload is kept as the degradation
	// target for a failed refresh.
	var sample *Payload

	if !opts.ForceRefresh {
		if payload := l.loadStored(ctx, opts, log); payload != nil {
			if l.complete(payload, opts) {
				return l.admit(opts.Version, payload), nil
			}
			sample = payload
		}
	}

	payload, err := l.refresh(ctx, opts)
	if err == nil {
		return l.admit(opts.Version, payload), nil
	}

	if sample != nil {
		log.Warn("catalog refresh failed, using previous payload",
			zap.Int("records", len(sample.Data)),
			zap.Error(err),
		)
		return l.admit(opts.Version, sample), nil
	}

	log.Error("catalog unavailable", zap.Error(err))
	return nil, eris.Wrapf(ErrCatalogNotFound, "version %s", opts.Version)
}

// loadStored tries the injected storage backend, then the local file.
func (l *Loader) loadStored(ctx context.Context, opts LoadOptions, log *zap.Logger) *Payload {
	if l.storage != nil {
		payload, err := l.storage.Load(ctx, opts.Version)
		if err == nil && payload != nil && len(payload.Data) > 0 {
			log.Debug("catalog served from storage", zap.Int("records", len(payload.Data)))
			return payload
		}
		if err != nil && !eris.Is(err, ErrNotFound) {
			log.Warn("catalog storage load failed", zap.Error(err))
		}
	}

	path := l.CachePath(opts.Version)
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("catalog file unreadable", zap.String("path", path), zap.Error(err))
		}
		return nil
	}

	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Warn("catalog file corrupt", zap.String("path", path), zap.Error(err))
		return nil
	}
	log.Debug("catalog served from file", zap.String("path", path), zap.Int("records", len(payload.Data)))
	return &payload
}

func (l *Loader) complete(payload *Payload, opts LoadOptions) bool {
	if !opts.EnsureComplete {
		return len(payload.Data) > 0
	}
	return len(payload.Data) >= opts.MinimumRecordCount
}

// refresh fetches from remote sources and persists the new payload.
// Concurrent refreshes of the same version are collapsed into one flight.
func (l *Loader) refresh(ctx context.Context, opts LoadOptions) (*Payload, error) {
	result, err, _ := l.group.Do(opts.Version, func() (any, error) {
		records, effectiveSource, err := l.fetcher.Fetch(ctx, opts.PrimarySource)
		if err != nil {
			return nil, err
		}

		checksum, err := Checksum(records)
		if err != nil {
			return nil, err
		}

		payload := &Payload{
			Metadata: Metadata{
				Version:       opts.Version,
				PrimarySource: opts.PrimarySource,
				Source:        effectiveSource,
				DownloadedAt:  time.Now().UTC().Format("2006-01-02T15:04:05Z"),
				RecordCount:   len(records),
				Checksum:      checksum,
			},
			Data: records,
		}

		l.persist(ctx, opts.Version, payload)
		return payload, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Payload), nil
}

// persist writes the payload to the local file and back into storage.
// Persistence failures are logged, never fatal: the in-memory payload is
// already usable.
func (l *Loader) persist(ctx context.Context, version string, payload *Payload) {
	log := zap.L().With(
		zap.String("component", "gazetteer.loader"),
		zap.String("version", version),
	)

	if err := os.MkdirAll(l.dataDir, 0o755); err != nil {
		log.Warn("create catalog dir failed", zap.Error(err))
	} else {
		raw, err := json.MarshalIndent(payload, "", "  ")
		if err == nil {
			err = os.WriteFile(l.CachePath(version), append(raw, '\n'), 0o644)
		}
		if err != nil {
			log.Warn("write catalog file failed", zap.Error(err))
		}
	}

	if l.storage != nil {
		if err := l.storage.Save(ctx, version, payload); err != nil {
			log.Warn("save catalog to storage failed", zap.Error(err))
		}
	}
}

// admit enriches derived fields and caches the payload in memory.
func (l *Loader) admit(version string, payload *Payload) *Payload {
	Enrich(payload)
	l.memory.Set(version, payload, gocache.DefaultExpiration)
	return payload
}
