// Package knowledge provides the read-only knowledge base repository that
// grounds plan generation: verified product facts and historical ad metrics.
//
// The knowledge base is loaded lazily on first use and then kept for the
// lifetime of the Repository. Concurrent first calls share a single load
// (singleflight); there is no reload or invalidation path. A failed load is
// not cached, so the next caller tries again.
package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/radicai/ad-agent-api/pkg/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// ErrLoad is returned (wrapped) when the knowledge base cannot be read or parsed.
var ErrLoad = errors.New("knowledge base unavailable")

// LoadFunc produces a knowledge base. It is called at most once per
// successful Repository lifetime.
type LoadFunc func(ctx context.Context) (*models.KnowledgeBase, error)

// Repository caches the knowledge base after the first successful load.
// The returned *models.KnowledgeBase is shared and must not be mutated.
type Repository struct {
	load   LoadFunc
	source string

	flight singleflight.Group
	mu     sync.RWMutex
	kb     *models.KnowledgeBase

	loads atomic.Int64
}

// NewRepository creates a repository backed by an arbitrary loader.
func NewRepository(source string, load LoadFunc) *Repository {
	return &Repository{load: load, source: source}
}

// NewFileRepository creates a repository that reads a JSON document
// `{ "products": [...], "ad_metrics": [...] }` from path.
func NewFileRepository(path string) *Repository {
	return NewRepository(path, FileLoader(path))
}

// NewStaticRepository wraps an already-built knowledge base.
func NewStaticRepository(kb *models.KnowledgeBase) *Repository {
	r := &Repository{source: "static"}
	r.kb = kb
	return r
}

// FileLoader returns a LoadFunc reading and decoding the file at path.
func FileLoader(path string) LoadFunc {
	return func(ctx context.Context) (*models.KnowledgeBase, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", ErrLoad, path, err)
		}
		return Decode(data)
	}
}

// Decode parses a knowledge base document.
func Decode(data []byte) (*models.KnowledgeBase, error) {
	var kb models.KnowledgeBase
	if err := json.Unmarshal(data, &kb); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrLoad, err)
	}
	if kb.Products == nil {
		kb.Products = []models.ProductFact{}
	}
	if kb.AdMetrics == nil {
		kb.AdMetrics = []models.AdMetric{}
	}
	return &kb, nil
}

// Get returns the cached knowledge base, loading it on first use.
func (r *Repository) Get(ctx context.Context) (*models.KnowledgeBase, error) {
	if kb := r.cached(); kb != nil {
		return kb, nil
	}
	if r.load == nil {
		return nil, fmt.Errorf("%w: no loader configured", ErrLoad)
	}

	v, err, _ := r.flight.Do("kb", func() (interface{}, error) {
		// Another caller may have finished loading while we waited.
		if kb := r.cached(); kb != nil {
			return kb, nil
		}
		r.loads.Add(1)
		kb, err := r.load(ctx)
		if err != nil {
			log.Error().Err(err).Str("source", r.source).Msg("Knowledge base load failed")
			return nil, err
		}
		r.mu.Lock()
		r.kb = kb
		r.mu.Unlock()

		log.Info().
			Str("source", r.source).
			Int("products", len(kb.Products)).
			Int("ad_metrics", len(kb.AdMetrics)).
			Msg("📚 Knowledge base loaded")
		return kb, nil
	})
	if err != nil {
		if !errors.Is(err, ErrLoad) {
			err = fmt.Errorf("%w: %w", ErrLoad, err)
		}
		return nil, err
	}
	return v.(*models.KnowledgeBase), nil
}

// Loaded reports whether the knowledge base has been loaded.
func (r *Repository) Loaded() bool {
	return r.cached() != nil
}

// LoadCount returns how many times the underlying loader ran.
func (r *Repository) LoadCount() int64 {
	return r.loads.Load()
}

// Source describes where the knowledge base comes from.
func (r *Repository) Source() string {
	return r.source
}

func (r *Repository) cached() *models.KnowledgeBase {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.kb
}
