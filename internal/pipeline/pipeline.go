// Package pipeline persists extracted records into the catalog. Each record
// runs in its own transaction, so one failure never affects another.
package pipeline

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/crawler"
	"github.com/JakeFAU/catalog-scraper/internal/extract"
	"github.com/JakeFAU/catalog-scraper/internal/metrics"
	"github.com/JakeFAU/catalog-scraper/internal/storage"
)

// Outcome is the result of processing one record.
type Outcome string

// Possible outcomes.
const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeDropped   Outcome = "dropped"
	OutcomeError     Outcome = "error"
)

// Counters tally outcomes for one run.
type Counters struct {
	Created   int
	Updated   int
	Unchanged int
	Dropped   int
	Errors    int
}

// Options configure a Pipeline.
type Options struct {
	Site string
	// DedupEnabled keys rows by (source_url, store_id); otherwise every
	// record is inserted.
	DedupEnabled bool
	// UpdateExisting rewrites changed fields of an existing row.
	UpdateExisting bool
	Clock          crawler.Clock
	Logger         *zap.Logger
}

// Pipeline validates, deduplicates and writes records.
type Pipeline struct {
	catalog storage.Catalog
	opts    Options
	clock   crawler.Clock
	logger  *zap.Logger

	mu       sync.Mutex
	stores   map[int64]bool
	counters Counters
}

// New builds a Pipeline over catalog.
func New(catalog storage.Catalog, opts Options) *Pipeline {
	clock := opts.Clock
	if clock == nil {
		clock = crawler.SystemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		catalog: catalog,
		opts:    opts,
		clock:   clock,
		logger:  logger.Named("pipeline").With(zap.String("site", opts.Site)),
		stores:  make(map[int64]bool),
	}
}

// Process persists rec and reports what happened.
func (p *Pipeline) Process(ctx context.Context, rec crawler.ExtractedRecord) Outcome {
	outcome := p.process(ctx, rec)
	p.tally(outcome)
	return outcome
}

// Known records an item the admission filter recognised as already
// persisted. It counts as unchanged without touching the catalog.
func (p *Pipeline) Known() {
	p.tally(OutcomeUnchanged)
}

func (p *Pipeline) tally(outcome Outcome) {
	p.mu.Lock()
	switch outcome {
	case OutcomeCreated:
		p.counters.Created++
	case OutcomeUpdated:
		p.counters.Updated++
	case OutcomeUnchanged:
		p.counters.Unchanged++
	case OutcomeDropped:
		p.counters.Dropped++
	case OutcomeError:
		p.counters.Errors++
	}
	p.mu.Unlock()
	metrics.ObserveOutcome(p.opts.Site, string(outcome))
}

// Counters returns a snapshot of the outcome counts.
func (p *Pipeline) Counters() Counters {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counters
}

func (p *Pipeline) process(ctx context.Context, rec crawler.ExtractedRecord) Outcome {
	logger := p.logger.With(zap.String("url", rec.SourceURL))
	rec.Name = strings.TrimSpace(rec.Name)
	if rec.Name == "" || rec.StoreID <= 0 || rec.SourceURL == "" {
		logger.Info("dropping incomplete record", zap.Int64("store_id", rec.StoreID))
		return OutcomeDropped
	}
	exists, err := p.storeExists(ctx, rec.StoreID)
	if err != nil {
		logger.Error("store lookup failed", zap.Int64("store_id", rec.StoreID), zap.Error(err))
		return OutcomeError
	}
	if !exists {
		logger.Warn("dropping record for unknown store", zap.Int64("store_id", rec.StoreID))
		return OutcomeDropped
	}
	rec.Price = extract.SanitizePrice(rec.Price)

	tx, err := p.catalog.Begin(ctx)
	if err != nil {
		logger.Error("begin failed", zap.Error(err))
		return OutcomeError
	}
	outcome, err := p.write(ctx, tx, rec)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			logger.Warn("rollback failed", zap.Error(rbErr))
		}
		logger.Error("persisting record failed", zap.Error(err))
		return OutcomeError
	}
	logger.Debug("record persisted", zap.String("outcome", string(outcome)))
	return outcome
}

// write runs inside tx and commits it unless it returns an error.
func (p *Pipeline) write(ctx context.Context, tx storage.CatalogTx, rec crawler.ExtractedRecord) (Outcome, error) {
	if p.opts.DedupEnabled {
		existing, err := tx.FindProduct(ctx, rec.SourceURL, rec.StoreID)
		switch {
		case err == nil:
			return p.reconcile(ctx, tx, existing, rec)
		case !errors.Is(err, storage.ErrNotFound):
			return "", err
		}
	}

	now := p.clock.Now()
	if _, err := tx.InsertProduct(ctx, storage.Product{
		StoreID:     rec.StoreID,
		Name:        rec.Name,
		Price:       rec.Price,
		Description: rec.Description,
		ImageURL:    rec.ImageURL,
		SourceURL:   rec.SourceURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return OutcomeCreated, nil
}

func (p *Pipeline) reconcile(
	ctx context.Context,
	tx storage.CatalogTx,
	existing storage.Product,
	rec crawler.ExtractedRecord,
) (Outcome, error) {
	changes := diff(existing, rec)
	if !p.opts.UpdateExisting || len(changes) == 0 {
		if err := tx.Rollback(ctx); err != nil {
			return "", err
		}
		return OutcomeUnchanged, nil
	}
	if err := tx.UpdateProduct(ctx, existing.ID, changes, p.clock.Now()); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return OutcomeUpdated, nil
}

// diff lists the columns rec would change. Optional fields the page did not
// yield leave the stored value alone.
func diff(existing storage.Product, rec crawler.ExtractedRecord) []storage.Change {
	var changes []storage.Change
	if rec.Name != existing.Name {
		changes = append(changes, storage.Change{Column: storage.ColumnName, Value: rec.Name})
	}
	if rec.Price != nil && (existing.Price == nil || math.Abs(*rec.Price-*existing.Price) >= 0.005) {
		changes = append(changes, storage.Change{Column: storage.ColumnPrice, Value: rec.Price})
	}
	if rec.Description != "" && rec.Description != existing.Description {
		changes = append(changes, storage.Change{Column: storage.ColumnDescription, Value: rec.Description})
	}
	if rec.ImageURL != "" && rec.ImageURL != existing.ImageURL {
		changes = append(changes, storage.Change{Column: storage.ColumnImageURL, Value: rec.ImageURL})
	}
	return changes
}

func (p *Pipeline) storeExists(ctx context.Context, storeID int64) (bool, error) {
	p.mu.Lock()
	known, ok := p.stores[storeID]
	p.mu.Unlock()
	if ok {
		return known, nil
	}
	exists, err := p.catalog.StoreExists(ctx, storeID)
	if err != nil {
		return false, err
	}
	p.mu.Lock()
	p.stores[storeID] = exists
	p.mu.Unlock()
	return exists, nil
}
