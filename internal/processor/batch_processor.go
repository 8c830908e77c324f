package processor

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"landmatch/server/config"
	"landmatch/server/internal/database"
	"landmatch/server/internal/matching"
	"landmatch/server/internal/models"
	"landmatch/server/internal/queue"
)

// Transactor runs fc in a database transaction; *gorm.DB satisfies it
type Transactor interface {
	Transaction(fc func(tx *gorm.DB) error, opts ...*sql.TxOptions) error
}

// MatchStore provides the customers to match new listings against and keeps the results
type MatchStore interface {
	ListConditions() ([]*models.LandConditions, error)
	SaveMatchResults(results []models.MatchResult) error
	ClearStaleMatches(propertyIDs []string, keep []models.MatchResult) (int64, error)
}

// Dispatcher delivers alerts for freshly cached matches
type Dispatcher interface {
	DispatchPending(ctx context.Context) (int, error)
}

// BatchProcessor stores incoming listing batches and scores them against every
// customer's conditions.
type BatchProcessor struct {
	db         Transactor
	store      MatchStore
	engine     *matching.Engine
	dispatcher Dispatcher
	logger     *logrus.Logger
	config     *config.Config
	queue      *queue.PropertyQueue
	jobs       chan []*models.LandProperty
	waitGroup  sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewBatchProcessor(db Transactor, store MatchStore, engine *matching.Engine, queue *queue.PropertyQueue, config *config.Config, logger *logrus.Logger) *BatchProcessor {
	if logger == nil {
		logger = logrus.New()
	}
	if engine == nil {
		engine = matching.NewEngine(matching.DefaultWeights())
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BatchProcessor{
		db:     db,
		store:  store,
		engine: engine,
		queue:  queue,
		config: config,
		logger: logger,
		jobs:   make(chan []*models.LandProperty),
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetDispatcher enables alert delivery after each processed batch
func (p *BatchProcessor) SetDispatcher(d Dispatcher) {
	p.dispatcher = d
}

// Start subscribes to the queue and starts the configured number of workers
func (p *BatchProcessor) Start() {
	workers := p.config.BatchProcessing.ProcessorCount
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		p.waitGroup.Add(1)
		go p.processLoop()
	}

	p.queue.Subscribe(func(batch []*models.LandProperty) error {
		select {
		case p.jobs <- batch:
			return nil
		case <-p.ctx.Done():
			return fmt.Errorf("processor stopped, dropped batch of %d properties", len(batch))
		}
	})
}

// Stop cancels in-flight work and waits for the workers to exit
func (p *BatchProcessor) Stop() {
	p.cancel()
	p.waitGroup.Wait()
}

func (p *BatchProcessor) processLoop() {
	defer p.waitGroup.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case batch := <-p.jobs:
			if err := p.processBatch(batch); err != nil {
				p.logger.WithError(err).WithField("batch_size", len(batch)).Error("Failed to process property batch")
			}
		}
	}
}

// processBatch upserts a batch with retries, then matches it
func (p *BatchProcessor) processBatch(batch []*models.LandProperty) error {
	if err := p.storeBatch(batch); err != nil {
		return err
	}
	return p.matchBatch(batch)
}

func (p *BatchProcessor) storeBatch(batch []*models.LandProperty) error {
	attempts := p.config.BatchProcessing.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			p.logger.Infof("Retrying batch processing, attempt %d of %d", attempt, attempts)
			select {
			case <-time.After(time.Duration(p.config.BatchProcessing.RetryDelay) * time.Second):
			case <-p.ctx.Done():
				return fmt.Errorf("batch processing cancelled: %w", p.ctx.Err())
			}
		}

		err = p.db.Transaction(func(tx *gorm.DB) error {
			if err := database.UpsertProperties(tx, batch); err != nil {
				return fmt.Errorf("failed to upsert properties batch: %w", err)
			}
			return nil
		})

		if err == nil {
			p.logger.Infof("Successfully stored batch of %d properties", len(batch))
			return nil
		}

		p.logger.Errorf("Batch processing failed: %v", err)
	}

	return fmt.Errorf("failed to process batch after %d attempts: %w", attempts, err)
}

// matchBatch scores the stored listings against every customer and caches the
// results that reach the medium threshold.
func (p *BatchProcessor) matchBatch(batch []*models.LandProperty) error {
	if p.store == nil {
		return nil
	}

	conditions, err := p.store.ListConditions()
	if err != nil {
		return fmt.Errorf("failed to load conditions: %w", err)
	}
	if len(conditions) == 0 {
		return nil
	}

	results, err := p.engine.Batch(p.ctx, conditions, batch)
	if err != nil {
		return fmt.Errorf("failed to match batch: %w", err)
	}
	if err := p.store.SaveMatchResults(results); err != nil {
		return err
	}

	// Listings re-ingested as unavailable or now below the threshold lose their cached pairs
	ids := make([]string, 0, len(batch))
	for _, prop := range batch {
		ids = append(ids, prop.ID)
	}
	cleared, err := p.store.ClearStaleMatches(ids, results)
	if err != nil {
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"properties": len(batch),
		"customers":  len(conditions),
		"matches":    len(results),
		"cleared":    cleared,
	}).Info("Matched new properties")

	if p.dispatcher != nil && len(results) > 0 {
		if _, err := p.dispatcher.DispatchPending(p.ctx); err != nil {
			p.logger.WithError(err).Warn("Failed to dispatch match alerts")
		}
	}
	return nil
}
