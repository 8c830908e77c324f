package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"landmatch/server/internal/database"
	"landmatch/server/internal/matching"
	"landmatch/server/internal/models"
)

// Notifier delivers alerts for cached matches
type Notifier interface {
	DispatchPending(ctx context.Context) (int, error)
}

// RunSummary describes one full matching run
type RunSummary struct {
	Customers  int           `json:"customers"`
	Properties int           `json:"properties"`
	Matches    int           `json:"matches"`
	High       int           `json:"high"`
	Medium     int           `json:"medium"`
	Pruned     int64         `json:"pruned"`
	Notified   int           `json:"notified"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}

// Scheduler periodically rescores every customer against the available listings
type Scheduler struct {
	db       *database.Database
	engine   *matching.Engine
	notifier Notifier
	interval time.Duration
	logger   *logrus.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
	jobMutex sync.Mutex // runs never overlap
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewScheduler(db *database.Database, engine *matching.Engine, notifier Notifier, interval time.Duration, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}
	if engine == nil {
		engine = matching.NewEngine(matching.DefaultWeights())
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		db:       db,
		engine:   engine,
		notifier: notifier,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start runs a matching pass immediately and then once per interval
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.runScheduler()
}

func (s *Scheduler) runScheduler() {
	defer s.wg.Done()

	s.logger.Info("Running startup matching job")
	s.runJob()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runJob()
		}
	}
}

func (s *Scheduler) runJob() {
	summary, err := s.RunMatching(s.ctx)
	if err != nil {
		s.logger.WithError(err).Error("Scheduled matching job failed")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"customers":   summary.Customers,
		"properties":  summary.Properties,
		"matches":     summary.Matches,
		"high":        summary.High,
		"medium":      summary.Medium,
		"pruned":      summary.Pruned,
		"notified":    summary.Notified,
		"duration_ms": summary.Duration.Milliseconds(),
	}).Info("Scheduled matching job completed")
}

// RunMatching scores every customer against every available listing, refreshes the
// match cache and sends pending alerts. Concurrent calls run one after another.
func (s *Scheduler) RunMatching(ctx context.Context) (*RunSummary, error) {
	s.jobMutex.Lock()
	defer s.jobMutex.Unlock()

	summary := &RunSummary{StartedAt: time.Now()}

	conditions, err := s.db.ListConditions()
	if err != nil {
		return nil, err
	}
	properties, err := s.db.ListAvailableProperties()
	if err != nil {
		return nil, err
	}
	summary.Customers = len(conditions)
	summary.Properties = len(properties)

	results, err := s.engine.Batch(ctx, conditions, properties)
	if err != nil {
		return nil, fmt.Errorf("batch matching failed: %w", err)
	}
	summary.Matches = len(results)
	for _, r := range results {
		switch r.AlertLevel {
		case models.AlertHigh:
			summary.High++
		case models.AlertMedium:
			summary.Medium++
		}
	}

	if err := s.db.SaveMatchResults(results); err != nil {
		return nil, err
	}
	if summary.Pruned, err = s.db.PruneMatches(summary.StartedAt); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		sent, err := s.notifier.DispatchPending(ctx)
		summary.Notified = sent
		if err != nil {
			s.logger.WithError(err).Warn("Failed to dispatch match alerts")
		}
	}

	summary.Duration = time.Since(summary.StartedAt)
	return summary, nil
}

// Stop cancels a run in progress and waits for the scheduler to exit
func (s *Scheduler) Stop() {
	s.cancel()
	close(s.stopChan)
	s.wg.Wait()
}
