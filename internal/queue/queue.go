package queue

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"landmatch/server/internal/models"
)

var (
	ErrQueueFull   = errors.New("queue is full")
	ErrQueueClosed = errors.New("queue is closed")
)

// Handler consumes one batch of incoming listings
type Handler func([]*models.LandProperty) error

// PropertyQueue buffers batches of incoming listings between the API and the processor
type PropertyQueue struct {
	items    chan []*models.LandProperty
	maxSize  int
	closed   bool
	mu       sync.RWMutex
	wg       sync.WaitGroup
	logger   *logrus.Logger
	handlers []Handler
}

// NewPropertyQueue creates a queue holding at most bufferSize pending batches
func NewPropertyQueue(bufferSize int, logger *logrus.Logger) *PropertyQueue {
	if logger == nil {
		logger = logrus.New()
	}
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &PropertyQueue{
		items:   make(chan []*models.LandProperty, bufferSize),
		maxSize: bufferSize,
		logger:  logger,
	}
}

// Push enqueues a batch without blocking
func (q *PropertyQueue) Push(properties []*models.LandProperty) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- properties:
		q.logger.WithField("batch_size", len(properties)).Debug("Pushed batch to queue")
		return nil
	default:
		return ErrQueueFull
	}
}

// Subscribe adds a handler that is called for each batch
func (q *PropertyQueue) Subscribe(handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, handler)
}

// Start begins dispatching batches to the subscribed handlers
func (q *PropertyQueue) Start() {
	q.wg.Add(1)
	go q.process()
}

func (q *PropertyQueue) process() {
	defer q.wg.Done()
	for batch := range q.items {
		q.dispatch(batch)
	}
}

func (q *PropertyQueue) dispatch(batch []*models.LandProperty) {
	q.mu.RLock()
	handlers := q.handlers
	q.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(batch); err != nil {
			q.logger.WithError(err).WithField("batch_size", len(batch)).Error("Handler failed to process batch")
		}
	}
}

// Close rejects further pushes and waits until every buffered batch has been
// dispatched. Batches pushed to a queue that was never started are dropped.
func (q *PropertyQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.items)
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}

// Len returns the number of pending batches
func (q *PropertyQueue) Len() int {
	return len(q.items)
}

func (q *PropertyQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
