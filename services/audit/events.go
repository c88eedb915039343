package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/medicrypt/recordvault/models"
	"github.com/medicrypt/recordvault/repositories"
	"github.com/medicrypt/recordvault/services/policy"
	"go.uber.org/zap"
)

// EventRecorder persists security events asynchronously. Events never touch
// the record ledger and are dropped, with a warning, when the buffer is full.
type EventRecorder struct {
	repo        repositories.SecurityEventRepository
	logger      *zap.Logger
	eventChan   chan *models.SecurityEvent
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	started     bool
	stopped     bool
	mu          sync.RWMutex
}

// Config holds configuration for the EventRecorder
type Config struct {
	BufferSize  int // Size of the event buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  1000,
		WorkerCount: 2,
	}
}

// NewEventRecorder creates a new EventRecorder instance
func NewEventRecorder(repo repositories.SecurityEventRepository, logger *zap.Logger, config Config) *EventRecorder {
	ctx, cancel := context.WithCancel(context.Background())

	return &EventRecorder{
		repo:        repo,
		logger:      logger,
		eventChan:   make(chan *models.SecurityEvent, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the background workers
func (r *EventRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("event recorder already started")
	}

	for i := 0; i < r.workerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.started = true
	r.logger.Info("started security event recorder",
		zap.Int("worker_count", r.workerCount),
		zap.Int("buffer_size", r.bufferSize))

	return nil
}

// Stop closes the buffer and waits for pending events to be written
func (r *EventRecorder) Stop(timeout time.Duration) error {
	r.mu.Lock()
	if !r.started || r.stopped {
		r.mu.Unlock()
		return fmt.Errorf("event recorder not running")
	}
	r.stopped = true
	close(r.eventChan)
	r.mu.Unlock()

	r.logger.Info("stopping security event recorder", zap.Int("pending_events", len(r.eventChan)))

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("security event recorder stopped gracefully")
		r.cancel()
		return nil
	case <-time.After(timeout):
		r.cancel()
		return fmt.Errorf("event recorder stop timeout after %v", timeout)
	}
}

// Record queues an event without blocking
func (r *EventRecorder) Record(event *models.SecurityEvent) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.started || r.stopped {
		return fmt.Errorf("event recorder not running")
	}

	select {
	case r.eventChan <- event:
		return nil
	default:
		r.logger.Warn("security event buffer full, dropping event",
			zap.String("kind", string(event.Kind)),
			zap.String("identity", event.Identity))
		return fmt.Errorf("security event buffer full")
	}
}

// RecordBlocking queues an event, waiting until there is room or ctx ends
func (r *EventRecorder) RecordBlocking(ctx context.Context, event *models.SecurityEvent) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.started || r.stopped {
		return fmt.Errorf("event recorder not running")
	}

	select {
	case r.eventChan <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return fmt.Errorf("event recorder stopped")
	}
}

// RecordDenial queues an access_denied event for a refused operation
func (r *EventRecorder) RecordDenial(sub policy.Subject, action policy.Action, recordID string, reason policy.Reason, requestID string) {
	event := models.NewSecurityEvent(models.SecurityEventAccessDenied, sub.Identity, sub.Role, string(action)).
		WithRecord(recordID).
		WithReason(string(reason)).
		WithRequest(requestID)

	if err := r.Record(event); err != nil {
		r.logger.Debug("denial not recorded", zap.Error(err))
	}
}

// RecordAggregateQuery queues an aggregate_query event for a researcher query
func (r *EventRecorder) RecordAggregateQuery(sub policy.Subject, requestID string) {
	event := models.NewSecurityEvent(models.SecurityEventAggregateQuery, sub.Identity, sub.Role, string(policy.ActionAggregateQuery)).
		WithRequest(requestID)

	if err := r.Record(event); err != nil {
		r.logger.Debug("aggregate query not recorded", zap.Error(err))
	}
}

// worker processes events from the channel
func (r *EventRecorder) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("security event worker started", zap.Int("worker_id", id))

	for event := range r.eventChan {
		if err := r.processEvent(event); err != nil {
			r.logger.Error("failed to persist security event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("kind", string(event.Kind)),
				zap.String("identity", event.Identity))
		}
	}

	r.logger.Debug("security event worker stopped", zap.Int("worker_id", id))
}

func (r *EventRecorder) processEvent(event *models.SecurityEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.repo.Insert(ctx, event); err != nil {
		return fmt.Errorf("failed to insert security event: %w", err)
	}
	return nil
}

// GetStats returns statistics about the recorder
func (r *EventRecorder) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{
		BufferSize:    r.bufferSize,
		PendingEvents: len(r.eventChan),
		WorkerCount:   r.workerCount,
		Started:       r.started && !r.stopped,
	}
}

// Stats represents event recorder statistics
type Stats struct {
	BufferSize    int  `json:"buffer_size"`
	PendingEvents int  `json:"pending_events"`
	WorkerCount   int  `json:"worker_count"`
	Started       bool `json:"started"`
}
