package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/core/ports"
)

const DefaultMaxConcurrency = 3

// UploadScheduler runs queued uploads with at most maxConcurrency active at
// once. Queue state and the running counter share one mutex, so a
// completion and an enqueue can never both take the last free slot.
type UploadScheduler struct {
	uploader       ports.DocumentUploader
	maxConcurrency int
	observer       QueueObserver
	logger         *slog.Logger
	now            func() time.Time
	newID          func() string

	runCtx    context.Context
	cancelRun context.CancelFunc
	wg        sync.WaitGroup

	mu        sync.Mutex
	items     map[string]*domain.UploadQueueItem
	order     []string
	running   int
	closed    bool
	version   uint64
	listeners []func(domain.QueueSnapshot)

	notifyMu  sync.Mutex
	delivered uint64
}

func NewUploadScheduler(uploader ports.DocumentUploader, maxConcurrency int, observer QueueObserver, logger *slog.Logger) *UploadScheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	runCtx, cancel := context.WithCancel(context.Background())
	return &UploadScheduler{
		uploader:       uploader,
		maxConcurrency: maxConcurrency,
		observer:       observer,
		logger:         logger,
		now:            time.Now,
		newID:          uuid.NewString,
		runCtx:         runCtx,
		cancelRun:      cancel,
		items:          make(map[string]*domain.UploadQueueItem),
	}
}

// OnChange registers fn to receive a snapshot after every item change.
// Deliveries are serialized and never go back in Version; a snapshot that is
// already superseded when its turn comes is skipped. fn must not change the queue.
func (s *UploadScheduler) OnChange(fn func(domain.QueueSnapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *UploadScheduler) Enqueue(files []domain.UploadFile, opts domain.UploadOptions) []string {
	s.mu.Lock()
	now := s.now()
	ids := make([]string, 0, len(files))
	for _, f := range files {
		item := &domain.UploadQueueItem{
			ID:      s.newID(),
			File:    f,
			Options: opts,
			State:   domain.ItemPending,
			AddedAt: now,
		}
		s.items[item.ID] = item
		s.order = append(s.order, item.ID)
		ids = append(ids, item.ID)
	}
	s.pumpLocked()
	s.commitLocked()
	return ids
}

// Retry moves a failed item back to pending.
func (s *UploadScheduler) Retry(id string) error {
	s.mu.Lock()
	item, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return domain.NewError(domain.CodeNotFound, "scheduler.retry", "queue item not found", nil)
	}
	if item.State != domain.ItemFailed {
		s.mu.Unlock()
		return domain.NewError(domain.CodeValidationFailed, "scheduler.retry",
			fmt.Sprintf("only failed items can be retried, item is %s", item.State), nil)
	}
	item.State = domain.ItemPending
	item.RetryCount++
	item.Progress = 0
	item.Stage = ""
	item.Message = ""
	item.StartedAt = nil
	item.CompletedAt = nil
	item.Result = nil
	item.Error = nil
	item.AddedAt = s.now()
	s.pumpLocked()
	s.commitLocked()
	return nil
}

// Cancel stops a pending item. Running items cannot be cancelled.
func (s *UploadScheduler) Cancel(id string) error {
	s.mu.Lock()
	item, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return domain.NewError(domain.CodeNotFound, "scheduler.cancel", "queue item not found", nil)
	}
	if item.State != domain.ItemPending {
		s.mu.Unlock()
		return domain.NewError(domain.CodeValidationFailed, "scheduler.cancel",
			fmt.Sprintf("only pending items can be cancelled, item is %s", item.State), nil)
	}
	now := s.now()
	item.State = domain.ItemCancelled
	item.CompletedAt = &now
	item.File.Data = nil
	if s.observer != nil {
		s.observer.ObserveItemFinished(domain.ItemCancelled)
	}
	s.commitLocked()
	return nil
}

// ClearCompleted drops successfully completed items and returns how many were removed.
func (s *UploadScheduler) ClearCompleted() int {
	s.mu.Lock()
	kept := s.order[:0]
	removed := 0
	for _, id := range s.order {
		if s.items[id].State == domain.ItemCompleted {
			delete(s.items, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	if removed == 0 {
		s.mu.Unlock()
		return 0
	}
	s.commitLocked()
	return removed
}

func (s *UploadScheduler) Snapshot() domain.QueueSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *UploadScheduler) Items() []domain.UploadQueueItem {
	return s.Snapshot().Items
}

func (s *UploadScheduler) Item(id string) (domain.UploadQueueItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return domain.UploadQueueItem{}, false
	}
	return *item, true
}

// Shutdown stops starting new items and waits for running ones. When ctx
// ends first the running uploads are cancelled.
func (s *UploadScheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancelRun()
		return nil
	case <-ctx.Done():
		s.cancelRun()
		<-done
		return ctx.Err()
	}
}

// pumpLocked starts pending items in queue order while slots are free.
func (s *UploadScheduler) pumpLocked() {
	if s.closed {
		return
	}
	for _, id := range s.order {
		if s.running >= s.maxConcurrency {
			return
		}
		item := s.items[id]
		if item.State != domain.ItemPending {
			continue
		}
		now := s.now()
		item.State = domain.ItemProcessing
		item.StartedAt = &now
		s.running++
		if s.observer != nil {
			s.observer.ObserveItemStarted(now.Sub(item.AddedAt))
		}
		s.logger.Info("scheduler_item_started", "item_id", id, "file", item.File.Name, "retry_count", item.RetryCount)

		s.wg.Add(1)
		go s.run(id, item.File, item.Options)
	}
}

func (s *UploadScheduler) run(id string, file domain.UploadFile, opts domain.UploadOptions) {
	defer s.wg.Done()

	var result domain.UploadResult
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("scheduler_item_panic", "item_id", id, "panic", fmt.Sprint(rec))
			result = domain.UploadResult{
				Status: domain.UploadFailed,
				Error:  domain.NewErrorInfo(domain.NewError(domain.CodeUnexpected, "scheduler.run", "internal error", fmt.Errorf("panic: %v", rec))),
			}
		}
		s.finish(id, result)
	}()

	result = s.uploader.Upload(s.runCtx, file, opts, func(p domain.Progress) {
		s.progress(id, p)
	})
}

func (s *UploadScheduler) progress(id string, p domain.Progress) {
	s.mu.Lock()
	item, ok := s.items[id]
	if !ok || item.State != domain.ItemProcessing {
		s.mu.Unlock()
		return
	}
	if p.Percent > item.Progress {
		item.Progress = p.Percent
	}
	item.Stage = p.Stage
	item.Message = p.Message
	s.commitLocked()
}

// finish records the outcome, frees the slot and starts exactly one more
// item if one is pending.
func (s *UploadScheduler) finish(id string, result domain.UploadResult) {
	s.mu.Lock()
	s.running--
	if item, ok := s.items[id]; ok {
		now := s.now()
		item.CompletedAt = &now
		item.Result = &result
		if result.Succeeded() {
			item.State = domain.ItemCompleted
			item.Progress = 100
			item.Stage = domain.StageComplete
			item.File.Data = nil
		} else {
			item.State = domain.ItemFailed
			item.Error = result.Error
		}
		if s.observer != nil {
			s.observer.ObserveItemFinished(item.State)
		}
		s.logger.Info("scheduler_item_finished", "item_id", id, "state", string(item.State), "duration_ms", result.Duration.Milliseconds())
	}
	s.pumpLocked()
	s.commitLocked()
}

// commitLocked publishes the new state and releases the lock.
func (s *UploadScheduler) commitLocked() {
	s.version++
	snapshot := s.snapshotLocked()
	listeners := append([]func(domain.QueueSnapshot){}, s.listeners...)
	if s.observer != nil {
		s.observer.ObserveQueue(snapshot.Running, snapshot.Pending)
	}
	s.mu.Unlock()

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if snapshot.Version <= s.delivered {
		return
	}
	s.delivered = snapshot.Version
	for _, fn := range listeners {
		fn(snapshot)
	}
}

func (s *UploadScheduler) snapshotLocked() domain.QueueSnapshot {
	snap := domain.QueueSnapshot{
		Items:   make([]domain.UploadQueueItem, 0, len(s.order)),
		Running: s.running,
		Version: s.version,
	}
	total := 0
	for _, id := range s.order {
		item := s.items[id]
		snap.Items = append(snap.Items, *item)
		total += item.Progress
		if item.State == domain.ItemPending {
			snap.Pending++
		}
	}
	if len(snap.Items) > 0 {
		snap.OverallProgress = float64(total) / float64(len(snap.Items))
	}
	return snap
}
