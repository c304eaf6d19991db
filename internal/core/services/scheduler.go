package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/ephemera/internal/core/domain"
	"github.com/custodia-labs/ephemera/internal/core/ports/driven"
	"github.com/custodia-labs/ephemera/internal/core/ports/driving"
	"github.com/custodia-labs/ephemera/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.TaskRunner = (*Scheduler)(nil)

// historyKeep is how many results are retained per task.
const historyKeep = 100

// Expirer deletes documents whose retention period has ended.
// *StoreManager satisfies it.
type Expirer interface {
	ExpireDueDocuments(ctx context.Context, now time.Time) (int, error)
}

// Scheduler manages background task execution.
type Scheduler struct {
	config  domain.SchedulerConfig
	store   driven.SchedulerStore
	expirer Expirer
	now     func() time.Time

	mu       sync.Mutex
	running  bool
	inFlight map[string]bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler with configuration.
func NewScheduler(
	config domain.SchedulerConfig,
	store driven.SchedulerStore,
	expirer Expirer,
) *Scheduler {
	return &Scheduler{
		config:   config,
		store:    store,
		expirer:  expirer,
		now:      time.Now,
		inFlight: make(map[string]bool),
	}
}

// Start begins the scheduler loop. This method blocks until Stop is called
// or the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	if err := s.initialiseTasks(ctx); err != nil {
		logger.Warn("scheduler: failed to initialise tasks: %v", err)
	}

	return s.run(ctx, stopCh)
}

// Stop gracefully shuts down the scheduler and waits for running tasks.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// RunNow executes a task synchronously and returns the items it processed.
// The run is recorded in the task history like a scheduled one.
func (s *Scheduler) RunNow(ctx context.Context, taskID string) (int, error) {
	if taskID != domain.TaskIDExpirySweep {
		return 0, fmt.Errorf("%w: unknown task %q", domain.ErrInvalidRequest, taskID)
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return 0, fmt.Errorf("get task %s: %w", taskID, err)
	}
	if task == nil {
		task = domain.NewScheduledTask(taskID, s.config.Task(taskID), s.now())
	}
	if !s.claim(taskID) {
		return 0, fmt.Errorf("task %s is already running", taskID)
	}
	defer s.release(taskID)

	result := s.execute(ctx, task)
	if !result.Success {
		return result.ItemsProcessed, fmt.Errorf("task %s: %s", taskID, result.Error)
	}
	return result.ItemsProcessed, nil
}

// initialiseTasks ensures all configured tasks exist in the store.
func (s *Scheduler) initialiseTasks(ctx context.Context) error {
	if taskCfg := s.config.Task(domain.TaskIDExpirySweep); taskCfg.Enabled {
		if err := s.ensureTask(ctx, domain.TaskIDExpirySweep, taskCfg); err != nil {
			return err
		}
	}
	return nil
}

// ensureTask creates or updates a task in the store.
func (s *Scheduler) ensureTask(ctx context.Context, id string, cfg domain.TaskConfig) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}

	if task == nil {
		task = domain.NewScheduledTask(id, cfg, s.now())
	} else {
		task.Reconfigure(cfg, s.now())
	}
	return s.store.SaveTask(ctx, task)
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context, stopCh <-chan struct{}) error {
	s.checkAndRunDueTasks(ctx)

	tick := s.config.TickInterval
	if tick <= 0 {
		tick = domain.DefaultTickInterval
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			s.checkAndRunDueTasks(ctx)
		}
	}
}

// checkAndRunDueTasks starts every due task that is not already running.
func (s *Scheduler) checkAndRunDueTasks(ctx context.Context) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		logger.Warn("scheduler: failed to list tasks: %v", err)
		return
	}

	now := s.now()
	for i := range tasks {
		task := tasks[i]
		if !task.IsDue(now) || !s.claim(task.ID) {
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.release(task.ID)
			s.execute(ctx, &task)
		}()
	}
}

// claim marks id as running. It fails if a run is already in flight.
func (s *Scheduler) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[id] {
		return false
	}
	s.inFlight[id] = true
	return true
}

func (s *Scheduler) release(id string) {
	s.mu.Lock()
	delete(s.inFlight, id)
	s.mu.Unlock()
}

// execute runs a task, then records its state and result.
func (s *Scheduler) execute(ctx context.Context, task *domain.ScheduledTask) domain.TaskResult {
	result := domain.TaskResult{
		TaskID:    task.ID,
		StartedAt: s.now(),
	}

	var err error
	switch task.ID {
	case domain.TaskIDExpirySweep:
		result.ItemsProcessed, err = s.expirer.ExpireDueDocuments(ctx, result.StartedAt)
	default:
		err = fmt.Errorf("unknown task ID: %s", task.ID)
	}

	result.EndedAt = s.now()
	if err != nil {
		result.Error = err.Error()
		logger.Warn("scheduler: task %s failed: %v", task.ID, err)
	} else {
		result.Success = true
	}
	task.Record(result)

	if saveErr := s.store.SaveTask(ctx, task); saveErr != nil {
		logger.Warn("scheduler: failed to save task %s: %v", task.ID, saveErr)
	}
	if recordErr := s.store.RecordResult(ctx, &result); recordErr != nil {
		logger.Warn("scheduler: failed to record result for %s: %v", task.ID, recordErr)
	}
	if pruneErr := s.store.PruneHistory(ctx, historyKeep); pruneErr != nil {
		logger.Warn("scheduler: failed to prune history: %v", pruneErr)
	}
	return result
}
