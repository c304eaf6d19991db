package domain

import "time"

// TaskIDExpirySweep names the task that deletes documents past their TTL.
const TaskIDExpirySweep = "expiry-sweep"

// DefaultTickInterval is how often the scheduler looks for due tasks.
const DefaultTickInterval = 15 * time.Second

// ScheduledTask is the persisted state of a recurring task.
type ScheduledTask struct {
	ID       string
	Name     string
	Interval time.Duration
	Enabled  bool

	// LastRun and NextRun bound the schedule. A zero NextRun is due at once.
	LastRun time.Time
	NextRun time.Time

	// LastError is empty after a successful run.
	LastError   string
	LastSuccess time.Time
}

// NewScheduledTask registers id with the given settings; its first run is one
// interval after now.
func NewScheduledTask(id string, cfg TaskConfig, now time.Time) *ScheduledTask {
	return &ScheduledTask{
		ID:       id,
		Name:     TaskName(id),
		Interval: cfg.Interval,
		Enabled:  cfg.Enabled,
		NextRun:  now.Add(cfg.Interval),
	}
}

// IsDue reports whether the task should run at now.
func (t *ScheduledTask) IsDue(now time.Time) bool {
	return t.Enabled && !t.NextRun.After(now)
}

// Reconfigure applies cfg. Changing the interval restarts the countdown from now.
func (t *ScheduledTask) Reconfigure(cfg TaskConfig, now time.Time) {
	if t.Interval != cfg.Interval {
		t.Interval = cfg.Interval
		t.NextRun = now.Add(cfg.Interval)
	}
	t.Enabled = cfg.Enabled
}

// Record folds a finished run into the task and schedules the next one
// an interval after the run ended.
func (t *ScheduledTask) Record(result TaskResult) {
	t.LastRun = result.StartedAt
	t.NextRun = result.EndedAt.Add(t.Interval)
	if result.Success {
		t.LastError = ""
		t.LastSuccess = result.EndedAt
		return
	}
	t.LastError = result.Error
}

// TaskResult is one entry of a task's run history.
type TaskResult struct {
	TaskID    string
	StartedAt time.Time
	EndedAt   time.Time
	Success   bool
	Error     string

	// ItemsProcessed counts what the run handled, e.g. documents expired.
	ItemsProcessed int
}

// TaskConfig enables a task and sets its interval.
type TaskConfig struct {
	Enabled  bool
	Interval time.Duration
}

// SchedulerConfig configures the background scheduler.
type SchedulerConfig struct {
	Enabled      bool
	TickInterval time.Duration
	Tasks        map[string]TaskConfig
}

// Task returns the settings for id, or a disabled zero value.
func (c SchedulerConfig) Task(id string) TaskConfig {
	return c.Tasks[id]
}

// DefaultSchedulerConfig sweeps expired documents every minute.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:      true,
		TickInterval: DefaultTickInterval,
		Tasks: map[string]TaskConfig{
			TaskIDExpirySweep: {Enabled: true, Interval: time.Minute},
		},
	}
}

// TaskName returns a display name for a task ID.
func TaskName(id string) string {
	if id == TaskIDExpirySweep {
		return "Expiry Sweep"
	}
	return id
}
