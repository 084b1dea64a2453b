package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// Task is a named function fired on a schedule.
type Task struct {
	// Name identifies the task in logs and in RunNow.
	Name string

	// Schedule is a cron expression (e.g., "*/5 * * * *" or "@every 30s").
	Schedule string

	// Run performs one pass. Errors are logged; the next tick still fires.
	Run func(ctx context.Context) error
}

// EntryInfo reports the timing of a registered task.
type EntryInfo struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	Next     time.Time `json:"next"`
	Prev     time.Time `json:"prev"`
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// WithLocation sets the time zone schedules are evaluated in. UTC by
// default.
func WithLocation(loc *time.Location) SchedulerOption {
	return func(s *Scheduler) { s.location = loc }
}

// WithTaskTimeout bounds each task run. Zero leaves runs unbounded.
func WithTaskTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.taskTimeout = d }
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

type registered struct {
	task Task
	id   cronlib.EntryID
}

// Scheduler fires tasks on their schedules.
type Scheduler struct {
	logger      *slog.Logger
	location    *time.Location
	taskTimeout time.Duration

	c *cronlib.Cron

	mu      sync.Mutex
	tasks   map[string]registered
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a Scheduler.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		logger:   slog.Default(),
		location: time.UTC,
		tasks:    make(map[string]registered),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.baseCtx, s.cancel = context.WithCancel(context.Background())

	cl := cronLogger{s.logger}
	s.c = cronlib.New(
		cronlib.WithParser(cronParser),
		cronlib.WithLocation(s.location),
		cronlib.WithLogger(cl),
		cronlib.WithChain(
			cronlib.Recover(cl),
			cronlib.SkipIfStillRunning(cl),
		),
	)
	return s
}

// Add registers t. An empty schedule disables the task and is not an
// error.
func (s *Scheduler) Add(t Task) error {
	if t.Name == "" || t.Run == nil {
		return fmt.Errorf("cron: task needs a name and a run function")
	}
	if t.Schedule == "" {
		s.logger.Info("cron task disabled", slog.String("task", t.Name))
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[t.Name]; ok {
		return fmt.Errorf("cron: task %q already registered", t.Name)
	}
	sched, err := ParseSchedule(t.Schedule)
	if err != nil {
		return fmt.Errorf("cron: task %q: parse schedule %q: %w", t.Name, t.Schedule, err)
	}

	entryID := s.c.Schedule(sched, cronlib.FuncJob(func() { _ = s.fire(s.runContext(), t) }))
	s.tasks[t.Name] = registered{task: t, id: entryID}
	return nil
}

// Start launches the scheduler goroutine. The ctx passed here is the parent
// of every task run; cancelling it aborts running tasks.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.cancel()
	s.baseCtx, s.cancel = context.WithCancel(ctx)
	n := len(s.tasks)
	s.mu.Unlock()

	s.c.Start()
	s.logger.Info("cron scheduler started", slog.Int("tasks", n))
	return nil
}

func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseCtx
}

// Stop stops firing new runs and waits for running tasks to finish, or
// for ctx to end, whichever is first.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.c.Stop()
	select {
	case <-done.Done():
		s.logger.Info("cron scheduler stopped")
		s.cancelRuns()
		return nil
	case <-ctx.Done():
		s.cancelRuns()
		return ctx.Err()
	}
}

func (s *Scheduler) cancelRuns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel()
}

// RunNow runs the named task synchronously, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	r, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("cron: unknown task %q", name)
	}
	return s.fire(ctx, r.task)
}

// Entries lists registered tasks ordered by name.
func (s *Scheduler) Entries() []EntryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]EntryInfo, 0, len(s.tasks))
	for name, r := range s.tasks {
		e := s.c.Entry(r.id)
		out = append(out, EntryInfo{Name: name, Schedule: r.task.Schedule, Next: e.Next, Prev: e.Prev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) fire(parent context.Context, t Task) error {
	ctx := parent
	if s.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, s.taskTimeout)
		defer cancel()
	}

	start := time.Now()
	err := t.Run(ctx)
	if err != nil {
		s.logger.Error("cron task failed",
			slog.String("task", t.Name),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return err
	}
	s.logger.Debug("cron task finished",
		slog.String("task", t.Name),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// cronLogger adapts slog to cronlib.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append([]any{slog.String("error", err.Error())}, keysAndValues...)...)
}
