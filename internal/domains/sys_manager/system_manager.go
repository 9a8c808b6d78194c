package sys_manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xpanvictor/voxcap/pkg/Logger"
)

const taskTimeout = 30 * time.Second

// SystemTask represents a background task that can be executed
type SystemTask interface {
	// Execute runs the task
	Execute(ctx context.Context) error
	// GetName returns the task name for logging
	GetName() string
	// GetInterval returns how often this task should run
	GetInterval() time.Duration
}

// SystemManager manages and schedules background system tasks
type SystemManager struct {
	tasks   []SystemTask
	logger  *Logger.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewSystemManager creates a new system manager
func NewSystemManager(logger *Logger.Logger) *SystemManager {
	ctx, cancel := context.WithCancel(context.Background())

	return &SystemManager{
		tasks:  make([]SystemTask, 0),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// RegisterTask adds a new task to be managed. Tasks registered after Start
// are not scheduled.
func (sm *SystemManager) RegisterTask(task SystemTask) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.tasks = append(sm.tasks, task)
	sm.logger.Infof("Registered system task: %s (interval: %s)", task.GetName(), task.GetInterval())
}

// Start begins executing all registered tasks on their schedules
func (sm *SystemManager) Start() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.running {
		return fmt.Errorf("system manager is already running")
	}

	sm.running = true
	sm.logger.Infof("Starting system manager with %d tasks", len(sm.tasks))

	for _, task := range sm.tasks {
		sm.wg.Add(1)
		go sm.runTask(task)
	}

	return nil
}

// Stop cancels every task and waits for them to return
func (sm *SystemManager) Stop() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.running {
		return nil
	}

	sm.cancel()
	sm.wg.Wait()
	sm.running = false
	sm.logger.Info("System manager stopped")

	return nil
}

// IsRunning returns whether the system manager is currently running
func (sm *SystemManager) IsRunning() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.running
}

// GetTaskCount returns the number of registered tasks
func (sm *SystemManager) GetTaskCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.tasks)
}

// runTask executes a single task on its schedule, once right away
func (sm *SystemManager) runTask(task SystemTask) {
	defer sm.wg.Done()

	ticker := time.NewTicker(task.GetInterval())
	defer ticker.Stop()

	sm.executeTask(task)

	for {
		select {
		case <-sm.ctx.Done():
			sm.logger.Debugf("Task scheduler stopping for: %s", task.GetName())
			return
		case <-ticker.C:
			sm.executeTask(task)
		}
	}
}

func (sm *SystemManager) executeTask(task SystemTask) {
	start := time.Now()

	taskCtx, cancel := context.WithTimeout(sm.ctx, taskTimeout)
	defer cancel()

	if err := task.Execute(taskCtx); err != nil {
		sm.logger.Errorf("System task %s failed after %s: %v", task.GetName(), time.Since(start), err)
		return
	}
	sm.logger.Debugf("System task %s completed in %s", task.GetName(), time.Since(start))
}

// FuncTask adapts a function to SystemTask
type FuncTask struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context) error
}

// NewFuncTask creates a task running fn every interval (a minute when unset)
func NewFuncTask(name string, interval time.Duration, fn func(ctx context.Context) error) *FuncTask {
	if interval <= 0 {
		interval = time.Minute
	}
	return &FuncTask{name: name, interval: interval, fn: fn}
}

func (t *FuncTask) Execute(ctx context.Context) error { return t.fn(ctx) }
func (t *FuncTask) GetName() string                   { return t.name }
func (t *FuncTask) GetInterval() time.Duration        { return t.interval }
