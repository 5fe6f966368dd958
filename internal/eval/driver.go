// Package eval fans a set of evaluation tasks out across a DeploymentPool,
// warming it once for the whole run and amortising the cost of expensive
// shared resources across every task instead of paying it per task.
package eval

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Wei-Shaw/evaldepot/internal/pkg/logger"
	"github.com/Wei-Shaw/evaldepot/internal/pool"
)

const defaultAllocateWait = 30 * time.Second

// Task is one unit of evaluation work handed to Driver.Run.
type Task struct {
	ID string
	// Run exercises an allocated deployment. The driver calls it between
	// allocate and release; the caller owns what "run the agent" means.
	Run func(ctx context.Context, h *pool.Handle) error
}

// Result pairs a task with its outcome.
type Result struct {
	TaskID string
	Err    error
}

type Config struct {
	SessionName        string
	MaxConcurrentTasks int
}

func (c Config) normalized() Config {
	if c.MaxConcurrentTasks <= 0 {
		c.MaxConcurrentTasks = 1
	}
	if c.SessionName == "" {
		c.SessionName = "default"
	}
	return c
}

// Driver runs tasks against a DeploymentPool, bounding concurrency to the
// pool's serving capacity so the fan-out never outpaces allocate.
type Driver struct {
	pool *pool.DeploymentPool
	cfg  Config
}

func New(p *pool.DeploymentPool, cfg Config) *Driver {
	return &Driver{pool: p, cfg: cfg.normalized()}
}

// Run warms the pool once, runs every task (allocate -> task.Run -> release,
// release always attempted regardless of task outcome), then drains the
// pool. It returns one Result per task, in the same order as tasks, plus
// any error from warming the pool; a drain failure is logged, not returned.
func (d *Driver) Run(ctx context.Context, tasks []Task) ([]Result, error) {
	logger.LegacyPrintf("eval.driver", "[Driver] session=%s warming pool before %d tasks", d.cfg.SessionName, len(tasks))
	if err := d.pool.Warm(ctx); err != nil {
		return nil, err
	}
	defer func() {
		drainCtx := context.WithoutCancel(ctx)
		if err := d.pool.Drain(drainCtx); err != nil {
			logger.LegacyPrintf("eval.driver", "[Driver] session=%s drain failed err=%v", d.cfg.SessionName, err)
		}
	}()

	results := make([]Result, len(tasks))
	sem := semaphore.NewWeighted(int64(d.cfg.MaxConcurrentTasks))
	g, gctx := errgroup.WithContext(ctx)

	for i, task := range tasks {
		i, task := i, task
		if err := sem.Acquire(gctx, 1); err != nil {
			results[i] = Result{TaskID: task.ID, Err: err}
			continue
		}
		g.Go(func() error {
			defer sem.Release(1)
			results[i] = Result{TaskID: task.ID, Err: d.runOne(gctx, task)}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// runOne guarantees release runs even if task.Run panics or errors. A
// panic in task.Run is recovered and reported as this task's error rather
// than left to unwind the errgroup goroutine, so one bad task does not
// abort every other task still running.
func (d *Driver) runOne(ctx context.Context, task Task) (err error) {
	h, allocErr := d.pool.Allocate(ctx, defaultAllocateWait)
	if allocErr != nil {
		return allocErr
	}
	defer func() {
		releaseCtx := context.WithoutCancel(ctx)
		if releaseErr := d.pool.Release(releaseCtx, h); releaseErr != nil {
			logger.LegacyPrintf("eval.driver", "[Driver] task=%s release failed deployment_id=%s err=%v", task.ID, h.DeploymentID, releaseErr)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			logger.LegacyPrintf("eval.driver", "[Driver] task=%s panicked: %v", task.ID, r)
			err = fmt.Errorf("task %s panicked: %v", task.ID, r)
		}
	}()
	return task.Run(ctx, h)
}
