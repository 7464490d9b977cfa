package sharecrawler

import (
	"context"
	"time"

	"github.com/marmos91/sharelease/internal/clock"
	"github.com/marmos91/sharelease/internal/logger"
)

const (
	// DefaultMinimumCycleTime is the floor on time elapsed between cycle
	// starts, 12 hours.
	DefaultMinimumCycleTime = 12 * 60 * 60

	// DefaultSlowStart is how long the crawler waits after process start
	// before beginning its first cycle, 300 seconds.
	DefaultSlowStart = 300
)

// Hooks are the subclass customization points the base crawler calls at the
// appropriate times. A concrete crawler (e.g. AccountingCrawler) implements
// these; the base class owns only scheduling.
type Hooks interface {
	// StartedCycle is called once, before the first slice of a cycle.
	StartedCycle(cycle int64)

	// ProcessPrefixdir processes one slice: the shares under one prefix.
	// Errors are logged by the caller and do not abort the cycle.
	ProcessPrefixdir(ctx context.Context, cycle int64, prefix string) error

	// FinishedCycle is called once, after the last slice of a cycle.
	FinishedCycle(cycle int64)
}

// Config configures the base crawler's scheduling.
type Config struct {
	// StatefilePath is where persisted progress is written after every
	// slice.
	StatefilePath string

	// MinimumCycleTime is the floor on elapsed time between cycle starts.
	// Default DefaultMinimumCycleTime.
	MinimumCycleTime int64

	// SlowStart is the delay before the first cycle begins. Default
	// DefaultSlowStart.
	SlowStart int64

	// SlicePause is the delay between slices within a cycle, giving other
	// goroutines a scheduling point. It has no default: zero, the value when
	// unset, means no pause between slices.
	SlicePause time.Duration

	Clock clock.Clock
}

func (c *Config) applyDefaults() {
	if c.MinimumCycleTime == 0 {
		c.MinimumCycleTime = DefaultMinimumCycleTime
	}
	if c.SlowStart == 0 {
		c.SlowStart = DefaultSlowStart
	}
	if c.Clock == nil {
		c.Clock = clock.System{}
	}
}

// Crawler is the base slow-walk scheduler: one goroutine driven by a slice
// loop over the 1024 prefixes, persisting state after each slice and
// sleeping between cycles per MinimumCycleTime. This realizes spec's
// cooperative coroutine model with a goroutine + select on ctx.Done()
// between slices, keeping the single-threaded, non-contending property the
// LDB relies on (see DESIGN.md).
type Crawler struct {
	cfg    Config
	hooks  Hooks
	state  *State
	prefix []string
}

// New constructs a Crawler. The statefile is loaded lazily on Run so
// construction never touches the filesystem.
func New(cfg Config, hooks Hooks) *Crawler {
	cfg.applyDefaults()
	return &Crawler{cfg: cfg, hooks: hooks, prefix: Prefixes()}
}

// Run drives the crawler until ctx is cancelled. It loads persisted state,
// waits out slow-start on a fresh install, then loops cycles and slices
// indefinitely.
func (c *Crawler) Run(ctx context.Context) error {
	state, err := LoadState(c.cfg.StatefilePath)
	if err != nil {
		return err
	}
	c.state = state

	if c.state.CurrentCycle == 0 && c.state.LastCycleFinished == nil {
		select {
		case <-time.After(time.Duration(c.cfg.SlowStart) * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for {
		if err := c.runCycle(ctx); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := c.waitForNextCycle(ctx); err != nil {
			return err
		}
	}
}

func (c *Crawler) runCycle(ctx context.Context) error {
	cycle := c.state.CurrentCycle + 1
	startIndex := c.state.LastCompletePrefixIndex + 1

	if startIndex == 0 {
		c.state.CurrentCycle = cycle
		c.state.CurrentCycleStartTime = c.cfg.Clock.Now()
		c.hooks.StartedCycle(cycle)
	} else {
		// Resuming a partially completed cycle after a restart.
		cycle = c.state.CurrentCycle
	}

	for i := startIndex; i < len(c.prefix); i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		prefix := c.prefix[i]
		lc := logger.NewLogContext(int(cycle)).WithPrefix(prefix)
		sliceCtx := logger.WithContext(ctx, lc)

		if err := c.hooks.ProcessPrefixdir(sliceCtx, cycle, prefix); err != nil {
			logger.ErrorCtx(sliceCtx, "sharecrawler: slice failed, will retry next cycle", logger.Err(err))
		}

		c.state.LastCompletePrefixIndex = i
		if err := c.state.Save(c.cfg.StatefilePath); err != nil {
			return err
		}

		select {
		case <-time.After(c.cfg.SlicePause):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	finished := c.cfg.Clock.Now()
	c.state.LastCycleFinished = &finished
	c.state.LastCompletePrefixIndex = -1
	c.hooks.FinishedCycle(cycle)

	return c.state.Save(c.cfg.StatefilePath)
}

func (c *Crawler) waitForNextCycle(ctx context.Context) error {
	if c.state.LastCycleFinished == nil {
		return nil
	}

	elapsed := c.cfg.Clock.Now() - c.state.CurrentCycleStartTime
	remaining := c.cfg.MinimumCycleTime - elapsed
	if remaining <= 0 {
		return nil
	}

	select {
	case <-time.After(time.Duration(remaining) * time.Second):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
