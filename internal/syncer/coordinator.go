// internal/syncer/coordinator.go
package syncer

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/fluxmetric/pulse/internal/cache"
)

// Coordinator states
const (
	StateIdle    = "idle"
	StateSyncing = "syncing"
	StateBackoff = "backoff"
)

// Config configures a Coordinator.
type Config struct {
	// Interval between scheduled cycles; zero disables the scheduler.
	Interval time.Duration
	// MaxAttempts per cycle before the cycle is marked failed.
	MaxAttempts int
	// BaseDelay, MaxDelay, Factor and Jitter shape the backoff curve.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Factor    float64
	Jitter    float64
	// MinCycleGap is the floor between cycle starts; callers hitting
	// it get a skipped result rather than a redundant transfer.
	MinCycleGap time.Duration
}

// ApplyDefaults fills in default values.
func (c *Config) ApplyDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = 250 * time.Millisecond
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.Factor == 0 {
		c.Factor = 2.0
	}
}

// Result reports one sync cycle. Pushed and Failed count snapshot
// records; Skipped means the cycle never started because of the rate
// floor.
type Result struct {
	CycleID  string        `json:"cycle_id"`
	Success  bool          `json:"success"`
	Pushed   int           `json:"pushed"`
	Failed   int           `json:"failed"`
	Skipped  bool          `json:"skipped,omitempty"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
}

// Coordinator pushes point-in-time cache snapshots to a remote store.
// At most one cycle is in flight; concurrent callers are coalesced
// onto it. Cycles never block cache readers or writers.
type Coordinator struct {
	store     *cache.Store
	transport Transport
	config    Config
	logger    *zap.Logger

	group   singleflight.Group
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter

	mu    sync.RWMutex
	state string

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCoordinator creates a coordinator. Call Run to start the
// scheduler; SyncToCloud works with or without it.
func NewCoordinator(store *cache.Store, transport Transport, config Config, logger *zap.Logger) *Coordinator {
	config.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if config.MinCycleGap > 0 {
		limiter = rate.NewLimiter(rate.Every(config.MinCycleGap), 1)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "sync-transport",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Coordinator{
		store:     store,
		transport: transport,
		config:    config,
		logger:    logger,
		breaker:   breaker,
		limiter:   limiter,
		state:     StateIdle,
		stopCh:    make(chan struct{}),
	}
}

// State returns the coordinator's current state.
func (c *Coordinator) State() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Coordinator) setState(state string) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// SyncToCloud runs one sync cycle, or joins the cycle already in
// flight. The returned result is shared by every coalesced caller.
func (c *Coordinator) SyncToCloud(ctx context.Context) Result {
	if c.limiter != nil && !c.limiter.Allow() {
		return Result{Skipped: true}
	}

	v, _, _ := c.group.Do("cycle", func() (any, error) {
		return c.runCycle(ctx), nil
	})
	return v.(Result)
}

// runCycle serializes the snapshot and pushes it with retry/backoff.
// Failure is terminal for this cycle only; the next cycle starts from
// scratch.
func (c *Coordinator) runCycle(ctx context.Context) Result {
	start := time.Now()
	cycleID := uuid.NewString()
	records := c.store.Stats().Entries

	c.setState(StateSyncing)
	defer c.setState(StateIdle)

	payload, err := c.store.Export()
	if err != nil {
		c.logger.Error("failed to export snapshot", zap.Error(err))
		return Result{CycleID: cycleID, Failed: records, Duration: time.Since(start)}
	}

	attempts := 0
	for attempt := 0; attempt < c.config.MaxAttempts; attempt++ {
		attempts++

		_, err = c.breaker.Execute(func() (any, error) {
			return nil, c.transport.Push(ctx, cycleID, payload)
		})
		if err == nil {
			c.logger.Info("sync cycle succeeded",
				zap.String("cycle_id", cycleID),
				zap.Int("records", records),
				zap.Int("attempts", attempts))
			return Result{
				CycleID:  cycleID,
				Success:  true,
				Pushed:   records,
				Attempts: attempts,
				Duration: time.Since(start),
			}
		}

		c.logger.Warn("sync attempt failed",
			zap.String("cycle_id", cycleID),
			zap.Int("attempt", attempts),
			zap.Error(err))

		if attempt == c.config.MaxAttempts-1 {
			break
		}

		c.setState(StateBackoff)
		select {
		case <-ctx.Done():
			return Result{CycleID: cycleID, Failed: records, Attempts: attempts, Duration: time.Since(start)}
		case <-c.stopCh:
			return Result{CycleID: cycleID, Failed: records, Attempts: attempts, Duration: time.Since(start)}
		case <-time.After(c.backoffDelay(attempt)):
		}
		c.setState(StateSyncing)
	}

	c.logger.Error("sync cycle failed",
		zap.String("cycle_id", cycleID),
		zap.Int("attempts", attempts))
	return Result{
		CycleID:  cycleID,
		Failed:   records,
		Attempts: attempts,
		Duration: time.Since(start),
	}
}

// backoffDelay grows exponentially with jitter, capped at MaxDelay.
func (c *Coordinator) backoffDelay(attempt int) time.Duration {
	delay := float64(c.config.BaseDelay) * math.Pow(c.config.Factor, float64(attempt))
	if delay > float64(c.config.MaxDelay) {
		delay = float64(c.config.MaxDelay)
	}
	delay += rand.Float64() * c.config.Jitter * delay
	return time.Duration(delay)
}

// Run starts the periodic scheduler. No-op when Interval is zero.
func (c *Coordinator) Run(ctx context.Context) {
	if c.config.Interval <= 0 {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.SyncToCloud(ctx)
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Close stops the scheduler and unblocks any in-flight backoff wait.
// An in-flight push is allowed to finish; the cache is never left
// partially synced because cycles operate on a point-in-time copy.
func (c *Coordinator) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}
