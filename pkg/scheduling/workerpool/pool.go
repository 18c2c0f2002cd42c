package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"lukechampine.com/frand"

	"github.com/vnykmshr/stealflow/pkg/common/cacheline"
	gferrors "github.com/vnykmshr/stealflow/pkg/common/errors"
	"github.com/vnykmshr/stealflow/pkg/common/validation"
	"github.com/vnykmshr/stealflow/pkg/metrics"
)

const module = "workerpool"

// MaxWorkers is the largest number of workers a pool may have.
const MaxWorkers = 16

const (
	// DefaultExpectedTaskDuration is the mean delay between deal attempts.
	DefaultExpectedTaskDuration = 100 * time.Microsecond

	// DefaultName labels pools that were not given a name.
	DefaultName = "default"
)

// Task is a unit of work. It runs to completion on the worker passed to it
// and may Spawn further tasks onto that worker.
type Task func(w *Worker) error

// Seeder is the source each worker's private generator is seeded from.
// *math/rand/v2.Rand and *math/rand/v2.PCG both satisfy it.
type Seeder interface {
	Uint64() uint64
}

// Clock supplies the current time to the dealing heuristic.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Config holds configuration options for creating a worker pool.
type Config struct {
	// WorkerCount is the number of workers, between 1 and MaxWorkers.
	WorkerCount int

	// Seed is drawn from four times per worker to seed that worker's
	// generator. If nil, seeds come from fresh system entropy.
	Seed Seeder

	// Tasks is the initial batch, dealt round-robin across the workers'
	// deques before any worker starts.
	Tasks []Task

	// InitialDequeCapacity is the starting capacity of each worker's deque.
	// Must be a power of two; 0 selects deque.DefaultCapacity.
	InitialDequeCapacity int

	// ExpectedTaskDuration is the mean of the exponential delay drawn after
	// each deal attempt. Zero selects DefaultExpectedTaskDuration.
	ExpectedTaskDuration time.Duration

	// MaxIdleBackoff caps how long an idle worker sleeps between checks once
	// it has spun for a while. Zero means idle workers only yield.
	MaxIdleBackoff time.Duration

	// DisableStealing stops idle workers from stealing out of their peers'
	// deques, leaving dealing and submission as the only ways work moves.
	DisableStealing bool

	// Clock is used for deal timing. Defaults to the wall clock.
	Clock Clock

	// Name identifies the pool in logs and metrics.
	Name string

	// Logger receives lifecycle and failure events. Nil disables logging.
	Logger *zerolog.Logger

	// Metrics controls Prometheus export of the pool's counters.
	Metrics metrics.Config
}

func (c Config) validate() error {
	if err := validation.ValidateRange(module, "WorkerCount", c.WorkerCount, 1, MaxWorkers); err != nil {
		return err
	}
	if c.InitialDequeCapacity != 0 {
		if err := validation.ValidatePowerOfTwo(module, "InitialDequeCapacity", c.InitialDequeCapacity); err != nil {
			return err
		}
	}
	if err := validation.ValidateNonNegative(module, "ExpectedTaskDuration", int64(c.ExpectedTaskDuration)); err != nil {
		return err
	}
	if err := validation.ValidateNonNegative(module, "MaxIdleBackoff", int64(c.MaxIdleBackoff)); err != nil {
		return err
	}
	for i, t := range c.Tasks {
		if t == nil {
			return gferrors.NewValidationError(module, fmt.Sprintf("Tasks[%d]", i), nil, "cannot be nil")
		}
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.ExpectedTaskDuration == 0 {
		c.ExpectedTaskDuration = DefaultExpectedTaskDuration
	}
	if c.Clock == nil {
		c.Clock = systemClock{}
	}
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.Seed == nil {
		c.Seed = frand.NewSource()
	}
	return c
}

// WorkerStats is a snapshot of one worker's counters.
type WorkerStats = metrics.WorkerSample

// Pool is a fixed set of workers, each with its own work-stealing deque,
// that balance load by dealing tasks into idle peers' mailboxes.
type Pool struct {
	config  Config
	logger  zerolog.Logger
	workers []*Worker
	mail    *mailboxes
	inject  *injector

	shutdown    cacheline.Padded[atomic.Bool]
	outstanding cacheline.Padded[atomic.Int64]

	quiescent chan struct{}
	stopped   chan struct{}
	stopOnce  sync.Once

	failed   chan struct{}
	failOnce sync.Once
	failErr  error

	group     errgroup.Group
	closeOnce sync.Once
	closeErr  error
	collector *metrics.PoolCollector
}

// New validates config, distributes the initial tasks and starts one
// goroutine per worker, each locked to its own OS thread.
func New(config Config) (*Pool, error) {
	p, err := build(config)
	if err != nil {
		return nil, err
	}

	if p.config.Metrics.Enabled {
		p.collector = metrics.NewPoolCollector(p.config.Metrics, p.config.Name, p.sample)
		if err := metrics.Register(p.config.Metrics, p.collector); err != nil {
			return nil, gferrors.NewOperationError(module, "New", err).WithContext("registering metrics")
		}
	}

	p.start()
	return p, nil
}

// Run starts a pool, waits for it to run out of work and closes it.
func Run(ctx context.Context, config Config) error {
	p, err := New(config)
	if err != nil {
		return err
	}
	werr := p.Wait(ctx)
	cerr := p.Close()
	if werr != nil {
		return werr
	}
	return cerr
}

func build(config Config) (*Pool, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config = config.withDefaults()

	p := &Pool{
		config:    config,
		logger:    zerolog.Nop(),
		mail:      newMailboxes(config.WorkerCount),
		inject:    newInjector(config.WorkerCount),
		quiescent: make(chan struct{}, 1),
		stopped:   make(chan struct{}),
		failed:    make(chan struct{}),
	}
	if config.Logger != nil {
		p.logger = config.Logger.With().Str("pool", config.Name).Logger()
	}

	p.workers = make([]*Worker, config.WorkerCount)
	for i := range p.workers {
		w, err := newWorker(p, i, config.Seed)
		if err != nil {
			return nil, err
		}
		p.workers[i] = w
	}

	for k, task := range config.Tasks {
		t := task
		p.outstanding.Value.Add(1)
		if err := p.workers[k%len(p.workers)].deque.Push(&t); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Pool) start() {
	p.logger.Info().
		Int("workers", len(p.workers)).
		Int("tasks", len(p.config.Tasks)).
		Bool("stealing", !p.config.DisableStealing).
		Msg("pool-starting")

	for _, w := range p.workers {
		p.group.Go(w.run)
	}
}

// Submit hands a task to whichever idle worker picks it up first.
func (p *Pool) Submit(task Task) error {
	return p.submit(-1, task)
}

// SubmitTo hands a task to a specific worker. It runs once that worker has
// drained its own deque.
func (p *Pool) SubmitTo(worker int, task Task) error {
	if err := validation.ValidateRange(module, "worker", worker, 0, len(p.workers)-1); err != nil {
		return err
	}
	return p.submit(worker, task)
}

func (p *Pool) submit(target int, task Task) error {
	if task == nil {
		return ErrNilTask
	}
	if p.shutdown.Value.Load() {
		return fmt.Errorf("cannot submit task: %w", gferrors.ErrClosed)
	}
	p.outstanding.Value.Add(1)
	p.inject.add(target, &task)
	return nil
}

// Wait blocks until no task is outstanding, a task fails, the pool is shut
// down or ctx ends. It returns the task failure, ErrClosed or ctx's error
// respectively, and nil on quiescence.
//
// A pool is quiescent when every task created so far (initial, spawned or
// submitted) has finished. Submitting more work afterwards is allowed.
func (p *Pool) Wait(ctx context.Context) error {
	for {
		select {
		case <-p.failed:
			return p.failErr
		default:
		}
		if p.outstanding.Value.Load() == 0 {
			return nil
		}

		select {
		case <-p.quiescent:
		case <-p.failed:
			return p.failErr
		case <-p.stopped:
			select {
			case <-p.failed:
				return p.failErr
			default:
			}
			if p.outstanding.Value.Load() == 0 {
				return nil
			}
			return fmt.Errorf("pool stopped before its work finished: %w", gferrors.ErrClosed)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Shutdown asks every worker to stop after its current task. It does not
// wait; use Close for that.
func (p *Pool) Shutdown() {
	p.shutdown.Value.Store(true)
	p.stopOnce.Do(func() { close(p.stopped) })
}

// Close shuts the pool down and waits for every worker to exit. Tasks that
// are running finish; queued tasks are abandoned. It returns the first task
// failure, if any. Close is safe to call more than once.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		p.Shutdown()
		err := p.group.Wait()

		select {
		case <-p.failed:
			err = p.failErr
		default:
		}
		p.closeErr = err

		if p.collector != nil {
			metrics.Unregister(p.config.Metrics, p.collector)
		}
		p.logger.Info().Err(err).Int64("abandoned", p.inject.pending()).Msg("pool-stopped")
	})
	return p.closeErr
}

// Size returns the number of workers in the pool.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Outstanding returns the number of tasks created but not yet finished.
func (p *Pool) Outstanding() int64 {
	return p.outstanding.Value.Load()
}

// Stats returns a snapshot of every worker's counters.
func (p *Pool) Stats() []WorkerStats {
	return p.sample().Workers
}

func (p *Pool) sample() metrics.PoolSample {
	s := metrics.PoolSample{
		Workers:     make([]metrics.WorkerSample, len(p.workers)),
		Outstanding: p.outstanding.Value.Load(),
	}
	for i, w := range p.workers {
		s.Workers[i] = w.snapshot()
	}
	return s
}

// fail records the first task failure and stops the pool.
func (p *Pool) fail(err error) {
	p.failOnce.Do(func() {
		p.failErr = err
		close(p.failed)
	})
	p.Shutdown()
}

// finish marks one task as done.
func (p *Pool) finish() {
	if p.outstanding.Value.Add(-1) == 0 {
		select {
		case p.quiescent <- struct{}{}:
		default:
		}
	}
}
