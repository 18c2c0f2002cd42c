package workerpool

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/frand"

	"github.com/vnykmshr/stealflow/internal/testutil"
	gferrors "github.com/vnykmshr/stealflow/pkg/common/errors"
	"github.com/vnykmshr/stealflow/pkg/metrics"
)

func noop(*Worker) error { return nil }

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		wantError bool
	}{
		{"single worker", Config{WorkerCount: 1}, false},
		{"max workers", Config{WorkerCount: MaxWorkers}, false},
		{"with tasks", Config{WorkerCount: 2, Tasks: []Task{noop, noop}}, false},
		{"zero workers", Config{WorkerCount: 0}, true},
		{"too many workers", Config{WorkerCount: MaxWorkers + 1}, true},
		{"bad deque capacity", Config{WorkerCount: 2, InitialDequeCapacity: 12}, true},
		{"negative deal delay", Config{WorkerCount: 2, ExpectedTaskDuration: -time.Second}, true},
		{"negative backoff", Config{WorkerCount: 2, MaxIdleBackoff: -time.Second}, true},
		{"nil task", Config{WorkerCount: 2, Tasks: []Task{noop, nil}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := New(tt.config)
			if tt.wantError {
				testutil.AssertError(t, err)
				if !errors.Is(err, gferrors.ErrInvalidConfiguration) {
					t.Errorf("expected ErrInvalidConfiguration, got %v", err)
				}
				return
			}
			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, pool.Size(), tt.config.WorkerCount)
			testutil.AssertNoError(t, pool.Close())
		})
	}
}

func TestInitialTasksRunExactlyOnce(t *testing.T) {
	const n = 8

	var (
		mu   sync.Mutex
		seen = make(map[int]int)
	)
	tasks := lo.Times(n, func(i int) Task {
		return func(*Worker) error {
			mu.Lock()
			seen[i]++
			mu.Unlock()
			return nil
		}
	})

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	pool, err := New(Config{WorkerCount: 4, Tasks: tasks})
	require.NoError(t, err)
	require.NoError(t, pool.Wait(ctx))
	require.NoError(t, pool.Close())

	require.Len(t, seen, n)
	for i := 0; i < n; i++ {
		assert.Equal(t, 1, seen[i], "task %d", i)
	}
	testutil.AssertEqual(t, pool.Outstanding(), int64(0))
}

func TestSpawnedTreeCompletes(t *testing.T) {
	for _, stealing := range []bool{true, false} {
		var sum atomic.Int64
		ctx, cancel := testutil.WithTimeout(t)

		err := Run(ctx, Config{
			WorkerCount:     4,
			Tasks:           []Task{fibTask(18, &sum)},
			DisableStealing: !stealing,
		})
		cancel()

		require.NoError(t, err, "stealing=%v", stealing)
		testutil.AssertEqual(t, sum.Load(), int64(2584))
	}
}

func TestTaskErrorStopsPool(t *testing.T) {
	errBoom := errors.New("boom")

	pool, err := New(Config{
		WorkerCount: 3,
		Tasks: []Task{
			noop,
			func(*Worker) error { return errBoom },
			noop,
		},
	})
	require.NoError(t, err)

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	werr := pool.Wait(ctx)
	require.ErrorIs(t, werr, errBoom)

	var te *TaskError
	require.ErrorAs(t, werr, &te)
	assert.True(t, te.WorkerID >= 0 && te.WorkerID < 3)

	cerr := pool.Close()
	require.ErrorIs(t, cerr, errBoom)
	// idempotent
	require.ErrorIs(t, pool.Close(), errBoom)
}

func TestPanicIsReported(t *testing.T) {
	err := Run(context.Background(), Config{
		WorkerCount: 2,
		Tasks: []Task{func(*Worker) error {
			panic("kaboom")
		}},
	})
	require.Error(t, err)

	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	testutil.AssertEqual(t, pe.Value, any("kaboom"))
	assert.Contains(t, err.Error(), "task panicked: kaboom")
	assert.NotEmpty(t, pe.Stack)
}

func TestPanicWithErrorUnwraps(t *testing.T) {
	errInner := errors.New("inner")
	err := Run(context.Background(), Config{
		WorkerCount: 1,
		Tasks:       []Task{func(*Worker) error { panic(errInner) }},
	})
	require.ErrorIs(t, err, errInner)
}

func TestCloseStopsIdleWorkers(t *testing.T) {
	for _, backoff := range []time.Duration{0, time.Millisecond} {
		pool, err := New(Config{WorkerCount: 4, MaxIdleBackoff: backoff})
		require.NoError(t, err)

		// let the workers reach the idle loop
		time.Sleep(5 * time.Millisecond)

		done := make(chan error, 1)
		go func() { done <- pool.Close() }()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(testutil.TestTimeout):
			t.Fatalf("Close did not return (backoff=%v)", backoff)
		}
	}
}

func TestShutdownLetsRunningTaskFinish(t *testing.T) {
	var (
		started  = make(chan struct{})
		release  = make(chan struct{})
		finished atomic.Bool
		ranChild atomic.Bool
	)

	root := func(w *Worker) error {
		if err := w.Spawn(func(*Worker) error {
			ranChild.Store(true)
			return nil
		}); err != nil {
			return err
		}
		close(started)
		<-release
		finished.Store(true)
		return nil
	}

	pool, err := New(Config{WorkerCount: 1, Tasks: []Task{root}})
	require.NoError(t, err)

	<-started
	pool.Shutdown()
	close(release)

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()
	require.ErrorIs(t, pool.Wait(ctx), gferrors.ErrClosed)

	require.NoError(t, pool.Close())
	assert.True(t, finished.Load(), "running task must complete")
	assert.False(t, ranChild.Load(), "queued task must not start after shutdown")
}

func TestWaitHonoursContext(t *testing.T) {
	release := make(chan struct{})
	pool, err := New(Config{
		WorkerCount: 1,
		Tasks: []Task{func(*Worker) error {
			<-release
			return nil
		}},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, pool.Wait(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, pool.Wait(context.Background()))
	require.NoError(t, pool.Close())
}

func TestSubmit(t *testing.T) {
	pool, err := New(Config{WorkerCount: 3})
	require.NoError(t, err)

	var count atomic.Int64
	for i := 0; i < 100; i++ {
		require.NoError(t, pool.Submit(func(*Worker) error {
			count.Add(1)
			return nil
		}))
	}

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()
	require.NoError(t, pool.Wait(ctx))
	testutil.AssertEqual(t, count.Load(), int64(100))

	require.ErrorIs(t, pool.Submit(nil), ErrNilTask)
	require.NoError(t, pool.Close())
	require.ErrorIs(t, pool.Submit(noop), gferrors.ErrClosed)
}

func TestSubmitToRunsOnChosenWorker(t *testing.T) {
	pool, err := New(Config{WorkerCount: 4, DisableStealing: true})
	require.NoError(t, err)
	defer pool.Close()

	ran := make([]atomic.Int64, 4)
	for target := 0; target < 4; target++ {
		want := target
		require.NoError(t, pool.SubmitTo(target, func(w *Worker) error {
			if w.ID() != want {
				return errors.New("ran on the wrong worker")
			}
			ran[want].Add(1)
			return nil
		}))
	}

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()
	require.NoError(t, pool.Wait(ctx))
	for i := range ran {
		testutil.AssertEqual(t, ran[i].Load(), int64(1))
	}

	require.True(t, gferrors.IsValidationError(pool.SubmitTo(4, noop)))
	require.True(t, gferrors.IsValidationError(pool.SubmitTo(-1, noop)))
}

func sleepyFanOut(n int, d time.Duration) Task {
	return func(w *Worker) error {
		for i := 0; i < n; i++ {
			if err := w.Spawn(func(*Worker) error {
				time.Sleep(d)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	}
}

func TestDealingMovesWorkToIdlePeer(t *testing.T) {
	const children = 64

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	pool, err := New(Config{
		WorkerCount:     2,
		Tasks:           []Task{sleepyFanOut(children, time.Millisecond)},
		DisableStealing: true,
	})
	require.NoError(t, err)
	require.NoError(t, pool.Wait(ctx))
	require.NoError(t, pool.Close())

	stats := pool.Stats()
	require.Len(t, stats, 2)

	var executed uint64
	for _, s := range stats {
		executed += s.Executed
		testutil.AssertEqual(t, s.Steals, uint64(0))
	}
	testutil.AssertEqual(t, executed, uint64(children+1))
	testutil.AssertEqual(t, stats[0].Spawned, uint64(children))
	assert.Greater(t, stats[0].DealsSucceeded, uint64(0))
	assert.Greater(t, stats[1].MailboxReceived, uint64(0))
	assert.Greater(t, stats[1].Executed, uint64(0))
}

func TestIdleWorkersSteal(t *testing.T) {
	const children = 64

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	pool, err := New(Config{
		WorkerCount: 4,
		Tasks:       []Task{sleepyFanOut(children, time.Millisecond)},
	})
	require.NoError(t, err)
	require.NoError(t, pool.Wait(ctx))
	require.NoError(t, pool.Close())

	var executed, steals uint64
	for _, s := range pool.Stats() {
		executed += s.Executed
		steals += s.Steals
	}
	testutil.AssertEqual(t, executed, uint64(children+1))
	assert.Greater(t, steals, uint64(0))
}

func TestRoundRobinDistribution(t *testing.T) {
	p, err := build(Config{WorkerCount: 3, Tasks: lo.Times(7, func(int) Task { return noop })})
	require.NoError(t, err)

	lens := lo.Map(p.workers, func(w *Worker, _ int) int { return w.Len() })
	assert.Equal(t, []int{3, 2, 2}, lens)
	testutil.AssertEqual(t, p.Outstanding(), int64(7))
}

func TestSeedingIsDeterministic(t *testing.T) {
	draws := func() [][]int {
		p, err := build(Config{WorkerCount: 4, Seed: rand.New(rand.NewPCG(1, 2))})
		require.NoError(t, err)
		out := make([][]int, len(p.workers))
		for i, w := range p.workers {
			for k := 0; k < 32; k++ {
				j := w.randomPeer()
				require.NotEqual(t, w.ID(), j)
				require.True(t, j >= 0 && j < 4)
				out[i] = append(out[i], j)
			}
		}
		return out
	}

	a, b := draws(), draws()
	assert.Equal(t, a, b)
	// workers are seeded independently
	assert.NotEqual(t, a[0], a[1])
}

func TestDealDelayIsExponential(t *testing.T) {
	rng := frand.NewCustom(make([]byte, 32), 1024, 12)
	const (
		n    = 100000
		mean = 100 * time.Microsecond
	)

	var total float64
	for i := 0; i < n; i++ {
		d := dealDelay(rng, mean)
		require.GreaterOrEqual(t, d, time.Duration(0))
		total += float64(d)
	}
	assert.InEpsilon(t, float64(mean), total/n, 0.05)
}

func TestDealRespectsSchedule(t *testing.T) {
	clock := testutil.NewMockClock(time.Unix(1000, 0))
	p, err := build(Config{
		WorkerCount: 2,
		Clock:       clock,
		Tasks:       lo.Times(4, func(int) Task { return noop }),
	})
	require.NoError(t, err)

	w := p.workers[0]
	// worker 1 is busy
	require.Nil(t, p.mail.retract(1))
	w.deal()
	testutil.AssertEqual(t, w.snapshot().DealsAttempted, uint64(0))
	require.False(t, w.nextDeal.After(clock.Now()))

	require.Nil(t, p.mail.markIdle(1))
	clock.Advance(time.Second)
	w.deal()
	s := w.snapshot()
	testutil.AssertEqual(t, s.DealsAttempted, uint64(1))
	testutil.AssertEqual(t, s.DealsSucceeded, uint64(1))
	testutil.AssertEqual(t, w.Len(), 1)

	got := p.mail.take(1)
	require.NotNil(t, got)

	// the peer is busy now: nothing moves and the task stays local
	clock.Advance(time.Second)
	w.deal()
	testutil.AssertEqual(t, w.Len(), 1)
	testutil.AssertEqual(t, w.snapshot().DealsSucceeded, uint64(1))
}

func TestSpawnNil(t *testing.T) {
	p, err := build(Config{WorkerCount: 1})
	require.NoError(t, err)
	require.ErrorIs(t, p.workers[0].Spawn(nil), ErrNilTask)
	testutil.AssertEqual(t, p.Outstanding(), int64(0))
}

func TestMetricsExport(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := Config{
		WorkerCount: 2,
		Name:        "fib",
		Tasks:       []Task{noop, noop, noop},
		Metrics:     metrics.Config{Enabled: true, Registry: reg},
	}

	pool, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()
	require.NoError(t, pool.Wait(ctx))

	families, err := reg.Gather()
	require.NoError(t, err)

	var executed float64
	for _, mf := range families {
		if mf.GetName() != "stealflow_workerpool_tasks_executed_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			executed += m.GetCounter().GetValue()
		}
	}
	testutil.AssertEqual(t, executed, float64(3))

	// a second pool with the same name collides until the first closes
	_, err = New(cfg)
	require.Error(t, err)

	require.NoError(t, pool.Close())
	families, err = reg.Gather()
	require.NoError(t, err)
	assert.Empty(t, families)
}

func TestLogging(t *testing.T) {
	var buf testutil.LogBuffer
	logger := zerolog.New(&buf)

	err := Run(context.Background(), Config{
		WorkerCount: 2,
		Name:        "logged",
		Logger:      &logger,
		Tasks:       []Task{func(*Worker) error { return errors.New("bad input") }},
	})
	require.Error(t, err)

	assert.True(t, buf.Contains(`"message":"pool-starting"`))
	assert.True(t, buf.Contains(`"message":"task-failed"`))
	assert.True(t, buf.Contains(`"message":"pool-stopped"`))
	assert.True(t, buf.Contains(`"pool":"logged"`))
	assert.True(t, buf.Contains("bad input"))
}
