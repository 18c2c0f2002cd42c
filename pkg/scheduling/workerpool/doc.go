/*
Package workerpool runs fork/join style tasks on a fixed set of workers that
balance load between themselves.

Each worker owns a lock-free work-stealing deque (see package deque) and runs
on its own OS thread. A task is handed the worker that runs it and may Spawn
more tasks onto that worker's deque; the worker always runs the most recently
spawned task next.

Basic usage:

	var sum atomic.Int64
	var fib workerpool.Task
	fib = func(w *workerpool.Worker) error { ... }

	err := workerpool.Run(ctx, workerpool.Config{
		WorkerCount: runtime.NumCPU(),
		Tasks:       []workerpool.Task{fib},
	})

Load Balancing:

Work moves between workers in two ways.

Dealing is push based. After a worker picks a task it may pick a random peer,
and if that peer has announced it is idle, hand it the oldest task in its own
deque through the peer's single-slot mailbox. A mailbox accepts a task only
through a compare-and-swap from the idle state, so a busy worker is never
handed work and an idle one never receives two tasks at once. Deal attempts
are spaced by an exponentially distributed delay whose mean is
Config.ExpectedTaskDuration.

Stealing is pull based. While idle, a worker also tries to take the oldest
task from a random peer's deque. This catches the case where dealing never
fires, such as a single busy worker whose peers are all waiting. Set
Config.DisableStealing to rely on dealing alone.

Initial tasks are dealt round-robin over the workers before any of them
starts. Tasks submitted with Submit or SubmitTo from outside the pool are
queued and picked up by the first idle worker (or the chosen one).

Completion and Failure:

Wait returns once every task created so far has finished. If a task returns
an error or panics, the pool stops: the failure is returned from Wait and
Close as a *TaskError, wrapping a *PanicError for panics, and the remaining
workers exit after their current task.

Shutdown is cooperative. Shutdown sets a flag checked at the top of each
worker's loop and on each idle spin; Close sets it and joins every worker.
Running tasks are never interrupted.

Observability:

Every worker keeps counters of executed tasks, deals, steals and idle spins.
Stats returns a snapshot, and with Config.Metrics.Enabled the same counters
are exported to Prometheus through package metrics. Lifecycle events and task
failures are logged through Config.Logger, a zerolog logger.
*/
package workerpool
