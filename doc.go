/*
Package stealflow provides a low-overhead task scheduling core for parallel,
fork/join style work.

Task Scheduling (pkg/scheduling):
  - deque: Lock-free Chase-Lev work-stealing deque with dynamic growth
  - workerpool: Fixed pool of OS-thread workers balanced by dealing and stealing

Support (pkg/common, pkg/metrics):
  - cacheline: Padding that keeps hot atomics on their own cache line
  - errors, validation: Shared error types and configuration checks
  - metrics: Prometheus export of worker pool counters

Example usage:

	import "github.com/vnykmshr/stealflow/pkg/scheduling/workerpool"

	err := workerpool.Run(ctx, workerpool.Config{
		WorkerCount: 8,
		Tasks:       []workerpool.Task{root},
	})

A task receives the worker running it and may Spawn further tasks onto that
worker. Idle workers receive surplus tasks from busy peers through per-worker
mailboxes, and steal from peers' deques when nothing is dealt to them.
*/
package stealflow
