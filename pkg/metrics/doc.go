// Package metrics provides Prometheus instrumentation for stealflow components.
//
// Worker pools keep their counters in plain per-worker atomics. PoolCollector
// turns a snapshot of those counters into Prometheus series when the registry
// is scraped, so enabling metrics adds no work to the scheduling loop.
//
// # Quick Start
//
// Enable metrics in the pool configuration:
//
//	pool, err := workerpool.New(workerpool.Config{
//		WorkerCount: 8,
//		Name:        "render",
//		Metrics:     metrics.DefaultConfig(),
//	})
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.Handler())
//	log.Fatal(http.ListenAndServe(":8080", nil))
//
// # Custom Registry
//
// Use a custom Prometheus registry for isolation:
//
//	registry := prometheus.NewRegistry()
//	config := metrics.Config{
//		Enabled:  true,
//		Registry: registry,
//	}
//
// # Available Metrics
//
// Per worker (label "worker"):
//
//   - stealflow_workerpool_tasks_executed_total
//   - stealflow_workerpool_tasks_failed_total
//   - stealflow_workerpool_tasks_spawned_total
//   - stealflow_workerpool_deals_attempted_total
//   - stealflow_workerpool_deals_succeeded_total
//   - stealflow_workerpool_steal_attempts_total
//   - stealflow_workerpool_steals_total
//   - stealflow_workerpool_mailbox_received_total
//   - stealflow_workerpool_idle_spins_total
//   - stealflow_workerpool_deque_length
//   - stealflow_workerpool_deque_generations
//
// Per pool:
//
//   - stealflow_workerpool_outstanding_tasks
//   - stealflow_workerpool_workers
//
// Every series carries the const label "pool_name" plus Config.Labels.
package metrics
