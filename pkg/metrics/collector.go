package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkerSample is a point-in-time copy of one worker's counters.
type WorkerSample struct {
	Worker          int
	Executed        uint64
	Failed          uint64
	Spawned         uint64
	DealsAttempted  uint64
	DealsSucceeded  uint64
	StealAttempts   uint64
	Steals          uint64
	MailboxReceived uint64
	IdleSpins       uint64
	QueueLength     int
	Generations     int
}

// PoolSample is a point-in-time copy of a pool's counters.
type PoolSample struct {
	Workers     []WorkerSample
	Outstanding int64
}

// Sampler produces samples on demand. It is called once per scrape.
type Sampler func() PoolSample

// PoolCollector exports a worker pool's counters. The counters themselves
// live in the pool and are only read at scrape time, so collection costs
// nothing on the scheduling path.
type PoolCollector struct {
	sample Sampler

	executed        *prometheus.Desc
	failed          *prometheus.Desc
	spawned         *prometheus.Desc
	dealsAttempted  *prometheus.Desc
	dealsSucceeded  *prometheus.Desc
	stealAttempts   *prometheus.Desc
	steals          *prometheus.Desc
	mailboxReceived *prometheus.Desc
	idleSpins       *prometheus.Desc
	queueLength     *prometheus.Desc
	generations     *prometheus.Desc
	outstanding     *prometheus.Desc
	workers         *prometheus.Desc
}

// NewPoolCollector creates a collector for the pool named poolName.
func NewPoolCollector(config Config, poolName string, sample Sampler) *PoolCollector {
	ns := config.namespace()
	constLabels := prometheus.Labels{"pool_name": poolName}
	for k, v := range config.Labels {
		constLabels[k] = v
	}

	worker := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(ns, "workerpool", name),
			help,
			[]string{"worker"},
			constLabels,
		)
	}
	pool := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(ns, "workerpool", name),
			help,
			nil,
			constLabels,
		)
	}

	return &PoolCollector{
		sample:          sample,
		executed:        worker("tasks_executed_total", "Total number of tasks executed"),
		failed:          worker("tasks_failed_total", "Total number of tasks that returned an error or panicked"),
		spawned:         worker("tasks_spawned_total", "Total number of tasks spawned onto the worker's deque"),
		dealsAttempted:  worker("deals_attempted_total", "Total number of attempts to deal a task to an idle peer"),
		dealsSucceeded:  worker("deals_succeeded_total", "Total number of tasks dealt to an idle peer"),
		stealAttempts:   worker("steal_attempts_total", "Total number of steal attempts against peers"),
		steals:          worker("steals_total", "Total number of tasks stolen from peers"),
		mailboxReceived: worker("mailbox_received_total", "Total number of tasks received through the mailbox"),
		idleSpins:       worker("idle_spins_total", "Total number of idle spin iterations"),
		queueLength:     worker("deque_length", "Current number of tasks in the worker's deque"),
		generations:     worker("deque_generations", "Number of backing arrays the worker's deque has allocated"),
		outstanding:     pool("outstanding_tasks", "Tasks created but not yet finished"),
		workers:         pool("workers", "Number of workers in the pool"),
	}
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.executed, c.failed, c.spawned, c.dealsAttempted, c.dealsSucceeded,
		c.stealAttempts, c.steals, c.mailboxReceived, c.idleSpins,
		c.queueLength, c.generations, c.outstanding, c.workers,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.sample()

	counter := func(d *prometheus.Desc, v uint64, worker string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), worker)
	}
	gauge := func(d *prometheus.Desc, v int, worker string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v), worker)
	}

	for _, w := range s.Workers {
		id := strconv.Itoa(w.Worker)
		counter(c.executed, w.Executed, id)
		counter(c.failed, w.Failed, id)
		counter(c.spawned, w.Spawned, id)
		counter(c.dealsAttempted, w.DealsAttempted, id)
		counter(c.dealsSucceeded, w.DealsSucceeded, id)
		counter(c.stealAttempts, w.StealAttempts, id)
		counter(c.steals, w.Steals, id)
		counter(c.mailboxReceived, w.MailboxReceived, id)
		counter(c.idleSpins, w.IdleSpins, id)
		gauge(c.queueLength, w.QueueLength, id)
		gauge(c.generations, w.Generations, id)
	}
	ch <- prometheus.MustNewConstMetric(c.outstanding, prometheus.GaugeValue, float64(s.Outstanding))
	ch <- prometheus.MustNewConstMetric(c.workers, prometheus.GaugeValue, float64(len(s.Workers)))
}

// Register registers c with the configured registerer.
func Register(config Config, c prometheus.Collector) error {
	return config.registerer().Register(c)
}

// Unregister removes c from the configured registerer.
func Unregister(config Config, c prometheus.Collector) bool {
	return config.registerer().Unregister(c)
}
