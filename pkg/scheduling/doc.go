/*
Package scheduling groups the task execution primitives.

  - deque: Single-owner, multi-thief work-stealing deque
  - workerpool: Worker pool built from one deque per worker

Deque:

The owner pushes and pops at the bottom; any goroutine may steal from the top:

	d, _ := deque.New[Job](0)
	_ = d.Push(&job)

	if j, ok := d.Pop(); ok {
		run(j)
	}
	if j, res := d.Steal(); res == deque.Stolen {
		run(j)
	}

Worker Pool:

	pool, err := workerpool.New(workerpool.Config{WorkerCount: 4, Tasks: tasks})
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Wait(ctx); err != nil {
		return err
	}

Tasks that fail stop the whole pool; the first failure is returned from Wait
and Close.
*/
package scheduling
