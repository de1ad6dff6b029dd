// Package compute provides the data-parallel dispatch primitive the solver
// passes run on: a persistent worker pool that fans an index range out to
// workers and blocks until every chunk has completed. A Run call is a full
// barrier; shared-state coordination inside a pass is done with sync/atomic
// by the callers.
package compute

import (
	"runtime"
	"sync"
)

// chunk represents a half-open index range for a worker to process.
type chunk struct {
	start, end int
	fn         func(start, end int)
}

// Pool is a fixed set of persistent worker goroutines.
type Pool struct {
	numWorkers      int
	serialThreshold int

	workChan chan chunk    // sends work to workers
	doneChan chan struct{} // workers signal completion
	stopChan chan struct{} // signals workers to exit
	wg       sync.WaitGroup
	running  bool
}

// NewPool creates a pool with the given worker count (0 = GOMAXPROCS).
// Ranges shorter than serialThreshold run inline on the calling goroutine,
// where goroutine overhead would dominate.
func NewPool(workers, serialThreshold int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if serialThreshold < 0 {
		serialThreshold = 0
	}
	return &Pool{
		numWorkers:      workers,
		serialThreshold: serialThreshold,
	}
}

// Workers returns the worker count.
func (p *Pool) Workers() int {
	return p.numWorkers
}

// start launches the persistent worker goroutines.
func (p *Pool) start() {
	if p.running {
		return
	}

	p.workChan = make(chan chunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Close signals all workers to exit and waits for them.
// The pool can be reused after Close; the next Run restarts the workers.
func (p *Pool) Close() {
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

// worker runs in a goroutine, processing chunks until stopped.
func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case c, ok := <-p.workChan:
			if !ok {
				return
			}
			c.fn(c.start, c.end)
			p.doneChan <- struct{}{}
		}
	}
}

// Run partitions [0, n) into per-worker chunks, executes fn on each, and
// returns once all chunks have finished. The channel handshake orders all
// worker writes before Run returns, so the caller observes a consistent
// view of memory touched by the pass.
func (p *Pool) Run(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	if n < p.serialThreshold || p.numWorkers == 1 {
		fn(0, n)
		return
	}

	if !p.running {
		p.start()
	}

	chunkSize := (n + p.numWorkers - 1) / p.numWorkers

	dispatched := 0
	for w := 0; w < p.numWorkers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}

		p.workChan <- chunk{start: start, end: end, fn: fn}
		dispatched++
	}

	for i := 0; i < dispatched; i++ {
		<-p.doneChan
	}
}
