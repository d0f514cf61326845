package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// dumpResult is one row of a dumped table, or the error ending it.
type dumpResult struct {
	row Row
	err error
}

// workerPool dumps tables concurrently, one table per job.
type workerPool struct {
	workers int
	logger  *slog.Logger
	jobs    chan Table
	results chan dumpResult
	wg      sync.WaitGroup
}

// newWorkerPool creates a pool with the given number of workers.
// The jobs channel is buffered at workers*2 to allow some pipelining.
func newWorkerPool(workers int, logger *slog.Logger) *workerPool {
	if workers <= 0 {
		workers = 1
	}
	return &workerPool{
		workers: workers,
		logger:  logger,
		jobs:    make(chan Table, workers*2),
		results: make(chan dumpResult, workers*2),
	}
}

// start launches the workers. Each runs dump for the tables it receives;
// dump reports rows through send, which fails once ctx is done.
func (p *workerPool) start(ctx context.Context, dump func(ctx context.Context, t Table, send func(dumpResult) bool)) {
	for range p.workers {
		p.wg.Add(1)
		go p.worker(ctx, dump)
	}
}

func (p *workerPool) worker(ctx context.Context, dump func(ctx context.Context, t Table, send func(dumpResult) bool)) {
	defer p.wg.Done()

	for t := range p.jobs {
		// Recover from panics so one bad table does not crash the pool.
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("worker recovered from panic",
						"table", t.Database+"."+t.Name,
						"panic", fmt.Sprintf("%v", r),
					)
					p.send(ctx, dumpResult{err: &TableError{Database: t.Database, Table: t.Name, Err: fmt.Errorf("panic: %v", r)}})
				}
			}()

			if ctx.Err() != nil {
				return
			}
			dump(ctx, t, func(r dumpResult) bool { return p.send(ctx, r) })
		}()
	}
}

func (p *workerPool) send(ctx context.Context, r dumpResult) bool {
	select {
	case p.results <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

// submit adds a job to the queue. It blocks if the jobs channel is full
// and gives up when ctx is done.
func (p *workerPool) submit(ctx context.Context, t Table) bool {
	select {
	case p.jobs <- t:
		return true
	case <-ctx.Done():
		return false
	}
}

// close signals that no more jobs will be submitted, then waits for all
// workers to finish and closes the results channel.
func (p *workerPool) close() {
	close(p.jobs)
	p.wg.Wait()
	close(p.results)
}
