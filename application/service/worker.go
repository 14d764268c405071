package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/helixml/syntree/domain/document"
	"github.com/helixml/syntree/domain/progress"
	"github.com/helixml/syntree/infrastructure/batch"
	"github.com/helixml/syntree/infrastructure/git"
)

// FileProcessor processes one file of a commit.
type FileProcessor interface {
	Process(ctx context.Context, commit document.Commit, entry git.Entry) (FileResult, error)
}

// ProcessorFactory creates the processor owned by one pool worker. root is
// the checkout being analyzed.
type ProcessorFactory func(worker int, root string) (FileProcessor, error)

// FileWorkerFactory returns a ProcessorFactory that gives every worker its
// own FileWorker and batch.Writer over store.
func FileWorkerFactory(store document.Store, isConflict batch.ConflictFunc, cfg FileWorkerConfig, opts ...batch.Option) ProcessorFactory {
	return func(worker int, root string) (FileProcessor, error) {
		workerCfg := cfg
		workerCfg.Root = root
		if workerCfg.Logger == nil {
			workerCfg.Logger = slog.Default()
		}
		workerCfg.Logger = workerCfg.Logger.With(slog.Int("worker", worker))

		writerOpts := append([]batch.Option{batch.WithLogger(workerCfg.Logger)}, opts...)
		if workerCfg.Sink != nil {
			writerOpts = append(writerOpts, batch.WithSink(workerCfg.Sink))
		}
		return NewFileWorker(store, batch.NewWriter(store, isConflict, writerOpts...), workerCfg)
	}
}

// fileOutcome is what a pool worker reports for one entry.
type fileOutcome struct {
	result FileResult
	err    error
}

// pool runs processors over entries received on jobs. Each worker sends its
// outcome before taking the next entry.
type pool struct {
	jobs    chan git.Entry
	results chan fileOutcome
	wg      sync.WaitGroup
}

func startPool(ctx context.Context, commit document.Commit, processors []FileProcessor) *pool {
	p := &pool{
		jobs:    make(chan git.Entry),
		results: make(chan fileOutcome),
	}
	for _, proc := range processors {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for entry := range p.jobs {
				result, err := processWithRecovery(ctx, proc, commit, entry)
				p.results <- fileOutcome{result: result, err: err}
			}
		}()
	}
	return p
}

// stop closes the job queue and waits for the workers to exit. Every
// dispatched outcome must have been received.
func (p *pool) stop() {
	close(p.jobs)
	p.wg.Wait()
}

func processWithRecovery(ctx context.Context, proc FileProcessor, commit document.Commit, entry git.Entry) (result FileResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = FileResult{Path: entry.Path}
			err = fmt.Errorf("processor panicked on %s: %v", entry.Path, r)
		}
	}()
	return proc.Process(ctx, commit, entry)
}

// fileDone reports a processed file to the sink.
func fileDone(sink progress.Sink) {
	sink.Send(progress.FileDone())
}
