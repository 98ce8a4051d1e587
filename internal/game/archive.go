package game

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	ARCHIVE_QUEUE_SIZE = 1000
	ARCHIVE_TIMEOUT    = 3 * time.Second
)

// Archiver exports settled outcomes to an external audit store. Archives are
// write-only: the engine never reads them back.
type Archiver interface {
	ArchiveRound(ctx context.Context, item HistoryItem) error
	ArchiveBet(ctx context.Context, bet BetRecord) error
}

type archiveJob struct {
	round *HistoryItem
	bet   *BetRecord
}

// ArchiveQueue hands settled outcomes to archivers on a background goroutine
// so settlement never waits on I/O. A full queue drops the job.
type ArchiveQueue struct {
	archivers []Archiver
	jobs      chan archiveJob
	done      chan struct{}
	stopOnce  sync.Once
}

func NewArchiveQueue(archivers ...Archiver) *ArchiveQueue {
	return &ArchiveQueue{
		archivers: archivers,
		jobs:      make(chan archiveJob, ARCHIVE_QUEUE_SIZE),
		done:      make(chan struct{}),
	}
}

// Run drains the queue until ctx is cancelled or Stop is called.
func (q *ArchiveQueue) Run(ctx context.Context) {
	for {
		select {
		case job := <-q.jobs:
			q.process(ctx, job)
		case <-ctx.Done():
			return
		case <-q.done:
			q.drain(ctx)
			return
		}
	}
}

func (q *ArchiveQueue) Stop() {
	q.stopOnce.Do(func() { close(q.done) })
}

func (q *ArchiveQueue) drain(ctx context.Context) {
	for {
		select {
		case job := <-q.jobs:
			q.process(ctx, job)
		default:
			return
		}
	}
}

func (q *ArchiveQueue) ArchiveRound(_ context.Context, item HistoryItem) error {
	q.enqueue(archiveJob{round: &item})
	return nil
}

func (q *ArchiveQueue) ArchiveBet(_ context.Context, bet BetRecord) error {
	q.enqueue(archiveJob{bet: &bet})
	return nil
}

func (q *ArchiveQueue) enqueue(job archiveJob) {
	if len(q.archivers) == 0 {
		return
	}
	select {
	case q.jobs <- job:
	default:
		log.Warn("[ARCHIVE] Queue full, dropping job")
	}
}

func (q *ArchiveQueue) process(parent context.Context, job archiveJob) {
	ctx, cancel := context.WithTimeout(parent, ARCHIVE_TIMEOUT)
	defer cancel()

	for _, a := range q.archivers {
		var err error
		switch {
		case job.round != nil:
			err = a.ArchiveRound(ctx, *job.round)
		case job.bet != nil:
			err = a.ArchiveBet(ctx, *job.bet)
		}
		if err != nil {
			log.WithError(err).Errorf("[ARCHIVE] %T failed", a)
		}
	}
}
