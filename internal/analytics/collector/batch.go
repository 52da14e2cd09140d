// Package collector buffers analytics events in memory and ships them to
// Kafka in batches, so scan handlers never wait on the broker.
package collector

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/kafka"
)

// Producer is the sink flushed batches are published to.
// *kafka.Producer satisfies it.
type Producer interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// BatchCollector gathers events and flushes them when the buffer fills or
// a timer fires, whichever happens first. A failed flush puts the batch
// back in front of newer events; the buffer retains at most three batches,
// dropping the newest overflow so a long broker outage cannot grow memory
// without bound.
type BatchCollector struct {
	producer Producer
	size     int           // flush threshold
	every    time.Duration // flush interval
	retained int           // max buffered events across failures

	mu  sync.Mutex
	buf []kafka.Event

	dropped atomic.Int64
	log     *slog.Logger
	done    chan struct{}
}

// NewBatchCollector creates a collector flushing at size events or after
// every, whichever comes first. Zero values mean 100 events and 5s.
func NewBatchCollector(producer Producer, size int, every time.Duration) *BatchCollector {
	if size <= 0 {
		size = 100
	}
	if every <= 0 {
		every = 5 * time.Second
	}
	return &BatchCollector{
		producer: producer,
		size:     size,
		every:    every,
		retained: size * 3,
		buf:      make([]kafka.Event, 0, size),
		log:      slog.Default().With("component", "batch-collector"),
		done:     make(chan struct{}),
	}
}

// Start launches the timed flush loop and returns immediately. The loop
// runs until ctx is cancelled, then flushes whatever remains under a short
// deadline of its own.
func (bc *BatchCollector) Start(ctx context.Context) {
	go func() {
		defer close(bc.done)
		tick := time.NewTicker(bc.every)
		defer tick.Stop()
		for {
			select {
			case <-tick.C:
				bc.Flush(ctx)
			case <-ctx.Done():
				finalCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				bc.Flush(finalCtx)
				cancel()
				return
			}
		}
	}()
	bc.log.Info("batch collector started", "size", bc.size, "interval", bc.every)
}

// Track buffers one event. Filling the buffer triggers a flush off the
// caller's goroutine, so tracking never blocks on Kafka.
func (bc *BatchCollector) Track(key string, value any) {
	bc.mu.Lock()
	bc.buf = append(bc.buf, kafka.Event{Key: key, Value: value})
	full := len(bc.buf) >= bc.size
	bc.mu.Unlock()

	if full {
		go bc.Flush(context.Background())
	}
}

// Flush publishes everything buffered so far. On failure the batch is put
// back for the next attempt and the error is returned.
func (bc *BatchCollector) Flush(ctx context.Context) error {
	batch := bc.take()
	if len(batch) == 0 {
		return nil
	}
	if err := bc.producer.PublishBatch(ctx, batch); err != nil {
		bc.log.Error("batch flush failed", "events", len(batch), "error", err)
		bc.putBack(batch)
		return err
	}
	bc.log.Debug("batch flushed", "events", len(batch))
	return nil
}

// Close waits for the flush loop started by Start to finish.
func (bc *BatchCollector) Close() {
	<-bc.done
}

// BufferLen returns the number of events waiting to be flushed.
func (bc *BatchCollector) BufferLen() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.buf)
}

// Dropped returns how many events were discarded because the buffer
// overflowed during publish failures.
func (bc *BatchCollector) Dropped() int64 {
	return bc.dropped.Load()
}

// take swaps the buffer out under the lock, leaving a fresh one behind.
func (bc *BatchCollector) take() []kafka.Event {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if len(bc.buf) == 0 {
		return nil
	}
	batch := bc.buf
	bc.buf = make([]kafka.Event, 0, bc.size)
	return batch
}

// putBack re-queues a failed batch ahead of anything tracked since, then
// trims the newest events beyond the retention cap.
func (bc *BatchCollector) putBack(batch []kafka.Event) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.buf = append(batch, bc.buf...)
	if over := len(bc.buf) - bc.retained; over > 0 {
		bc.buf = bc.buf[:bc.retained]
		bc.dropped.Add(int64(over))
		bc.log.Warn("buffer overflow, events dropped", "dropped", over)
	}
}
