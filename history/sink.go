package history

import (
	"sync"
	"time"

	"github.com/zeus-go/foundation/core"
)

const (
	defaultFlushInterval = time.Second
	defaultMaxBuffer     = 10000
)

// SinkOptions configures a Sink.
type SinkOptions struct {
	// FlushInterval defaults to one second.
	FlushInterval time.Duration

	// Retention, when positive, deletes records older than Retention once
	// per cleanup period.
	Retention time.Duration

	// MaxBuffer caps the records held between flushes; the oldest are
	// discarded beyond it. Defaults to 10000.
	MaxBuffer int

	Logger core.Logger
}

// Sink buffers execution records in memory and writes them to a Store in
// batches from a timer thread. It implements core.RecordSink.
type Sink struct {
	store  *Store
	opts   SinkOptions
	timer  *core.RelativeTimer
	buffer *core.MutexObject[[]core.TaskExecutionRecord]

	flushID   core.TimerID
	cleanupID core.TimerID
	discarded uint64

	closeOnce sync.Once
	closeErr  error
}

var _ core.RecordSink = (*Sink)(nil)

// NewSink starts periodic flushing of records into store. The Sink owns
// store and closes it in Close.
func NewSink(store *Store, opts SinkOptions) *Sink {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	if opts.MaxBuffer <= 0 {
		opts.MaxBuffer = defaultMaxBuffer
	}
	if opts.Logger == nil {
		opts.Logger = core.NewDefaultLogger()
	}

	s := &Sink{
		store:  store,
		opts:   opts,
		buffer: core.NewMutexObject[[]core.TaskExecutionRecord](nil),
		timer: core.NewRelativeTimer(core.TimerOptions{
			Name:  "history-sink",
			Hooks: core.Hooks{Logger: opts.Logger},
		}),
	}
	s.flushID = s.timer.AddSimplePeriodTimerTask(s.flushLogged, opts.FlushInterval, core.WithTaskName("flush"))
	if opts.Retention > 0 {
		s.cleanupID = s.timer.AddSimplePeriodTimerTask(s.cleanup, cleanupPeriod(opts.Retention), core.WithTaskName("cleanup"))
	}
	return s
}

// cleanupPeriod runs retention roughly ten times per retention window,
// bounded to [1m, 1h].
func cleanupPeriod(retention time.Duration) time.Duration {
	return min(max(retention/10, time.Minute), time.Hour)
}

// Record buffers one execution record.
func (s *Sink) Record(record core.TaskExecutionRecord) {
	s.buffer.With(func(buf *[]core.TaskExecutionRecord) {
		if len(*buf) >= s.opts.MaxBuffer {
			*buf = (*buf)[1:]
			s.discarded++
		}
		*buf = append(*buf, record)
	})
}

// Buffered returns the number of records waiting for the next flush.
func (s *Sink) Buffered() int {
	n := 0
	s.buffer.With(func(buf *[]core.TaskExecutionRecord) { n = len(*buf) })
	return n
}

// Flush writes the buffered records now.
func (s *Sink) Flush() error {
	batch := s.buffer.Swap(nil)
	if len(batch) == 0 {
		return nil
	}
	if err := s.store.Write(batch); err != nil {
		// Put the batch back in front of records that arrived meanwhile.
		s.buffer.With(func(buf *[]core.TaskExecutionRecord) {
			merged := append(batch, *buf...)
			if over := len(merged) - s.opts.MaxBuffer; over > 0 {
				merged = merged[over:]
				s.discarded += uint64(over)
			}
			*buf = merged
		})
		return err
	}
	return nil
}

func (s *Sink) flushLogged() {
	if err := s.Flush(); err != nil {
		s.opts.Logger.Error("history flush failed",
			core.F("path", s.store.Path()),
			core.F("error", err))
	}
}

func (s *Sink) cleanup() {
	n, err := s.store.Cleanup(time.Now().Add(-s.opts.Retention))
	if err != nil {
		s.opts.Logger.Error("history cleanup failed", core.F("error", err))
		return
	}
	if n > 0 {
		s.opts.Logger.Debug("history cleanup", core.F("deleted", n))
	}
}

// Close stops the flush timer, writes what is buffered and closes the store.
func (s *Sink) Close() error {
	s.closeOnce.Do(func() {
		s.timer.RemoveTimerTaskWait(s.flushID)
		if !s.cleanupID.IsZero() {
			s.timer.RemoveTimerTaskWait(s.cleanupID)
		}
		s.timer.Stop()

		flushErr := s.Flush()
		closeErr := s.store.Close()
		if flushErr != nil {
			s.closeErr = flushErr
		} else {
			s.closeErr = closeErr
		}

		var discarded uint64
		s.buffer.With(func(*[]core.TaskExecutionRecord) { discarded = s.discarded })
		if discarded > 0 {
			s.opts.Logger.Warn("history records discarded", core.F("count", discarded))
		}
	})
	return s.closeErr
}
