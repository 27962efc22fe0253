package audit

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mdkashifakram/LLMGuardian/pkg/observability/logging"
	"github.com/mdkashifakram/LLMGuardian/pkg/observability/metrics"
	"github.com/mdkashifakram/LLMGuardian/pkg/pii"
)

// Level controls how much of each detection is persisted.
type Level string

const (
	// LevelNone disables persistence entirely.
	LevelNone Level = "none"
	// LevelMinimal stores the detected kind only.
	LevelMinimal Level = "minimal"
	// LevelStandard stores kind, token and original length.
	LevelStandard Level = "standard"
	// LevelDetailed additionally stores the match positions.
	LevelDetailed Level = "detailed"
)

// ParseLevel maps a config string to a Level. Unknown names resolve to
// standard with ok=false.
func ParseLevel(name string) (Level, bool) {
	switch Level(strings.ToLower(strings.TrimSpace(name))) {
	case LevelNone:
		return LevelNone, true
	case LevelMinimal:
		return LevelMinimal, true
	case LevelStandard, "":
		return LevelStandard, true
	case LevelDetailed:
		return LevelDetailed, true
	default:
		return LevelStandard, false
	}
}

// Sink defaults.
const (
	DefaultQueueSize     = 1024
	DefaultWorkers       = 2
	DefaultRetentionDays = 90
	DefaultSweepInterval = 24 * time.Hour

	writeTimeout = 5 * time.Second
	sweepTimeout = time.Minute
)

// SinkOptions configures the asynchronous sink.
type SinkOptions struct {
	Enabled       bool
	Level         Level
	QueueSize     int
	Workers       int
	RetentionDays int
	// SweepInterval is how often expired records are purged.
	SweepInterval time.Duration
}

// Sink persists detection records without ever blocking request handling:
// batches go through a bounded queue and are dropped with a warning when
// it is full.
type Sink struct {
	store   *Store
	level   Level
	enabled bool

	queue     chan []Entry
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	dropped int64
}

// NewSink starts the worker pool and the retention sweeper. A nil store,
// Enabled=false or level none yields an inert sink whose Submit drops
// everything silently.
func NewSink(store *Store, opts SinkOptions) *Sink {
	if !opts.Enabled || opts.Level == LevelNone || store == nil {
		logging.Infof("audit sink disabled")
		return &Sink{level: LevelNone}
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = DefaultRetentionDays
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}

	s := &Sink{
		store:   store,
		level:   opts.Level,
		enabled: true,
		queue:   make(chan []Entry, opts.QueueSize),
		done:    make(chan struct{}),
	}
	for i := 0; i < opts.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	s.wg.Add(1)
	go s.sweeper(opts.RetentionDays, opts.SweepInterval)

	logging.Infof("audit sink started: level=%s queue=%d workers=%d retention=%dd",
		opts.Level, opts.QueueSize, opts.Workers, opts.RetentionDays)
	return s
}

// Enabled reports whether records are being persisted.
func (s *Sink) Enabled() bool {
	return s.enabled
}

// Level returns the configured detail level.
func (s *Sink) Level() Level {
	return s.level
}

// Submit queues one request's detections. It never blocks; the return
// value reports whether the batch was accepted.
func (s *Sink) Submit(rctx *pii.Context) bool {
	if !s.enabled || rctx == nil {
		return false
	}
	records := rctx.Records()
	if len(records) == 0 {
		return true
	}

	select {
	case <-s.done:
		return false
	default:
	}

	batch := s.buildEntries(rctx.RequestID, records)
	select {
	case s.queue <- batch:
		metrics.UpdateAuditQueueDepth(len(s.queue))
		return true
	default:
		atomic.AddInt64(&s.dropped, 1)
		metrics.RecordAuditDrop()
		logging.Warnf("audit queue full, dropping %d records for request %s", len(batch), rctx.RequestID)
		return false
	}
}

// Dropped returns the number of batches discarded on overflow.
func (s *Sink) Dropped() int64 {
	return atomic.LoadInt64(&s.dropped)
}

// Close stops the workers after draining queued batches. The store stays
// open; its owner closes it.
func (s *Sink) Close() {
	if !s.enabled {
		return
	}
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
}

func (s *Sink) buildEntries(requestID string, records []pii.Record) []Entry {
	now := time.Now()
	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		e := Entry{
			RequestID: requestID,
			Kind:      rec.Kind,
			Action:    ActionRedacted,
			CreatedAt: now,
		}
		if s.level != LevelMinimal {
			e.Token = rec.Token
			e.OriginalLength = rec.OriginalLength
		}
		if s.level == LevelDetailed {
			start, end := rec.Start, rec.End
			e.PositionStart = &start
			e.PositionEnd = &end
		}
		entries = append(entries, e)
	}
	return entries
}

func (s *Sink) worker() {
	defer s.wg.Done()
	for {
		select {
		case batch := <-s.queue:
			s.persist(batch)
		case <-s.done:
			// Drain whatever is already queued, then exit.
			for {
				select {
				case batch := <-s.queue:
					s.persist(batch)
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) persist(batch []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := s.store.Insert(ctx, batch); err != nil {
		logging.Errorf("audit write failed for request %s: %v", batch[0].RequestID, err)
		return
	}
	metrics.RecordAuditWrites(len(batch))
	metrics.UpdateAuditQueueDepth(len(s.queue))
	logging.Debugf("audit persisted %d records for request %s", len(batch), batch[0].RequestID)
}

func (s *Sink) sweeper(retentionDays int, interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep(retentionDays)
		}
	}
}

func (s *Sink) sweep(retentionDays int) {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		logging.Errorf("audit retention sweep failed: %v", err)
		return
	}
	if deleted > 0 {
		logging.Infof("audit retention sweep removed %d records older than %d days", deleted, retentionDays)
	}
}
