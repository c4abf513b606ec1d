package vecfile

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordInsert is called after each insert.
	RecordInsert(duration time.Duration, err error)

	// RecordFind is called after each lookup. hit reports whether the key
	// was present.
	RecordFind(hit bool, duration time.Duration)

	// RecordExpunge is called after each expunge. removed reports whether a
	// value was deleted.
	RecordExpunge(removed bool, err error)

	// RecordFlush is called after each commit of pending pages.
	RecordFlush(duration time.Duration, err error)

	// RecordRecover is called after each discard of pending pages.
	RecordRecover(err error)

	// RecordExpand is called after each growth of the data pages.
	// pages is the number of pages allocated.
	RecordExpand(pages int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordInsert(time.Duration, error)      {}
func (NoopMetricsCollector) RecordFind(bool, time.Duration)         {}
func (NoopMetricsCollector) RecordExpunge(bool, error)              {}
func (NoopMetricsCollector) RecordFlush(time.Duration, error)       {}
func (NoopMetricsCollector) RecordRecover(error)                    {}
func (NoopMetricsCollector) RecordExpand(int, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	InsertCount      atomic.Int64
	InsertErrors     atomic.Int64
	InsertTotalNanos atomic.Int64
	FindCount        atomic.Int64
	FindHits         atomic.Int64
	ExpungeCount     atomic.Int64
	ExpungeRemoved   atomic.Int64
	ExpungeErrors    atomic.Int64
	FlushCount       atomic.Int64
	FlushErrors      atomic.Int64
	FlushTotalNanos  atomic.Int64
	RecoverCount     atomic.Int64
	RecoverErrors    atomic.Int64
	ExpandCount      atomic.Int64
	ExpandPages      atomic.Int64
	ExpandErrors     atomic.Int64
}

// RecordInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInsert(duration time.Duration, err error) {
	b.InsertCount.Add(1)
	b.InsertTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.InsertErrors.Add(1)
	}
}

// RecordFind implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFind(hit bool, _ time.Duration) {
	b.FindCount.Add(1)
	if hit {
		b.FindHits.Add(1)
	}
}

// RecordExpunge implements MetricsCollector.
func (b *BasicMetricsCollector) RecordExpunge(removed bool, err error) {
	b.ExpungeCount.Add(1)
	if removed {
		b.ExpungeRemoved.Add(1)
	}
	if err != nil {
		b.ExpungeErrors.Add(1)
	}
}

// RecordFlush implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFlush(duration time.Duration, err error) {
	b.FlushCount.Add(1)
	b.FlushTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.FlushErrors.Add(1)
	}
}

// RecordRecover implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRecover(err error) {
	b.RecoverCount.Add(1)
	if err != nil {
		b.RecoverErrors.Add(1)
	}
}

// RecordExpand implements MetricsCollector.
func (b *BasicMetricsCollector) RecordExpand(pages int, _ time.Duration, err error) {
	b.ExpandCount.Add(1)
	b.ExpandPages.Add(int64(pages))
	if err != nil {
		b.ExpandErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		InsertCount:    b.InsertCount.Load(),
		InsertErrors:   b.InsertErrors.Load(),
		InsertAvgNanos: avg(b.InsertTotalNanos.Load(), b.InsertCount.Load()),
		FindCount:      b.FindCount.Load(),
		FindHits:       b.FindHits.Load(),
		ExpungeCount:   b.ExpungeCount.Load(),
		ExpungeRemoved: b.ExpungeRemoved.Load(),
		ExpungeErrors:  b.ExpungeErrors.Load(),
		FlushCount:     b.FlushCount.Load(),
		FlushErrors:    b.FlushErrors.Load(),
		FlushAvgNanos:  avg(b.FlushTotalNanos.Load(), b.FlushCount.Load()),
		RecoverCount:   b.RecoverCount.Load(),
		RecoverErrors:  b.RecoverErrors.Load(),
		ExpandCount:    b.ExpandCount.Load(),
		ExpandPages:    b.ExpandPages.Load(),
		ExpandErrors:   b.ExpandErrors.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	InsertCount    int64
	InsertErrors   int64
	InsertAvgNanos int64
	FindCount      int64
	FindHits       int64
	ExpungeCount   int64
	ExpungeRemoved int64
	ExpungeErrors  int64
	FlushCount     int64
	FlushErrors    int64
	FlushAvgNanos  int64
	RecoverCount   int64
	RecoverErrors  int64
	ExpandCount    int64
	ExpandPages    int64
	ExpandErrors   int64
}
