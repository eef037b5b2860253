package buffer

import (
	"sync/atomic"
	"time"
)

// Statistics tracks buffer activity. All methods are safe for concurrent use.
type Statistics struct {
	writes  atomic.Int64
	reads   atomic.Int64
	drops   atomic.Int64
	size    atomic.Int64
	maxSize atomic.Int64
	started time.Time
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{started: time.Now()}
}

func (s *Statistics) recordWrite(size int) {
	s.writes.Add(1)
	s.updateSize(size)
}

func (s *Statistics) recordRead(n, size int) {
	s.reads.Add(int64(n))
	s.updateSize(size)
}

func (s *Statistics) recordDrop() {
	s.drops.Add(1)
}

func (s *Statistics) updateSize(size int) {
	v := int64(size)
	s.size.Store(v)
	for {
		cur := s.maxSize.Load()
		if v <= cur || s.maxSize.CompareAndSwap(cur, v) {
			return
		}
	}
}

// Writes returns the number of accepted writes.
func (s *Statistics) Writes() int64 { return s.writes.Load() }

// Reads returns the number of items read.
func (s *Statistics) Reads() int64 { return s.reads.Load() }

// Drops returns the number of items discarded by the overflow policy.
func (s *Statistics) Drops() int64 { return s.drops.Load() }

// CurrentSize returns the number of buffered items.
func (s *Statistics) CurrentSize() int64 { return s.size.Load() }

// MaxSize returns the high-water mark of buffered items.
func (s *Statistics) MaxSize() int64 { return s.maxSize.Load() }

// Throughput returns the average number of writes per second.
func (s *Statistics) Throughput() float64 {
	elapsed := time.Since(s.started).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(s.Writes()) / elapsed
}

// StatsSummary is a point-in-time copy of Statistics.
type StatsSummary struct {
	Writes      int64         `json:"writes"`
	Reads       int64         `json:"reads"`
	Drops       int64         `json:"drops"`
	CurrentSize int64         `json:"current_size"`
	MaxSize     int64         `json:"max_size"`
	Throughput  float64       `json:"throughput"`
	Uptime      time.Duration `json:"uptime"`
}

// Summary returns a snapshot of all statistics.
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Writes:      s.Writes(),
		Reads:       s.Reads(),
		Drops:       s.Drops(),
		CurrentSize: s.CurrentSize(),
		MaxSize:     s.MaxSize(),
		Throughput:  s.Throughput(),
		Uptime:      time.Since(s.started),
	}
}
