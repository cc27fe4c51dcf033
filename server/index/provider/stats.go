package provider

import (
	"sync/atomic"
	"time"
)

// Stats 页面提供者的运行统计，所有计数均可并发读取
type Stats struct {
	// 页面统计
	CreatedPages  int64
	ReleasedPages int64
	DirtyPages    int64

	// 命中率统计
	PageRequests int64
	PageHits     int64
	PageMisses   int64

	// IO统计
	PageReads    int64
	PageWrites   int64
	BytesRead    int64
	BytesWritten int64

	// 刷新统计
	FlushRequests  int64
	FlushSuccesses int64
	FlushFailures  int64

	ReadLatencyTotal  int64 // 纳秒
	WriteLatencyTotal int64 // 纳秒
	LastResetTime     time.Time
}

// NewStats 创建新的统计对象
func NewStats() *Stats {
	return &Stats{LastResetTime: time.Now()}
}

// RecordPageRequest 记录一次按引用取页，hit 表示无需读盘
func (s *Stats) RecordPageRequest(hit bool) {
	atomic.AddInt64(&s.PageRequests, 1)
	if hit {
		atomic.AddInt64(&s.PageHits, 1)
	} else {
		atomic.AddInt64(&s.PageMisses, 1)
	}
}

// RecordPageIO 记录页面IO
func (s *Stats) RecordPageIO(isRead bool, bytes int, latency time.Duration) {
	if isRead {
		atomic.AddInt64(&s.PageReads, 1)
		atomic.AddInt64(&s.BytesRead, int64(bytes))
		atomic.AddInt64(&s.ReadLatencyTotal, latency.Nanoseconds())
	} else {
		atomic.AddInt64(&s.PageWrites, 1)
		atomic.AddInt64(&s.BytesWritten, int64(bytes))
		atomic.AddInt64(&s.WriteLatencyTotal, latency.Nanoseconds())
	}
}

// RecordFlush 记录刷新统计
func (s *Stats) RecordFlush(success bool) {
	atomic.AddInt64(&s.FlushRequests, 1)
	if success {
		atomic.AddInt64(&s.FlushSuccesses, 1)
	} else {
		atomic.AddInt64(&s.FlushFailures, 1)
	}
}

func (s *Stats) RecordCreate()  { atomic.AddInt64(&s.CreatedPages, 1) }
func (s *Stats) RecordRelease() { atomic.AddInt64(&s.ReleasedPages, 1) }

// SetDirtyPages 更新当前脏页数
func (s *Stats) SetDirtyPages(n int) {
	atomic.StoreInt64(&s.DirtyPages, int64(n))
}

// GetHitRatio 获取命中率
func (s *Stats) GetHitRatio() float64 {
	requests := atomic.LoadInt64(&s.PageRequests)
	if requests == 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&s.PageHits)) / float64(requests)
}

// GetAvgReadLatency 获取平均读取延迟(纳秒)
func (s *Stats) GetAvgReadLatency() float64 {
	reads := atomic.LoadInt64(&s.PageReads)
	if reads == 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&s.ReadLatencyTotal)) / float64(reads)
}

// Snapshot 当前计数的一致副本
func (s *Stats) Snapshot() Stats {
	return Stats{
		CreatedPages:      atomic.LoadInt64(&s.CreatedPages),
		ReleasedPages:     atomic.LoadInt64(&s.ReleasedPages),
		DirtyPages:        atomic.LoadInt64(&s.DirtyPages),
		PageRequests:      atomic.LoadInt64(&s.PageRequests),
		PageHits:          atomic.LoadInt64(&s.PageHits),
		PageMisses:        atomic.LoadInt64(&s.PageMisses),
		PageReads:         atomic.LoadInt64(&s.PageReads),
		PageWrites:        atomic.LoadInt64(&s.PageWrites),
		BytesRead:         atomic.LoadInt64(&s.BytesRead),
		BytesWritten:      atomic.LoadInt64(&s.BytesWritten),
		FlushRequests:     atomic.LoadInt64(&s.FlushRequests),
		FlushSuccesses:    atomic.LoadInt64(&s.FlushSuccesses),
		FlushFailures:     atomic.LoadInt64(&s.FlushFailures),
		ReadLatencyTotal:  atomic.LoadInt64(&s.ReadLatencyTotal),
		WriteLatencyTotal: atomic.LoadInt64(&s.WriteLatencyTotal),
		LastResetTime:     s.LastResetTime,
	}
}
