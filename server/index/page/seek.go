package page

import "sort"

// SeekResultType 查找结果类别，Nearest 和 None 都是正常结果而非错误
type SeekResultType uint8

const (
	SeekNone SeekResultType = iota
	SeekExact
	SeekNearest
)

func (t SeekResultType) String() string {
	switch t {
	case SeekExact:
		return "exact"
	case SeekNearest:
		return "nearest"
	default:
		return "none"
	}
}

// SeekResult Exact 时 Index 是键所在槽位；Nearest 时是保持有序的插入位置
// （射线查找时是射线方向上最近的槽位）
type SeekResult struct {
	Type  SeekResultType
	Index int
}

// Direction 射线方向
type Direction int8

const (
	Forward  Direction = 1
	Backward Direction = -1
)

// Ray 从 Point 出发、沿 Direction 延伸的查找边界，边界本身不必存在
type Ray[K any] struct {
	Point     K
	Direction Direction
}

// Seek 二分查找单个键
func (p *DataPage[K, I]) Seek(key K) SeekResult {
	n := p.CurrentSize()
	if n == 0 {
		return SeekResult{Type: SeekNone}
	}
	i := sort.Search(n, func(i int) bool { return p.compare(p.KeyAt(i), key) >= 0 })
	if i < n && p.compare(p.KeyAt(i), key) == 0 {
		return SeekResult{Type: SeekExact, Index: i}
	}
	return SeekResult{Type: SeekNearest, Index: i}
}

// SeekRay 正向返回第一个 >= Point 的槽位，反向返回最后一个 <= Point 的槽位，
// 本页没有满足条件的槽位时返回 None
func (p *DataPage[K, I]) SeekRay(ray Ray[K]) SeekResult {
	n := p.CurrentSize()
	if n == 0 {
		return SeekResult{Type: SeekNone}
	}
	if ray.Direction == Backward {
		i := sort.Search(n, func(i int) bool { return p.compare(p.KeyAt(i), ray.Point) > 0 }) - 1
		if i < 0 {
			return SeekResult{Type: SeekNone}
		}
		if p.compare(p.KeyAt(i), ray.Point) == 0 {
			return SeekResult{Type: SeekExact, Index: i}
		}
		return SeekResult{Type: SeekNearest, Index: i}
	}
	i := sort.Search(n, func(i int) bool { return p.compare(p.KeyAt(i), ray.Point) >= 0 })
	if i == n {
		return SeekResult{Type: SeekNone}
	}
	if p.compare(p.KeyAt(i), ray.Point) == 0 {
		return SeekResult{Type: SeekExact, Index: i}
	}
	return SeekResult{Type: SeekNearest, Index: i}
}

// ChildIndexFor 内部页中负责 key 的子页槽位
func (p *DataPage[K, I]) ChildIndexFor(key K) int {
	r := p.Seek(key)
	switch r.Type {
	case SeekExact:
		return r.Index
	case SeekNearest:
		if r.Index == 0 {
			return 0
		}
		return r.Index - 1
	default:
		return 0
	}
}
