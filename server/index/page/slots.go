package page

import (
	"github.com/zhukovaskychina/xmysql-index/server/index/measure"
)

// slotRange 从页面中整体搬出的一段连续槽位
type slotRange[K, I any] struct {
	items         []I
	keys          []K
	children      []Reference
	childMeasures []*measure.ResultSet
}

func (r *slotRange[K, I]) len() int {
	if r.items != nil {
		return len(r.items)
	}
	return len(r.keys)
}

// fold 这一段内容的度量，代价与段长成正比
func (r *slotRange[K, I]) fold(ms measure.Set[I]) *measure.ResultSet {
	if r.items != nil {
		return ms.Fold(r.items)
	}
	return ms.FoldResults(r.childMeasures)
}

// cut 移除 [from, to) 并返回
func (p *DataPage[K, I]) cut(from, to int) slotRange[K, I] {
	var r slotRange[K, I]
	if p.kind == KindLeaf {
		r.items = append(make([]I, 0, to-from), p.items[from:to]...)
		p.items = cutSlice(p.items, from, to)
		return r
	}
	r.keys = append(make([]K, 0, to-from), p.keys[from:to]...)
	r.children = append(make([]Reference, 0, to-from), p.children[from:to]...)
	r.childMeasures = append(make([]*measure.ResultSet, 0, to-from), p.childMeasures[from:to]...)
	p.keys = cutSlice(p.keys, from, to)
	p.children = cutSlice(p.children, from, to)
	p.childMeasures = cutSlice(p.childMeasures, from, to)
	return r
}

func (p *DataPage[K, I]) appendRange(r slotRange[K, I]) {
	if p.kind == KindLeaf {
		p.items = append(p.items, r.items...)
		return
	}
	p.keys = append(p.keys, r.keys...)
	p.children = append(p.children, r.children...)
	p.childMeasures = append(p.childMeasures, r.childMeasures...)
}

func (p *DataPage[K, I]) prependRange(r slotRange[K, I]) {
	if p.kind == KindLeaf {
		p.items = append(append(make([]I, 0, p.size), r.items...), p.items...)
		return
	}
	p.keys = append(append(make([]K, 0, p.size), r.keys...), p.keys...)
	p.children = append(append(make([]Reference, 0, p.size), r.children...), p.children...)
	p.childMeasures = append(append(make([]*measure.ResultSet, 0, p.size), r.childMeasures...), p.childMeasures...)
}

// clear 清空全部槽位，度量回到单位元
func (p *DataPage[K, I]) clear() {
	p.cut(0, p.CurrentSize())
	p.measures = p.descriptor.measures.NewResults()
}

func cutSlice[T any](s []T, from, to int) []T {
	var zero T
	n := copy(s[from:], s[to:])
	for i := from + n; i < len(s); i++ {
		s[i] = zero
	}
	return s[:from+n]
}
