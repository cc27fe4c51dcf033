package page

import (
	"github.com/pkg/errors"

	"github.com/zhukovaskychina/xmysql-index/server/index/basic"
	"github.com/zhukovaskychina/xmysql-index/server/index/measure"
)

// DataPage 树中的数据页，按标签分为内部页和叶子页。
//
// 叶子页的槽位保存记录；内部页的槽位保存 (分隔键, 子页引用, 子树度量快照)，
// keys[i] 是子页 i 中所有键的下界。内部页的度量是全部子树度量的合并。
type DataPage[K, I any] struct {
	Header

	kind       Kind
	descriptor *DescriptorPage[K, I]
	size       int

	items []I // 叶子页

	keys          []K                  // 内部页
	children      []Reference          // 内部页
	childMeasures []*measure.ResultSet // 内部页

	measures *measure.ResultSet
}

// NewDataPage 创建空数据页，供 Provider.CreatePage 使用。描述页在此之后不再接受度量声明。
func NewDataPage[K, I any](d *DescriptorPage[K, I], kind Kind) (*DataPage[K, I], error) {
	if !kind.IsData() {
		return nil, errors.Wrapf(basic.ErrIncompatibleKind, "create %s page", kind)
	}
	d.Seal()
	size := d.SizeOf(kind)
	p := &DataPage[K, I]{
		Header:     NewHeader(false),
		kind:       kind,
		descriptor: d,
		size:       size,
		measures:   d.measures.NewResults(),
	}
	if kind == KindLeaf {
		p.items = make([]I, 0, size)
	} else {
		p.keys = make([]K, 0, size)
		p.children = make([]Reference, 0, size)
		p.childMeasures = make([]*measure.ResultSet, 0, size)
	}
	return p, nil
}

func (p *DataPage[K, I]) Kind() Kind                              { return p.kind }
func (p *DataPage[K, I]) Descriptor() *DescriptorPage[K, I]       { return p.descriptor }
func (p *DataPage[K, I]) AsDescriptorPage() *DescriptorPage[K, I] { return nil }
func (p *DataPage[K, I]) AsDataPage() *DataPage[K, I]             { return p }
func (p *DataPage[K, I]) sealed()                                 {}

func (p *DataPage[K, I]) AsInnerPage() *DataPage[K, I] {
	if p.kind != KindInner {
		return nil
	}
	return p
}

func (p *DataPage[K, I]) AsLeafPage() *DataPage[K, I] {
	if p.kind != KindLeaf {
		return nil
	}
	return p
}

func (p *DataPage[K, I]) IsLeaf() bool { return p.kind == KindLeaf }

// CurrentSize 已占用槽位数
func (p *DataPage[K, I]) CurrentSize() int {
	if p.kind == KindLeaf {
		return len(p.items)
	}
	return len(p.keys)
}

// Size 声明容量
func (p *DataPage[K, I]) Size() int { return p.size }

func (p *DataPage[K, I]) IsFull() bool { return p.CurrentSize() >= p.size }

// KeyAt 叶子页返回记录的键，内部页返回分隔键
func (p *DataPage[K, I]) KeyAt(i int) K {
	if p.kind == KindLeaf {
		return p.descriptor.extract(p.items[i])
	}
	return p.keys[i]
}

func (p *DataPage[K, I]) ItemAt(i int) I { return p.items[i] }

// Items 叶子页记录的副本
func (p *DataPage[K, I]) Items() []I {
	return append([]I(nil), p.items...)
}

func (p *DataPage[K, I]) ChildAt(i int) Reference { return p.children[i] }

func (p *DataPage[K, I]) ChildMeasuresAt(i int) *measure.ResultSet {
	return p.childMeasures[i].Clone()
}

// Measures 当前度量值的副本
func (p *DataPage[K, I]) Measures() *measure.ResultSet {
	return p.measures.Clone()
}

func (p *DataPage[K, I]) compare(a, b K) int { return p.descriptor.compare(a, b) }

func (p *DataPage[K, I]) checkIndex(i, limit int) error {
	if i < 0 || i > limit {
		return errors.Wrapf(basic.ErrIndexOutOfRange, "slot %d of %s page with %d slots", i, p.kind, p.CurrentSize())
	}
	return nil
}

func (p *DataPage[K, I]) checkKind(kind Kind, op string) error {
	if p.kind != kind {
		return errors.Wrapf(basic.ErrIncompatibleKind, "%s on %s page", op, p.kind)
	}
	return nil
}

// checkSlot 新键放到 index 位置后是否仍严格有序
func (p *DataPage[K, I]) checkSlot(index int, key K) error {
	n := p.CurrentSize()
	if index > 0 && p.compare(p.KeyAt(index-1), key) >= 0 {
		return errors.Wrapf(basic.ErrUnsortedKeys, "slot %d", index)
	}
	if index < n && p.compare(key, p.KeyAt(index)) >= 0 {
		return errors.Wrapf(basic.ErrUnsortedKeys, "slot %d", index)
	}
	return nil
}

// Insert 在叶子页 index 处插入记录
func (p *DataPage[K, I]) Insert(index int, item I) error {
	if err := p.checkKind(KindLeaf, "insert"); err != nil {
		return err
	}
	if err := p.checkIndex(index, len(p.items)); err != nil {
		return err
	}
	if p.IsFull() {
		return errors.Wrapf(basic.ErrPageFull, "leaf page %s", p.Ref())
	}
	if err := p.checkSlot(index, p.descriptor.extract(item)); err != nil {
		return err
	}
	p.items = insertAt(p.items, index, item)
	p.addItem(item)
	p.UpdateVersion()
	return nil
}

// Replace 用同键记录替换 index 处的记录
func (p *DataPage[K, I]) Replace(index int, item I) error {
	if err := p.checkKind(KindLeaf, "replace"); err != nil {
		return err
	}
	if err := p.checkIndex(index, len(p.items)-1); err != nil {
		return err
	}
	if p.compare(p.KeyAt(index), p.descriptor.extract(item)) != 0 {
		return errors.Wrapf(basic.ErrUnsortedKeys, "replace slot %d with different key", index)
	}
	old := p.items[index]
	p.items[index] = item
	if !p.descriptor.measures.Subtract(p.measures, old) {
		p.recalculate()
	} else {
		p.descriptor.measures.Add(p.measures, item)
	}
	p.UpdateVersion()
	return nil
}

// InsertChild 在内部页 index 处插入子页槽位
func (p *DataPage[K, I]) InsertChild(index int, key K, child Reference, childMeasures *measure.ResultSet) error {
	if err := p.checkKind(KindInner, "insert child"); err != nil {
		return err
	}
	if err := p.checkIndex(index, len(p.keys)); err != nil {
		return err
	}
	if p.IsFull() {
		return errors.Wrapf(basic.ErrPageFull, "inner page %s", p.Ref())
	}
	if err := p.checkSlot(index, key); err != nil {
		return err
	}
	snapshot := childMeasures.Clone()
	p.keys = insertAt(p.keys, index, key)
	p.children = insertAt(p.children, index, child)
	p.childMeasures = insertAt(p.childMeasures, index, snapshot)
	p.addResults(snapshot)
	p.UpdateVersion()
	return nil
}

// Remove 删除 index 处的槽位，后续槽位前移，并从度量中减去被删除的部分。
// 是否需要合并由调用方在返回后决定。
func (p *DataPage[K, I]) Remove(index int) error {
	if err := p.checkIndex(index, p.CurrentSize()-1); err != nil {
		return err
	}
	if p.kind == KindLeaf {
		item := p.items[index]
		p.items = removeAt(p.items, index)
		p.subtractItem(item)
	} else {
		snapshot := p.childMeasures[index]
		p.keys = removeAt(p.keys, index)
		p.children = removeAt(p.children, index)
		p.childMeasures = removeAt(p.childMeasures, index)
		p.subtractResults(snapshot)
	}
	p.UpdateVersion()
	return nil
}

// SetKeyAt 修改内部页的分隔键，顺序必须保持不变
func (p *DataPage[K, I]) SetKeyAt(index int, key K) error {
	if err := p.checkKind(KindInner, "set key"); err != nil {
		return err
	}
	if err := p.checkIndex(index, len(p.keys)-1); err != nil {
		return err
	}
	if index > 0 && p.compare(p.keys[index-1], key) >= 0 {
		return errors.Wrapf(basic.ErrUnsortedKeys, "separator %d", index)
	}
	if index < len(p.keys)-1 && p.compare(key, p.keys[index+1]) >= 0 {
		return errors.Wrapf(basic.ErrUnsortedKeys, "separator %d", index)
	}
	p.keys[index] = key
	p.UpdateVersion()
	return nil
}

// RefreshChild 子页内容整体变化后更新其引用和度量快照，代价与度量个数成正比
func (p *DataPage[K, I]) RefreshChild(index int, child Reference, childMeasures *measure.ResultSet) error {
	if err := p.checkKind(KindInner, "refresh child"); err != nil {
		return err
	}
	if err := p.checkIndex(index, len(p.keys)-1); err != nil {
		return err
	}
	old := p.childMeasures[index]
	snapshot := childMeasures.Clone()
	p.children[index] = child
	p.childMeasures[index] = snapshot
	ms := p.descriptor.measures
	if ms.Decombine(p.measures, old) {
		ms.Combine(p.measures, snapshot)
	} else {
		p.recalculate()
	}
	p.UpdateVersion()
	return nil
}

// SetChildReference 仅替换子页引用，Provider 刷盘时把临时引用改写为流偏移
func (p *DataPage[K, I]) SetChildReference(index int, child Reference) {
	p.children[index] = child
}

func insertAt[T any](s []T, index int, v T) []T {
	var zero T
	s = append(s, zero)
	copy(s[index+1:], s[index:])
	s[index] = v
	return s
}

func removeAt[T any](s []T, index int) []T {
	var zero T
	copy(s[index:], s[index+1:])
	s[len(s)-1] = zero
	return s[:len(s)-1]
}
