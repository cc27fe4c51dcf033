package page

import (
	"github.com/pkg/errors"

	"github.com/zhukovaskychina/xmysql-index/server/index/basic"
	"github.com/zhukovaskychina/xmysql-index/server/index/measure"
)

// MinPageSize 小于 3 的页面在拆分和合并后无法保持平衡
const MinPageSize = 3

// Options 使用方在构造索引时提供的配置
type Options[K, I any] struct {
	Comparer  basic.Comparer[K]
	Extractor basic.KeyExtractor[I, K]
	LeafSize  int
	InnerSize int
	Measures  []measure.Measure[I]
}

func (o *Options[K, I]) validate() error {
	if o.Comparer == nil || o.Extractor == nil {
		return errors.New("comparer and key extractor are required")
	}
	if o.LeafSize < MinPageSize {
		return errors.Wrapf(basic.ErrInvalidCapacity, "leaf size %d", o.LeafSize)
	}
	if o.InnerSize < MinPageSize {
		return errors.Wrapf(basic.ErrInvalidCapacity, "inner size %d", o.InnerSize)
	}
	return nil
}

// DescriptorPage 每个索引唯一的元数据页，其余页面都持有它的引用。
// 比较器、键提取器和容量在打开后不可变；度量列表只能在 Seal 之前声明。
type DescriptorPage[K, I any] struct {
	Header

	compare   basic.Comparer[K]
	extract   basic.KeyExtractor[I, K]
	leafSize  int
	innerSize int
	measures  measure.Set[I]
	frozen    bool

	provider Provider[K, I]

	root      Reference
	height    int
	itemCount int64
}

// NewDescriptorPage 创建描述页，引用固定为 DescriptorReference
func NewDescriptorPage[K, I any](opts Options[K, I], loadedFromStore bool) (*DescriptorPage[K, I], error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	d := &DescriptorPage[K, I]{
		Header:    NewHeader(loadedFromStore),
		compare:   opts.Comparer,
		extract:   opts.Extractor,
		leafSize:  opts.LeafSize,
		innerSize: opts.InnerSize,
		root:      NullReference,
	}
	d.SetReference(DescriptorReference)
	for _, m := range opts.Measures {
		if err := d.DeclareMeasure(m); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *DescriptorPage[K, I]) Kind() Kind                              { return KindDescriptor }
func (d *DescriptorPage[K, I]) Descriptor() *DescriptorPage[K, I]       { return d }
func (d *DescriptorPage[K, I]) AsDescriptorPage() *DescriptorPage[K, I] { return d }
func (d *DescriptorPage[K, I]) AsDataPage() *DataPage[K, I]             { return nil }
func (d *DescriptorPage[K, I]) AsInnerPage() *DataPage[K, I]            { return nil }
func (d *DescriptorPage[K, I]) AsLeafPage() *DataPage[K, I]             { return nil }
func (d *DescriptorPage[K, I]) sealed()                                 {}

// DeclareMeasure 追加一个度量声明
func (d *DescriptorPage[K, I]) DeclareMeasure(m measure.Measure[I]) error {
	if d.frozen {
		return errors.Wrapf(basic.ErrDescriptorSealed, "declare measure %q", m.Name())
	}
	for _, existing := range d.measures {
		if existing.Name() == m.Name() {
			return errors.Wrapf(basic.ErrDuplicateMeasure, "measure %q", m.Name())
		}
	}
	d.measures = append(d.measures, m)
	d.UpdateVersion()
	return nil
}

// Seal 冻结度量声明，第一个数据页创建时自动调用
func (d *DescriptorPage[K, I]) Seal() { d.frozen = true }

func (d *DescriptorPage[K, I]) IsSealed() bool { return d.frozen }

// Bind 由 Provider 在接管描述页时调用
func (d *DescriptorPage[K, I]) Bind(p Provider[K, I]) { d.provider = p }

func (d *DescriptorPage[K, I]) Provider() Provider[K, I] { return d.provider }

func (d *DescriptorPage[K, I]) Compare(a, b K) int { return d.compare(a, b) }

func (d *DescriptorPage[K, I]) KeyOf(item I) K { return d.extract(item) }

func (d *DescriptorPage[K, I]) Measures() measure.Set[I] { return d.measures }

func (d *DescriptorPage[K, I]) LeafSize() int { return d.leafSize }

func (d *DescriptorPage[K, I]) InnerSize() int { return d.innerSize }

// SizeOf 按页面种类返回声明容量
func (d *DescriptorPage[K, I]) SizeOf(kind Kind) int {
	if kind == KindInner {
		return d.innerSize
	}
	return d.leafSize
}

// Root 第二个返回值为 false 表示索引还没有根页
func (d *DescriptorPage[K, I]) Root() (Reference, bool) {
	return d.root, d.root.IsDefined()
}

func (d *DescriptorPage[K, I]) SetRoot(ref Reference) {
	if d.root == ref {
		return
	}
	d.root = ref
	d.UpdateVersion()
}

func (d *DescriptorPage[K, I]) Height() int { return d.height }

func (d *DescriptorPage[K, I]) SetHeight(h int) {
	if d.height == h {
		return
	}
	d.height = h
	d.UpdateVersion()
}

func (d *DescriptorPage[K, I]) ItemCount() int64 { return d.itemCount }

func (d *DescriptorPage[K, I]) AddItemCount(delta int64) {
	if delta == 0 {
		return
	}
	d.itemCount += delta
	d.UpdateVersion()
}

// DescriptorState 描述页中随树变化的部分，供编解码使用
type DescriptorState struct {
	Version      uint64
	LeafSize     int
	InnerSize    int
	MeasureNames []string
	Root         Reference
	Height       int
	ItemCount    int64
}

// State 导出当前状态
func (d *DescriptorPage[K, I]) State() DescriptorState {
	return DescriptorState{
		Version:      d.version,
		LeafSize:     d.leafSize,
		InnerSize:    d.innerSize,
		MeasureNames: d.measures.Names(),
		Root:         d.root,
		Height:       d.height,
		ItemCount:    d.itemCount,
	}
}

// Restore 用存储中的状态覆盖运行时状态。容量和度量名称必须与当前配置一致。
func (d *DescriptorPage[K, I]) Restore(state DescriptorState) error {
	if state.LeafSize != d.leafSize || state.InnerSize != d.innerSize {
		return errors.Wrapf(basic.ErrDescriptorMismatch, "capacities %d/%d, configured %d/%d",
			state.LeafSize, state.InnerSize, d.leafSize, d.innerSize)
	}
	names := d.measures.Names()
	if len(names) != len(state.MeasureNames) {
		return errors.Wrapf(basic.ErrDescriptorMismatch, "measures %v, configured %v", state.MeasureNames, names)
	}
	for i := range names {
		if names[i] != state.MeasureNames[i] {
			return errors.Wrapf(basic.ErrDescriptorMismatch, "measures %v, configured %v", state.MeasureNames, names)
		}
	}
	d.root = state.Root
	d.height = state.Height
	d.itemCount = state.ItemCount
	d.version = state.Version
	d.frozen = true
	d.persisted = true
	return nil
}
