package page

import (
	"github.com/pkg/errors"

	"github.com/zhukovaskychina/xmysql-index/server/index/basic"
)

// Provider 树算法与存储介质之间唯一的接缝。内存实现让页面常驻，
// 流实现把页面写到按偏移寻址的文件里；缓存和淘汰策略由具体实现决定。
type Provider[K, I any] interface {
	// CreatePage 创建绑定到本索引的新页面，引用尚未分配
	CreatePage(kind Kind) (*DataPage[K, I], error)
	// AssignReference 为新页面分配引用
	AssignReference(p Page[K, I]) error
	// Descriptor 本索引的描述页
	Descriptor() *DescriptorPage[K, I]

	// Resolve 按引用取页面
	Resolve(ref Reference) (Page[K, I], error)
	// MarkDirty 树修改页面后交还给 Provider
	MarkDirty(p *DataPage[K, I]) error
	// Release 丢弃完全合并后被清空的页面
	Release(p *DataPage[K, I]) error
	// Flush 持久化全部脏页
	Flush() error
	Close() error
}

// ResolveData 取数据页，引用指向描述页时报错
func ResolveData[K, I any](provider Provider[K, I], ref Reference) (*DataPage[K, I], error) {
	p, err := provider.Resolve(ref)
	if err != nil {
		return nil, err
	}
	switch p.Kind() {
	case KindInner, KindLeaf:
		return p.AsDataPage(), nil
	default:
		return nil, errors.Wrapf(basic.ErrIncompatibleKind, "reference %s resolves to %s page", ref, p.Kind())
	}
}

// NewPage 创建并分配引用，树中新建页面的常用组合
func NewPage[K, I any](provider Provider[K, I], kind Kind) (*DataPage[K, I], error) {
	p, err := provider.CreatePage(kind)
	if err != nil {
		return nil, err
	}
	if err := provider.AssignReference(p); err != nil {
		return nil, err
	}
	return p, nil
}
