package page

// Header 所有页面共有的身份信息：引用、版本号和持久化标记
type Header struct {
	ref       Reference
	assigned  bool
	version   uint64
	persisted bool
}

// NewHeader 从存储加载的页面在构造时即视为已持久化
func NewHeader(loadedFromStore bool) Header {
	return Header{persisted: loadedFromStore}
}

// Reference 第二个返回值为 false 表示引用尚未分配
func (h *Header) Reference() (Reference, bool) {
	if !h.assigned {
		return UnassignedReference, false
	}
	return h.ref, true
}

// Ref 未分配时返回 UnassignedReference
func (h *Header) Ref() Reference {
	ref, _ := h.Reference()
	return ref
}

// SetReference 由 Provider 调用
func (h *Header) SetReference(ref Reference) {
	h.ref = ref
	h.assigned = ref.IsDefined() || ref.Kind() == RefDescriptor
}

func (h *Header) Version() uint64 { return h.version }

// UpdateVersion 每次逻辑修改调用一次，读操作从不调用
func (h *Header) UpdateVersion() {
	h.version++
	h.persisted = false
}

func (h *Header) IsPersisted() bool { return h.persisted }

// MarkPersisted 页面镜像已与内存状态一致
func (h *Header) MarkPersisted() {
	h.persisted = true
}

// Page 树节点的封闭联合：只有 *DescriptorPage 和 *DataPage 两种实现。
// 调用方按 Kind() 分派，As* 在标签不匹配时返回 nil。
type Page[K, I any] interface {
	Kind() Kind
	Reference() (Reference, bool)
	Ref() Reference
	Version() uint64
	IsPersisted() bool
	Descriptor() *DescriptorPage[K, I]

	AsDescriptorPage() *DescriptorPage[K, I]
	AsDataPage() *DataPage[K, I]
	AsInnerPage() *DataPage[K, I]
	AsLeafPage() *DataPage[K, I]

	sealed()
}
