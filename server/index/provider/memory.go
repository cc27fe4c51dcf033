package provider

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/zhukovaskychina/xmysql-index/server/index/basic"
	"github.com/zhukovaskychina/xmysql-index/server/index/page"
)

// Memory 页面常驻内存的提供者，引用是进程内的自引用。Flush 只把页面标记为已持久化。
type Memory[K, I any] struct {
	mu         sync.RWMutex
	descriptor *page.DescriptorPage[K, I]
	pages      map[page.Reference]*page.DataPage[K, I]
	stats      *Stats
	closed     bool
}

// NewMemory 按配置创建描述页并接管它
func NewMemory[K, I any](opts page.Options[K, I]) (*Memory[K, I], error) {
	d, err := page.NewDescriptorPage(opts, false)
	if err != nil {
		return nil, err
	}
	m := &Memory[K, I]{
		descriptor: d,
		pages:      make(map[page.Reference]*page.DataPage[K, I]),
		stats:      NewStats(),
	}
	d.Bind(m)
	return m, nil
}

func (m *Memory[K, I]) CreatePage(kind page.Kind) (*page.DataPage[K, I], error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	p, err := page.NewDataPage(m.descriptor, kind)
	if err != nil {
		return nil, err
	}
	m.stats.RecordCreate()
	return p, nil
}

func (m *Memory[K, I]) AssignReference(p page.Page[K, I]) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	switch p.Kind() {
	case page.KindDescriptor:
		if p.AsDescriptorPage() != m.descriptor {
			return errors.Wrap(basic.ErrForeignPage, "descriptor")
		}
		return nil
	default:
		dp := p.AsDataPage()
		if dp.Descriptor() != m.descriptor {
			return errors.Wrapf(basic.ErrForeignPage, "%s page", dp.Kind())
		}
		if ref, ok := dp.Reference(); ok {
			return errors.Errorf("%s page already has reference %s", dp.Kind(), ref)
		}
		ref := page.NewSelfReference()
		dp.SetReference(ref)
		m.mu.Lock()
		m.pages[ref] = dp
		m.mu.Unlock()
		return nil
	}
}

func (m *Memory[K, I]) Descriptor() *page.DescriptorPage[K, I] { return m.descriptor }

func (m *Memory[K, I]) Resolve(ref page.Reference) (page.Page[K, I], error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	if ref == page.DescriptorReference {
		return m.descriptor, nil
	}
	m.mu.RLock()
	p, ok := m.pages[ref]
	m.mu.RUnlock()
	m.stats.RecordPageRequest(ok)
	if !ok {
		return nil, errors.Wrapf(basic.ErrPageNotFound, "reference %s", ref)
	}
	return p, nil
}

// MarkDirty 内存页面没有需要回写的内容，只确认页面属于本提供者
func (m *Memory[K, I]) MarkDirty(p *page.DataPage[K, I]) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	ref, ok := p.Reference()
	if !ok {
		return errors.Wrapf(basic.ErrUnassigned, "%s page", p.Kind())
	}
	m.mu.RLock()
	_, known := m.pages[ref]
	m.mu.RUnlock()
	if !known {
		return errors.Wrapf(basic.ErrPageNotFound, "reference %s", ref)
	}
	return nil
}

func (m *Memory[K, I]) Release(p *page.DataPage[K, I]) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.pages, p.Ref())
	m.mu.Unlock()
	m.stats.RecordRelease()
	return nil
}

func (m *Memory[K, I]) Flush() error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	m.mu.RLock()
	for _, p := range m.pages {
		p.MarkPersisted()
	}
	m.mu.RUnlock()
	m.descriptor.MarkPersisted()
	m.stats.RecordFlush(true)
	return nil
}

// Close 之后所有操作返回 ErrProviderClose
func (m *Memory[K, I]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.pages = nil
	return nil
}

// PageCount 当前存活的数据页数
func (m *Memory[K, I]) PageCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pages)
}

func (m *Memory[K, I]) Stats() *Stats { return m.stats }

func (m *Memory[K, I]) checkOpen() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return basic.ErrProviderClose
	}
	return nil
}

var _ page.Provider[int64, int64] = (*Memory[int64, int64])(nil)
